package photo

const (
	// trimUniformStd bounds the grayscale std of a row/column that still
	// counts as border while scanning inward.
	trimUniformStd = 10.0

	// borderMeanDiff is how far a row/column mean may drift from the sampled
	// border brightness before cross-validation treats it as content.
	borderMeanDiff = 30.0

	// crossValidateMinPx: cross-validation of a boundary only engages when a
	// perpendicular border at least this thick exists, so pillarbox and
	// letterbox layouts keep their open sides untouched.
	crossValidateMinPx = 10

	// Text-gap detection over the content mask density profiles.
	textContentFraction = 0.3
	textMinGapPx        = 10
	textMaskDiff        = 30
)

// Trimmer crops a validated frame's original border, handles adjacent
// text/watermark padding, and re-applies a clean fixed-width border.
type Trimmer struct {
	opts Options
}

func NewTrimmer(opts Options) *Trimmer {
	return &Trimmer{opts: opts}
}

// TrimAndBorder returns a newly allocated frame: the content interior plus a
// fresh border of the configured width in the sampled border color. A frame
// with no detectable content (fully uniform) comes back as an untouched copy.
// The input frame is never mutated.
func (t *Trimmer) TrimAndBorder(f *Frame) *Frame {
	gray := f.Gray()
	w, h := f.Width, f.Height

	top, ok := scanTop(gray, w, h)
	if !ok {
		return f.Clone()
	}
	bottom := scanBottom(gray, w, h)
	left := scanLeft(gray, w, h)
	right := scanRight(gray, w, h)

	refGray, refOK := borderReference(gray, w, h, top, bottom, left, right)
	if refOK {
		// A uniformly dark photo region passes the std scan and gets eaten
		// into the border; walk each boundary back out while the rows or
		// columns just inside it fail to match the sampled border brightness.
		// Only boundaries with a meaningful perpendicular border are checked,
		// which leaves the open sides of pillarbox/letterbox layouts alone.
		leftThk, rightThk := left, w-1-right
		topThk, bottomThk := top, h-1-bottom
		if leftThk >= crossValidateMinPx || rightThk >= crossValidateMinPx {
			top = expandTop(gray, w, top, left, right, refGray)
			bottom = expandBottom(gray, w, h, bottom, left, right, refGray)
		}
		if topThk >= crossValidateMinPx || bottomThk >= crossValidateMinPx {
			left = expandLeft(gray, w, left, top, bottom, refGray)
			right = expandRight(gray, w, right, top, bottom, refGray)
		}
	}

	borderR, borderG, borderB := sampleBorderColor(f, top, left)
	borderLuma := uint8((299*uint32(borderR) + 587*uint32(borderG) + 114*uint32(borderB)) / 1000)

	cropped := cropFrame(f, left, top, right+1, bottom+1)

	padding, textCrop := detectTextPadding(cropped.Gray(), cropped.Width, cropped.Height, borderLuma)

	padTop, padBottom, padLeft, padRight := t.opts.BorderPx, t.opts.BorderPx, t.opts.BorderPx, t.opts.BorderPx
	if t.opts.IncludeText {
		padTop = maxInt(padTop, padding[0])
		padBottom = maxInt(padBottom, padding[1])
		padLeft = maxInt(padLeft, padding[2])
		padRight = maxInt(padRight, padding[3])
	} else {
		ct, cb, cl, cr := textCrop[0], textCrop[1], textCrop[2], textCrop[3]
		if cropped.Height-ct-cb > 0 && cropped.Width-cl-cr > 0 {
			cropped = cropFrame(cropped, cl, ct, cropped.Width-cr, cropped.Height-cb)
		}
	}

	return addBorder(cropped, padTop, padBottom, padLeft, padRight, borderR, borderG, borderB)
}

func scanTop(gray []uint8, w, h int) (int, bool) {
	for y := 0; y < h; y++ {
		if _, std := meanStd(grayRow(gray, w, y)); std > trimUniformStd {
			return y, true
		}
	}
	return 0, false
}

func scanBottom(gray []uint8, w, h int) int {
	for y := h - 1; y >= 0; y-- {
		if _, std := meanStd(grayRow(gray, w, y)); std > trimUniformStd {
			return y
		}
	}
	return h - 1
}

func scanLeft(gray []uint8, w, h int) int {
	for x := 0; x < w; x++ {
		if _, std := meanStd(grayCol(gray, w, h, x)); std > trimUniformStd {
			return x
		}
	}
	return 0
}

func scanRight(gray []uint8, w, h int) int {
	for x := w - 1; x >= 0; x-- {
		if _, std := meanStd(grayCol(gray, w, h, x)); std > trimUniformStd {
			return x
		}
	}
	return w - 1
}

// borderReference samples the mean brightness of the detected border region
// (the strips outside the content boundaries).
func borderReference(gray []uint8, w, h, top, bottom, left, right int) (float64, bool) {
	var sum, n float64
	for y := 0; y < top; y++ {
		for _, v := range grayRow(gray, w, y) {
			sum += float64(v)
			n++
		}
	}
	for y := bottom + 1; y < h; y++ {
		for _, v := range grayRow(gray, w, y) {
			sum += float64(v)
			n++
		}
	}
	for y := top; y <= bottom; y++ {
		row := grayRow(gray, w, y)
		for x := 0; x < left; x++ {
			sum += float64(row[x])
			n++
		}
		for x := right + 1; x < w; x++ {
			sum += float64(row[x])
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / n, true
}

func rowMeanSpan(gray []uint8, w, y, x0, x1 int) float64 {
	row := grayRow(gray, w, y)[x0 : x1+1]
	var sum float64
	for _, v := range row {
		sum += float64(v)
	}
	return sum / float64(len(row))
}

func colMeanSpan(gray []uint8, w, x, y0, y1 int) float64 {
	var sum float64
	for y := y0; y <= y1; y++ {
		sum += float64(gray[y*w+x])
	}
	return sum / float64(y1-y0+1)
}

func expandTop(gray []uint8, w, top, left, right int, ref float64) int {
	for top > 0 {
		m := rowMeanSpan(gray, w, top-1, left, right)
		if absF(m-ref) <= borderMeanDiff {
			break
		}
		top--
	}
	return top
}

func expandBottom(gray []uint8, w, h, bottom, left, right int, ref float64) int {
	for bottom < h-1 {
		m := rowMeanSpan(gray, w, bottom+1, left, right)
		if absF(m-ref) <= borderMeanDiff {
			break
		}
		bottom++
	}
	return bottom
}

func expandLeft(gray []uint8, w, left, top, bottom int, ref float64) int {
	for left > 0 {
		m := colMeanSpan(gray, w, left-1, top, bottom)
		if absF(m-ref) <= borderMeanDiff {
			break
		}
		left--
	}
	return left
}

func expandRight(gray []uint8, w, right, top, bottom int, ref float64) int {
	for right < w-1 {
		m := colMeanSpan(gray, w, right+1, top, bottom)
		if absF(m-ref) <= borderMeanDiff {
			break
		}
		right++
	}
	return right
}

// sampleBorderColor averages the original border color from the top-left
// corner region, falling back to a 1px sample when a side has no border.
func sampleBorderColor(f *Frame, top, left int) (uint8, uint8, uint8) {
	sy := maxInt(top, 1)
	sx := maxInt(left, 1)
	var r, g, b, n uint64
	for y := 0; y < sy; y++ {
		for x := 0; x < sx; x++ {
			pr, pg, pb := f.At(x, y)
			r += uint64(pr)
			g += uint64(pg)
			b += uint64(pb)
			n++
		}
	}
	return uint8(r / n), uint8(g / n), uint8(b / n)
}

// cropFrame copies the region [x0,x1) x [y0,y1) into a new frame.
func cropFrame(f *Frame, x0, y0, x1, y1 int) *Frame {
	out := NewFrame(x1-x0, y1-y0)
	out.Timestamp = f.Timestamp
	out.Index = f.Index
	for y := y0; y < y1; y++ {
		src := 3 * (y*f.Width + x0)
		dst := 3 * ((y - y0) * out.Width)
		copy(out.Pix[dst:dst+3*out.Width], f.Pix[src:src+3*out.Width])
	}
	return out
}

// addBorder wraps the frame in a constant-color border.
func addBorder(f *Frame, top, bottom, left, right int, r, g, b uint8) *Frame {
	out := NewFrame(f.Width+left+right, f.Height+top+bottom)
	out.Timestamp = f.Timestamp
	out.Index = f.Index
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			out.Set(x, y, r, g, b)
		}
	}
	for y := 0; y < f.Height; y++ {
		src := 3 * (y * f.Width)
		dst := 3 * ((y+top)*out.Width + left)
		copy(out.Pix[dst:dst+3*f.Width], f.Pix[src:src+3*f.Width])
	}
	return out
}

// detectTextPadding looks for a text-gap-photo pattern near each edge of the
// trimmed interior: sparse content (text), then a zero-density gap, then
// dense content (the photograph). It returns per-side gap widths (padding to
// keep when text is included) and per-side dense-start offsets (crop amounts
// when text is stripped), ordered top, bottom, left, right.
func detectTextPadding(gray []uint8, w, h int, borderLuma uint8) ([4]int, [4]int) {
	colDensity := make([]float64, w)
	rowDensity := make([]float64, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if abs(int(gray[y*w+x])-int(borderLuma)) > textMaskDiff {
				colDensity[x]++
				rowDensity[y]++
			}
		}
	}
	for x := range colDensity {
		colDensity[x] /= float64(h)
	}
	for y := range rowDensity {
		rowDensity[y] /= float64(w)
	}

	topGap, topDense := findTextGapFromEdge(rowDensity)
	bottomGap, bottomDense := findTextGapFromEdge(reverseFloats(rowDensity))
	leftGap, leftDense := findTextGapFromEdge(colDensity)
	rightGap, rightDense := findTextGapFromEdge(reverseFloats(colDensity))

	return [4]int{topGap, bottomGap, leftGap, rightGap},
		[4]int{topDense, bottomDense, leftDense, rightDense}
}

// findTextGapFromEdge walks a density profile inward from one edge. A match
// needs sparse nonzero density (text), a zero-density gap of at least
// textMinGapPx, and then dense content. Returns (gap width, dense start) or
// (0, 0) when the pattern is absent.
func findTextGapFromEdge(density []float64) (int, int) {
	n := len(density)
	if n == 0 {
		return 0, 0
	}

	denseStart := -1
	for i := 0; i < n; i++ {
		if density[i] >= textContentFraction {
			denseStart = i
			break
		}
	}
	if denseStart < textMinGapPx {
		return 0, 0
	}

	gapStart := -1
	for i := denseStart - 1; i >= 0; i-- {
		if density[i] > 0 {
			gapStart = i + 1
			break
		}
	}
	if gapStart < 0 {
		// All zero between the edge and the photo: plain border, no text.
		return 0, 0
	}

	gapWidth := denseStart - gapStart
	if gapWidth < textMinGapPx {
		return 0, 0
	}

	for i := 0; i < gapStart; i++ {
		if density[i] > 0 && density[i] < textContentFraction {
			return gapWidth, denseStart
		}
	}
	return 0, 0
}

func reverseFloats(in []float64) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
