package photo

// BorderPattern tags the uniform-border layout found on a frame.
type BorderPattern int

const (
	PatternNone BorderPattern = iota
	PatternAllFour
	PatternPillarbox
	PatternLetterbox
)

func (p BorderPattern) String() string {
	switch p {
	case PatternAllFour:
		return "all-four"
	case PatternPillarbox:
		return "pillarbox"
	case PatternLetterbox:
		return "letterbox"
	default:
		return "none"
	}
}

// BorderSpec is the result of border detection: the matched pattern, the
// measured border thickness per side, and the sampled border luma.
type BorderSpec struct {
	Pattern BorderPattern
	Top     int
	Bottom  int
	Left    int
	Right   int
	Color   uint8
}

// Found reports whether any border pattern matched.
func (s BorderSpec) Found() bool { return s.Pattern != PatternNone }

const (
	// allFourStdThreshold allows slight compression noise in the probe strips
	// while still rejecting dark video scenes with busy edges.
	allFourStdThreshold = 5.0

	// boxStdThreshold is the stricter uniformity bound for pillarbox and
	// letterbox strips, which must additionally be truly black or white.
	boxStdThreshold = 1.0

	// Color family bounds for the all-four consistency check.
	nearBlackMeanMax = 64.0
	nearWhiteMeanMin = 192.0

	// Pillarbox/letterbox strips must be saturated black (every pixel < 3)
	// or saturated white (every pixel > 252).
	blackPixelMax = 3
	whitePixelMin = 252

	// thicknessStdThreshold bounds row/column std when measuring how deep a
	// detected border extends.
	thicknessStdThreshold = 10.0
)

type borderStrip struct {
	mean float64
	std  float64
	min  uint8
	max  uint8
}

func stripStats(values []uint8) borderStrip {
	mean, std := meanStd(values)
	s := borderStrip{mean: mean, std: std, min: 255, max: 0}
	for _, v := range values {
		if v < s.min {
			s.min = v
		}
		if v > s.max {
			s.max = v
		}
	}
	return s
}

// DetectBorders classifies a frame's edges against the enabled border
// patterns in fixed priority order: all-four, then pillarbox, then letterbox.
// The first matching pattern wins. No pattern match yields PatternNone.
func DetectBorders(f *Frame, opts Options) BorderSpec {
	probe := opts.BorderProbePx
	if probe < 1 {
		probe = 1
	}
	gray := f.Gray()
	w, h := f.Width, f.Height
	if w <= 2*probe || h <= 2*probe {
		return BorderSpec{Pattern: PatternNone}
	}

	left := stripStats(sideStrip(gray, w, h, 0, probe, true))
	right := stripStats(sideStrip(gray, w, h, w-probe, w, true))
	top := stripStats(sideStrip(gray, w, h, 0, probe, false))
	bottom := stripStats(sideStrip(gray, w, h, h-probe, h, false))

	if opts.DetectAllBorders && allFourMatch(left, right, top, bottom) {
		return BorderSpec{
			Pattern: PatternAllFour,
			Top:     measureThickness(gray, w, h, sideTop),
			Bottom:  measureThickness(gray, w, h, sideBottom),
			Left:    measureThickness(gray, w, h, sideLeft),
			Right:   measureThickness(gray, w, h, sideRight),
			Color:   uint8((left.mean + right.mean + top.mean + bottom.mean) / 4),
		}
	}
	if opts.DetectPillarbox && boxMatch(left, right) {
		return BorderSpec{
			Pattern: PatternPillarbox,
			Left:    measureThickness(gray, w, h, sideLeft),
			Right:   measureThickness(gray, w, h, sideRight),
			Color:   uint8((left.mean + right.mean) / 2),
		}
	}
	if opts.DetectLetterbox && boxMatch(top, bottom) {
		return BorderSpec{
			Pattern: PatternLetterbox,
			Top:     measureThickness(gray, w, h, sideTop),
			Bottom:  measureThickness(gray, w, h, sideBottom),
			Color:   uint8((top.mean + bottom.mean) / 2),
		}
	}
	return BorderSpec{Pattern: PatternNone}
}

// allFourMatch requires every strip to be uniform and all four to sit in the
// same color family, so a dark scene next to a bright caption bar does not
// pass as a bordered photograph.
func allFourMatch(left, right, top, bottom borderStrip) bool {
	for _, s := range []borderStrip{left, right, top, bottom} {
		if s.std > allFourStdThreshold {
			return false
		}
	}
	allBlack := left.mean <= nearBlackMeanMax && right.mean <= nearBlackMeanMax &&
		top.mean <= nearBlackMeanMax && bottom.mean <= nearBlackMeanMax
	allWhite := left.mean >= nearWhiteMeanMin && right.mean >= nearWhiteMeanMin &&
		top.mean >= nearWhiteMeanMin && bottom.mean >= nearWhiteMeanMin
	return allBlack || allWhite
}

// boxMatch checks the two opposing strips of a pillarbox or letterbox: very
// uniform and saturated black or saturated white on both sides.
func boxMatch(a, b borderStrip) bool {
	if a.std > boxStdThreshold || b.std > boxStdThreshold {
		return false
	}
	bothBlack := a.max < blackPixelMax && b.max < blackPixelMax
	bothWhite := a.min > whitePixelMin && b.min > whitePixelMin
	return bothBlack || bothWhite
}

// sideStrip extracts a vertical (cols [from,to)) or horizontal (rows
// [from,to)) edge strip as a flat slice.
func sideStrip(gray []uint8, w, h, from, to int, vertical bool) []uint8 {
	if vertical {
		strip := make([]uint8, 0, (to-from)*h)
		for y := 0; y < h; y++ {
			strip = append(strip, gray[y*w+from:y*w+to]...)
		}
		return strip
	}
	return gray[from*w : to*w]
}

type side int

const (
	sideTop side = iota
	sideBottom
	sideLeft
	sideRight
)

// measureThickness scans inward from one edge while whole rows/columns stay
// uniform, returning how deep the border extends. Capped at half the span so
// a fully uniform frame does not report an infinite border.
func measureThickness(gray []uint8, w, h int, s side) int {
	switch s {
	case sideTop:
		for y := 0; y < h/2; y++ {
			if _, std := meanStd(grayRow(gray, w, y)); std > thicknessStdThreshold {
				return y
			}
		}
		return h / 2
	case sideBottom:
		for y := 0; y < h/2; y++ {
			if _, std := meanStd(grayRow(gray, w, h-1-y)); std > thicknessStdThreshold {
				return y
			}
		}
		return h / 2
	case sideLeft:
		for x := 0; x < w/2; x++ {
			if _, std := meanStd(grayCol(gray, w, h, x)); std > thicknessStdThreshold {
				return x
			}
		}
		return w / 2
	default:
		for x := 0; x < w/2; x++ {
			if _, std := meanStd(grayCol(gray, w, h, w-1-x)); std > thicknessStdThreshold {
				return x
			}
		}
		return w / 2
	}
}
