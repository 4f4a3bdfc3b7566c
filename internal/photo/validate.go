package photo

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// RejectionReason enumerates why a full-res frame failed validation. A frame
// with no rejection reason is accepted.
type RejectionReason string

const (
	RejectTooSmall            RejectionReason = "too-small"
	RejectNearUniform         RejectionReason = "near-uniform"
	RejectScreenshotUI        RejectionReason = "screenshot-ui"
	RejectScreenshotFlatColor RejectionReason = "screenshot-flat-color"
)

// Rejection names the stage that rejected a frame and the measured value
// that triggered it, so the thresholds can be tuned from logs.
type Rejection struct {
	Reason RejectionReason
	Detail string
}

func (r *Rejection) String() string {
	return fmt.Sprintf("%s (%s)", r.Reason, r.Detail)
}

// NearUniformStdThreshold is the grayscale standard deviation below which a
// frame is a blank/solid screen. Codec noise on a solid frame measures 1-3;
// even the darkest real photograph exceeds 15.
const NearUniformStdThreshold = 5.0

// Thresholds collects the validation knobs in one reviewable place. All the
// checks are pure functions of frame statistics and this struct.
type Thresholds struct {
	MinPhotoPct    float64 // interior area as % of full frame area
	NearUniformStd float64 // grayscale std below which a frame is blank

	SampleSize int // downscale edge for the screenshot checks
	MarginPx   int // cropped off the downscale to skip the added border

	LineCount       int     // stage A: minimum count of straight edges
	WhitePct        float64 // stage A: minimum percentage of near-white pixels
	WhiteMin        uint8   // stage A: brightness above which a pixel is "white"
	ChannelDiff     float64 // stage A: maximum mean pairwise channel difference
	EdgeGradient    int     // stage A: luma step that counts as an edge pixel
	LineCoveragePct int     // stage A: % of span an edge run must cover to be a line

	ColorCount    int     // stage B: minimum unique quantized colors
	GrayscaleDiff float64 // stage B skipped below this mean channel difference
}

// DefaultThresholds returns the reference validation thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinPhotoPct:     25,
		NearUniformStd:  NearUniformStdThreshold,
		SampleSize:      128,
		MarginPx:        8,
		LineCount:       10,
		WhitePct:        30,
		WhiteMin:        240,
		ChannelDiff:     15,
		EdgeGradient:    40,
		LineCoveragePct: 55,
		ColorCount:      100,
		GrayscaleDiff:   10,
	}
}

// Validator decides acceptance of a full-resolution, border-trimmed frame.
// Checks run cheapest and most decisive first: area, near-uniform, then the
// two screenshot stages. No side effects; callers log the rejection.
type Validator struct {
	th Thresholds
}

// NewValidator builds a validator. MinPhotoPct from the options overrides
// the threshold default.
func NewValidator(opts Options) *Validator {
	th := DefaultThresholds()
	th.MinPhotoPct = opts.MinPhotoPct
	return &Validator{th: th}
}

// NewValidatorWithThresholds builds a validator with explicit thresholds.
func NewValidatorWithThresholds(th Thresholds) *Validator {
	return &Validator{th: th}
}

// Validate returns nil to accept the frame, or the first rejection.
// fullFrameArea is the area of the original (untrimmed) video frame.
func (v *Validator) Validate(f *Frame, fullFrameArea int) *Rejection {
	if r := checkArea(f.Width, f.Height, fullFrameArea, v.th.MinPhotoPct); r != nil {
		return r
	}
	gray := f.Gray()
	if r := checkNearUniform(gray, v.th.NearUniformStd); r != nil {
		return r
	}

	small := downscale(f, v.th.SampleSize, v.th.MarginPx)
	stats := computeSampleStats(small, v.th)

	if r := checkScreenshotUI(stats, v.th); r != nil {
		return r
	}
	return checkScreenshotFlatColor(stats, v.th)
}

func checkArea(w, h, fullFrameArea int, minPct float64) *Rejection {
	if fullFrameArea <= 0 {
		return nil
	}
	pct := float64(w*h) / float64(fullFrameArea) * 100
	if pct < minPct {
		return &Rejection{
			Reason: RejectTooSmall,
			Detail: fmt.Sprintf("%dx%d is %.1f%% of frame, need %.0f%%", w, h, pct, minPct),
		}
	}
	return nil
}

func checkNearUniform(gray []uint8, stdThreshold float64) *Rejection {
	_, std := meanStd(gray)
	if std < stdThreshold {
		return &Rejection{
			Reason: RejectNearUniform,
			Detail: fmt.Sprintf("grayscale std %.2f < %.2f", std, stdThreshold),
		}
	}
	return nil
}

// sampleStats are the downscaled-image statistics shared by both screenshot
// stages.
type sampleStats struct {
	lineCount   int
	whitePct    float64
	channelDiff float64
	colorCount  int
}

// downscale resizes the frame to sample x sample and crops the margin. A
// frame already at sample size skips the resample so synthetic inputs stay
// pixel-exact.
func downscale(f *Frame, sample, margin int) *image.NRGBA {
	img := f.ToImage()
	if f.Width != sample || f.Height != sample {
		img = imaging.Resize(img, sample, sample, imaging.Box)
	}
	if margin > 0 && sample > 2*margin {
		img = imaging.Crop(img, image.Rect(margin, margin, sample-margin, sample-margin))
	}
	return img
}

func computeSampleStats(img *image.NRGBA, th Thresholds) sampleStats {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	n := w * h
	if n == 0 {
		return sampleStats{}
	}

	gray := make([]uint8, n)
	white := 0
	var diffSum float64
	colors := make(map[uint32]struct{}, n)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			r := int(img.Pix[i])
			g := int(img.Pix[i+1])
			bl := int(img.Pix[i+2])

			lum := uint8((299*r + 587*g + 114*bl) / 1000)
			gray[y*w+x] = lum
			if lum > th.WhiteMin {
				white++
			}
			diffSum += float64(abs(r-g)+abs(r-bl)+abs(g-bl)) / 3

			packed := uint32(r>>3)<<10 | uint32(g>>3)<<5 | uint32(bl>>3)
			colors[packed] = struct{}{}
		}
	}

	return sampleStats{
		lineCount:   countStraightLines(gray, w, h, th),
		whitePct:    float64(white) / float64(n) * 100,
		channelDiff: diffSum / float64(n),
		colorCount:  len(colors),
	}
}

// countStraightLines counts near-horizontal and near-vertical straight edges:
// rows/columns where a strong luma gradient runs across most of the span.
// UI chrome (nav bars, cards, buttons) is line-rich; organic photographs
// are not.
func countStraightLines(gray []uint8, w, h int, th Thresholds) int {
	lines := 0

	minRun := w * th.LineCoveragePct / 100
	prevRowHit := false
	for y := 0; y+1 < h; y++ {
		run, best := 0, 0
		for x := 0; x < w; x++ {
			if abs(int(gray[(y+1)*w+x])-int(gray[y*w+x])) > th.EdgeGradient {
				run++
				if run > best {
					best = run
				}
			} else {
				run = 0
			}
		}
		if best >= minRun && !prevRowHit {
			lines++
			prevRowHit = true
		} else if best < minRun {
			prevRowHit = false
		}
	}

	minRun = h * th.LineCoveragePct / 100
	prevColHit := false
	for x := 0; x+1 < w; x++ {
		run, best := 0, 0
		for y := 0; y < h; y++ {
			if abs(int(gray[y*w+x+1])-int(gray[y*w+x])) > th.EdgeGradient {
				run++
				if run > best {
					best = run
				}
			} else {
				run = 0
			}
		}
		if best >= minRun && !prevColHit {
			lines++
			prevColHit = true
		} else if best < minRun {
			prevColHit = false
		}
	}

	return lines
}

// checkScreenshotUI fires only when all three signals agree: line-rich,
// white-heavy, and color-flat. Requiring all three avoids false positives on
// high-key black-and-white photographs (flat but not line-rich) and backlit
// sky photographs (white-heavy but colorful).
func checkScreenshotUI(st sampleStats, th Thresholds) *Rejection {
	if st.lineCount >= th.LineCount && st.whitePct >= th.WhitePct && st.channelDiff < th.ChannelDiff {
		return &Rejection{
			Reason: RejectScreenshotUI,
			Detail: fmt.Sprintf("%d straight edges, %.0f%% white, channel diff %.1f",
				st.lineCount, st.whitePct, st.channelDiff),
		}
	}
	return nil
}

// checkScreenshotFlatColor counts unique colors after quantizing to 32
// levels per channel. Effectively grayscale images are skipped: a B&W
// photograph and a B&W screenshot are not separable by color count.
func checkScreenshotFlatColor(st sampleStats, th Thresholds) *Rejection {
	if st.channelDiff < th.GrayscaleDiff {
		return nil
	}
	if st.colorCount < th.ColorCount {
		return &Rejection{
			Reason: RejectScreenshotFlatColor,
			Detail: fmt.Sprintf("%d unique colors < %d", st.colorCount, th.ColorCount),
		}
	}
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
