package photo

import "errors"

// Reference thresholds for the scan classifiers. The hash thresholds are
// calibrated against the 64-bit average hash; substituting a different
// fingerprint requires recalibrating them.
const (
	// StaticMADThreshold separates a held photograph from motion: a sampled
	// frame pair with MAD below it is static.
	StaticMADThreshold = 0.5

	// BorderlessMADThreshold gates borderless segments on their average MAD.
	// Truly static photographs average 0.001-0.22; a person holding still
	// while speaking averages 0.27-0.48.
	BorderlessMADThreshold = 0.25

	// SceneChangeMADThreshold distinguishes a real scene change (large pixel
	// jump) from a codec keyframe artifact (0.5-2.0) on a single-pair gap.
	SceneChangeMADThreshold = 5.0

	// HashTightThreshold applies step-to-step across a single low-MAD gap:
	// the same photograph spanning a keyframe hiccup hashes within 0-2 bits.
	HashTightThreshold = 3

	// HashWideThreshold applies against the last emitted photo hash.
	HashWideThreshold = 10
)

// Options holds the recognized detection settings. Zero values are not
// usable; start from DefaultOptions.
type Options struct {
	// StepTime is the interval in seconds between sampled low-res frames.
	StepTime float64

	// MinPhotoDuration discards static segments shorter than this many seconds.
	MinPhotoDuration float64

	// MinPhotoPct is the minimum photo interior area as a percentage of the
	// full frame area.
	MinPhotoPct float64

	// BorderPx is the width of the clean border re-applied after trimming.
	BorderPx int

	// IncludeText keeps a detected text/watermark region next to the photo
	// instead of cropping it away.
	IncludeText bool

	// RequireBorders makes border geometry mandatory for a segment to become
	// a candidate. When false, the borderless average-MAD gate applies instead.
	RequireBorders bool

	DetectAllBorders bool
	DetectPillarbox  bool
	DetectLetterbox  bool

	// BorderProbePx is the thickness of the edge strips sampled by border
	// pattern detection.
	BorderProbePx int
}

// DefaultOptions returns the reference configuration.
func DefaultOptions() Options {
	return Options{
		StepTime:         0.5,
		MinPhotoDuration: 0.5,
		MinPhotoPct:      25,
		BorderPx:         5,
		IncludeText:      false,
		RequireBorders:   true,
		DetectAllBorders: true,
		DetectPillarbox:  true,
		DetectLetterbox:  true,
		BorderProbePx:    5,
	}
}

var (
	ErrNoDetectorsEnabled = errors.New("borders required but all border pattern detectors are disabled")
	ErrInvalidStepTime    = errors.New("step time must be positive")
	ErrInvalidPhotoPct    = errors.New("min photo percentage must be in (0, 100]")
)

// Validate reports configuration errors that would make every candidate fail.
// These are fatal at startup, before any frame is processed.
func (o Options) Validate() error {
	if o.StepTime <= 0 {
		return ErrInvalidStepTime
	}
	if o.MinPhotoPct <= 0 || o.MinPhotoPct > 100 {
		return ErrInvalidPhotoPct
	}
	if o.RequireBorders && !o.DetectAllBorders && !o.DetectPillarbox && !o.DetectLetterbox {
		return ErrNoDetectorsEnabled
	}
	return nil
}
