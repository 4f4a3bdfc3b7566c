package photo

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubSource replays a fixed frame sequence. onFrame, when set, runs before
// each delivery, letting tests cancel mid-stream.
type stubSource struct {
	frames  []*Frame
	i       int
	openErr error
	onFrame func(i int)
}

func (s *stubSource) NextLowRes(ctx context.Context) (*Frame, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	if s.i >= len(s.frames) {
		return nil, io.EOF
	}
	if s.onFrame != nil {
		s.onFrame(s.i)
	}
	f := s.frames[s.i]
	s.i++
	return f, nil
}

func (s *stubSource) SeekFullRes(ctx context.Context, timestamp float64) (*Frame, error) {
	return nil, errors.New("not implemented")
}

// sequence builds a sampled stream at the default 0.5s step from repeated
// template frames.
func sequence(templates ...*Frame) []*Frame {
	frames := make([]*Frame, len(templates))
	for i, tpl := range templates {
		f := tpl.Clone()
		f.Index = i
		f.Timestamp = float64(i) * 0.5
		frames[i] = f
	}
	return frames
}

func repeat(f *Frame, n int) []*Frame {
	out := make([]*Frame, n)
	for i := range out {
		out[i] = f
	}
	return out
}

func borderlessOptions() Options {
	opts := DefaultOptions()
	opts.RequireBorders = false
	return opts
}

func TestScanTwoPhotosAcrossSceneChange(t *testing.T) {
	photoA := checkerFrame(64, 64, 0, 200)
	photoB := checkerFrame(64, 64, 200, 0) // inverse: huge MAD at the cut

	var templates []*Frame
	templates = append(templates, repeat(photoA, 10)...)
	templates = append(templates, repeat(photoB, 10)...)

	scanner, err := NewScanner(borderlessOptions(), zap.NewNop())
	require.NoError(t, err)

	candidates, err := scanner.Scan(context.Background(), &stubSource{frames: sequence(templates...)})
	require.NoError(t, err)

	require.Len(t, candidates, 2)
	assert.Equal(t, 0.0, candidates[0].Timestamp)
	assert.Equal(t, 5.0, candidates[1].Timestamp)
	assert.InDelta(t, 4.5, candidates[0].Segment.Duration(), 1e-9)
}

// Twenty sampled frames: ten of photo A, one transition frame, nine of
// photo B. The transition pair closes the first segment and, together with
// the pair entering B, makes a two-pair gap, so B is emitted unconditionally.
func TestScanTransitionFrameBetweenPhotos(t *testing.T) {
	photoA := checkerFrame(64, 64, 0, 200)
	photoB := checkerFrame(64, 64, 200, 0)
	transition := uniformFrame(64, 64, 100)

	var templates []*Frame
	templates = append(templates, repeat(photoA, 10)...)
	templates = append(templates, transition)
	templates = append(templates, repeat(photoB, 9)...)

	scanner, err := NewScanner(borderlessOptions(), zap.NewNop())
	require.NoError(t, err)

	candidates, err := scanner.Scan(context.Background(), &stubSource{frames: sequence(templates...)})
	require.NoError(t, err)

	require.Len(t, candidates, 2)
	assert.Equal(t, 0.0, candidates[0].Timestamp)
	assert.Equal(t, 5.5, candidates[1].Timestamp)
	assert.InDelta(t, 4.0, candidates[1].Segment.Duration(), 1e-9)
}

// The same photograph on both sides of a single low-MAD gap (a codec
// keyframe perturbing a continuous showing) is one photo, not two.
func TestScanSuppressesKeyframeArtifactDuplicate(t *testing.T) {
	photoA := checkerFrame(64, 64, 0, 200)
	photoA2 := photoA.Clone()
	for i := range photoA2.Pix {
		photoA2.Pix[i] += 2 // MAD 2.0 against photoA: non-static, below scene change
	}

	var templates []*Frame
	templates = append(templates, repeat(photoA, 6)...)
	templates = append(templates, repeat(photoA2, 6)...)

	scanner, err := NewScanner(borderlessOptions(), zap.NewNop())
	require.NoError(t, err)

	candidates, err := scanner.Scan(context.Background(), &stubSource{frames: sequence(templates...)})
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, 0.0, candidates[0].Timestamp)
}

func TestScanDropsShortSegment(t *testing.T) {
	photoA := checkerFrame(64, 64, 0, 200)
	photoB := checkerFrame(64, 64, 200, 0)

	// One static pair of A (0.5s run would need MinPhotoDuration frames),
	// then motion, then a long B run.
	opts := borderlessOptions()
	opts.MinPhotoDuration = 1.0

	var templates []*Frame
	templates = append(templates, repeat(photoA, 2)...) // 0.5s: too short
	templates = append(templates, repeat(photoB, 10)...)

	scanner, err := NewScanner(opts, zap.NewNop())
	require.NoError(t, err)

	candidates, err := scanner.Scan(context.Background(), &stubSource{frames: sequence(templates...)})
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, 1.0, candidates[0].Timestamp)
}

func TestScanDropsNearUniformSegment(t *testing.T) {
	blank := uniformFrame(64, 64, 128)

	scanner, err := NewScanner(borderlessOptions(), zap.NewNop())
	require.NoError(t, err)

	candidates, err := scanner.Scan(context.Background(),
		&stubSource{frames: sequence(repeat(blank, 10)...)})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestScanRequiresBordersWhenConfigured(t *testing.T) {
	borderless := checkerFrame(100, 100, 0, 200)
	bordered := borderedFrame(100, 100, 10, 255, 0, 200)

	var templates []*Frame
	templates = append(templates, repeat(borderless, 6)...)
	templates = append(templates, repeat(bordered, 6)...)

	scanner, err := NewScanner(DefaultOptions(), zap.NewNop())
	require.NoError(t, err)

	candidates, err := scanner.Scan(context.Background(), &stubSource{frames: sequence(templates...)})
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, 3.0, candidates[0].Timestamp)
	assert.Equal(t, PatternAllFour, DetectBorders(bordered, DefaultOptions()).Pattern)
}

func TestScanEmptyStream(t *testing.T) {
	scanner, err := NewScanner(borderlessOptions(), zap.NewNop())
	require.NoError(t, err)

	candidates, err := scanner.Scan(context.Background(), &stubSource{})
	assert.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestScanUnopenableStream(t *testing.T) {
	scanner, err := NewScanner(borderlessOptions(), zap.NewNop())
	require.NoError(t, err)

	_, err = scanner.Scan(context.Background(), &stubSource{openErr: errors.New("decoder exploded")})
	assert.ErrorIs(t, err, ErrStreamOpen)
}

func TestScanCancellationKeepsPartialResults(t *testing.T) {
	photoA := checkerFrame(64, 64, 0, 200)
	frames := sequence(repeat(photoA, 20)...)

	ctx, cancel := context.WithCancel(context.Background())
	src := &stubSource{frames: frames, onFrame: func(i int) {
		if i == 10 {
			cancel()
		}
	}}

	scanner, err := NewScanner(borderlessOptions(), zap.NewNop())
	require.NoError(t, err)

	candidates, err := scanner.Scan(ctx, src)
	assert.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, 0.0, candidates[0].Timestamp)
}

func TestNewScannerRejectsBadOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.StepTime = 0
	_, err := NewScanner(opts, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidStepTime)

	opts = DefaultOptions()
	opts.DetectAllBorders = false
	opts.DetectPillarbox = false
	opts.DetectLetterbox = false
	_, err = NewScanner(opts, zap.NewNop())
	assert.ErrorIs(t, err, ErrNoDetectorsEnabled)
}
