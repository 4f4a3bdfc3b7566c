package photo

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// FrameSource supplies decoded frames. NextLowRes yields sequential frames
// from the low-resolution proxy stream, sampled at the configured step time,
// and returns io.EOF at end of stream. SeekFullRes decodes one frame of the
// full-resolution stream at the given timestamp; it may block for the
// duration of the seek. Returned frame buffers belong to the caller.
type FrameSource interface {
	NextLowRes(ctx context.Context) (*Frame, error)
	SeekFullRes(ctx context.Context, timestamp float64) (*Frame, error)
}

// ErrStreamOpen wraps a failure to read even a first frame. It is the only
// scan failure that propagates to the caller.
var ErrStreamOpen = errors.New("cannot open frame stream")

// Candidate is one distinct photograph found by the scan: the representative
// timestamp (start of its static segment), the segment metadata, and the
// perceptual hash used to deduplicate it.
type Candidate struct {
	Timestamp float64
	Segment   Segment
	Hash      Hash
}

// Scanner drives segment detection, border classification and hash
// deduplication over the low-res stream. One Scanner scans one video; it
// keeps no state between Scan calls.
type Scanner struct {
	opts Options
	log  *zap.Logger
}

// NewScanner validates the options and returns a scanner.
func NewScanner(opts Options, log *zap.Logger) (*Scanner, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{opts: opts, log: log}, nil
}

// repStats are the per-segment facts captured from the representative frame
// (the first stable frame) at segment open, so the frame buffer does not
// have to outlive the source's read loop.
type repStats struct {
	border  BorderSpec
	uniform bool
	hash    Hash
	hashErr error
}

func (s *Scanner) captureRep(f *Frame) repStats {
	stats := repStats{}
	stats.border = DetectBorders(f, s.opts)
	_, std := meanStd(f.Gray())
	stats.uniform = std < NearUniformStdThreshold
	stats.hash, stats.hashErr = HashFrame(f)
	return stats
}

// Scan consumes the low-res stream in presentation order and returns the
// ordered, deduplicated photo candidates. Cancellation is cooperative:
// between sampled frames the scan checks ctx and stops early, returning the
// candidates collected so far without error. An empty stream yields an empty
// list; only a stream that cannot produce a first frame is an error.
func (s *Scanner) Scan(ctx context.Context, src FrameSource) ([]Candidate, error) {
	prev, err := src.NextLowRes(ctx)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamOpen, err)
	}

	var (
		candidates []Candidate
		acc        SegmentAccumulator
		rep        repStats
		dedup      DedupState
		gapPairs   = 0
		gapMAD     = 0.0
	)

	closeSegment := func(seg *Segment) {
		if seg == nil {
			return
		}
		if cand, ok := s.judgeSegment(*seg, rep, &dedup, gapPairs, gapMAD); ok {
			candidates = append(candidates, cand)
		}
		gapPairs = 0
		gapMAD = 0
	}

	for {
		if ctx.Err() != nil {
			s.log.Info("scan cancelled, keeping partial results",
				zap.Int("candidates", len(candidates)))
			closeSegment(acc.Flush())
			return candidates, nil
		}

		cur, err := src.NextLowRes(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A mid-stream decode failure ends the pass with what we have.
			s.log.Warn("low-res stream ended early", zap.Error(err),
				zap.Float64("timestamp", prev.Timestamp))
			break
		}

		mad := MAD(prev, cur)
		if mad < StaticMADThreshold && !acc.Open() {
			rep = s.captureRep(prev)
		}
		if closed := acc.Observe(prev, cur, mad); closed != nil {
			closeSegment(closed)
		}
		if mad >= StaticMADThreshold {
			gapPairs++
			gapMAD = mad
		}
		prev = cur
	}

	closeSegment(acc.Flush())
	return candidates, nil
}

// judgeSegment applies the segment filters and the dedup transition, and
// logs why a segment was dropped so thresholds stay tunable.
func (s *Scanner) judgeSegment(seg Segment, rep repStats, dedup *DedupState, gapPairs int, gapMAD float64) (Candidate, bool) {
	log := s.log.With(
		zap.Float64("start", seg.Start),
		zap.Float64("duration", seg.Duration()),
		zap.Float64("avg_mad", seg.AvgMAD()),
	)

	if seg.Duration() < s.opts.MinPhotoDuration {
		log.Debug("segment dropped: shorter than min photo duration",
			zap.Float64("min_photo_duration", s.opts.MinPhotoDuration))
		return Candidate{}, false
	}
	if s.opts.RequireBorders && !rep.border.Found() {
		log.Debug("segment dropped: no border pattern")
		return Candidate{}, false
	}
	if !s.opts.RequireBorders && seg.AvgMAD() > BorderlessMADThreshold {
		log.Debug("segment dropped: average MAD above borderless gate",
			zap.Float64("threshold", BorderlessMADThreshold))
		return Candidate{}, false
	}
	if rep.uniform {
		log.Debug("segment dropped: near-uniform frame")
		return Candidate{}, false
	}
	if rep.hashErr != nil {
		log.Warn("segment dropped: hashing failed", zap.Error(rep.hashErr))
		return Candidate{}, false
	}

	next, emit := dedup.Next(gapPairs, gapMAD, rep.hash)
	*dedup = next
	if !emit {
		log.Debug("segment suppressed as duplicate",
			zap.Int("gap_pairs", gapPairs), zap.Float64("gap_mad", gapMAD))
		return Candidate{}, false
	}

	log.Debug("photo candidate", zap.String("border", rep.border.Pattern.String()))
	return Candidate{Timestamp: seg.Start, Segment: seg, Hash: rep.hash}, true
}
