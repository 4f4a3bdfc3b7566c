package photo

// Segment is a contiguous run of sampled frames classified as static, i.e.
// one photograph held motionless on screen.
type Segment struct {
	StartIndex int // sampled index of the first frame in the run
	EndIndex   int // sampled index of the last frame in the run
	Start      float64
	End        float64
	Diffs      []float64 // MAD of each adjacent frame pair inside the run
}

// Duration is the time the photograph stays on screen.
func (s Segment) Duration() float64 { return s.End - s.Start }

// AvgMAD is the average difference across the run's internal frame pairs.
// Low values mean a truly static photograph; residual motion (a person
// holding still) averages noticeably higher.
func (s Segment) AvgMAD() float64 {
	if len(s.Diffs) == 0 {
		return 0
	}
	var sum float64
	for _, d := range s.Diffs {
		sum += d
	}
	return sum / float64(len(s.Diffs))
}

// SegmentAccumulator partitions a sampled frame stream into static segments.
// Feed it one classified frame pair at a time; closed segments come back from
// Observe, and Flush returns the trailing open segment at stream end.
type SegmentAccumulator struct {
	open *Segment
}

// Observe records the pair (prev, cur) with the given MAD. When the pair is
// non-static it closes any open segment and returns it; otherwise it returns
// nil and the segment keeps growing.
func (a *SegmentAccumulator) Observe(prev, cur *Frame, mad float64) *Segment {
	if mad < StaticMADThreshold {
		if a.open == nil {
			a.open = &Segment{
				StartIndex: prev.Index,
				Start:      prev.Timestamp,
			}
		}
		a.open.EndIndex = cur.Index
		a.open.End = cur.Timestamp
		a.open.Diffs = append(a.open.Diffs, mad)
		return nil
	}
	return a.closeOpen()
}

// Flush closes and returns the segment still open at end of stream, if any.
func (a *SegmentAccumulator) Flush() *Segment { return a.closeOpen() }

func (a *SegmentAccumulator) closeOpen() *Segment {
	seg := a.open
	a.open = nil
	return seg
}

// Open reports whether a segment is currently being accumulated.
func (a *SegmentAccumulator) Open() bool { return a.open != nil }

// KeepSegment applies the segment quality filters. Segments shorter than the
// minimum duration are motion artifacts, not held photographs. Without
// required borders, the average-MAD gate rejects subjects that merely hold
// still briefly; with borders required the geometry alone is a strong enough
// filter and the gate is skipped.
func KeepSegment(s Segment, opts Options) bool {
	if s.Duration() < opts.MinPhotoDuration {
		return false
	}
	if !opts.RequireBorders && s.AvgMAD() > BorderlessMADThreshold {
		return false
	}
	return true
}

// FilterSegments returns the segments that pass KeepSegment, preserving
// order. Idempotent: filtering already-filtered output changes nothing.
func FilterSegments(segments []Segment, opts Options) []Segment {
	kept := make([]Segment, 0, len(segments))
	for _, s := range segments {
		if KeepSegment(s, opts) {
			kept = append(kept, s)
		}
	}
	return kept
}
