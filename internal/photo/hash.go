package photo

import (
	"fmt"

	"github.com/corona10/goimagehash"
)

// Hash is a coarse perceptual fingerprint of a frame: a 64-bit average hash,
// tolerant of rescaling and compression noise, compared by Hamming distance.
type Hash struct {
	h *goimagehash.ImageHash
}

// HashFrame fingerprints a frame from its luma plane.
func HashFrame(f *Frame) (Hash, error) {
	h, err := goimagehash.AverageHash(f.GrayImage())
	if err != nil {
		return Hash{}, fmt.Errorf("average hash: %w", err)
	}
	return Hash{h: h}, nil
}

// HashFromBits builds a hash from raw bits, for tests and replay.
func HashFromBits(bits uint64) Hash {
	return Hash{h: goimagehash.NewImageHash(bits, goimagehash.AHash)}
}

// Distance is the Hamming distance between two hashes. It is symmetric.
// Incomparable hashes count as maximally distant.
func (h Hash) Distance(other Hash) int {
	if h.h == nil || other.h == nil {
		return 64
	}
	d, err := h.h.Distance(other.h)
	if err != nil {
		return 64
	}
	return d
}

// DedupState is the dedup machine threaded through the scan loop as an
// explicit value: Idle when no hash is held, Holding otherwise. step is the
// hash of the most recent surviving segment, emitted the hash of the last
// photograph actually emitted; the pair survives exactly one low-MAD
// non-static frame pair, the signature of a codec keyframe briefly
// perturbing a continuous photograph.
type DedupState struct {
	step    *Hash
	emitted *Hash
}

// Holding reports whether a hash is currently held.
func (s DedupState) Holding() bool { return s.step != nil }

// Next advances the state for a surviving segment whose representative frame
// hashes to h, separated from the previous segment by gapPairs non-static
// frame pairs (gapMAD is the difference across a single-pair gap). It
// returns the successor state and whether the segment is a new photograph.
//
// The held hashes are cleared on a sustained gap (>= 2 pairs) or a
// single-pair gap above the scene-change threshold, forcing unconditional
// emission. Across a preserved single low-MAD gap the segment is a
// suppressed duplicate only when it is near the previous step hash (tight
// bound) and still near the last emitted photograph (wide bound).
func (s DedupState) Next(gapPairs int, gapMAD float64, h Hash) (DedupState, bool) {
	if gapPairs >= 2 || (gapPairs == 1 && gapMAD > SceneChangeMADThreshold) {
		s.step, s.emitted = nil, nil
	}

	emit := true
	if s.step != nil {
		duplicate := h.Distance(*s.step) <= HashTightThreshold &&
			s.emitted != nil && h.Distance(*s.emitted) <= HashWideThreshold
		emit = !duplicate
	}

	held := h
	s.step = &held
	if emit {
		s.emitted = &held
	}
	return s, emit
}
