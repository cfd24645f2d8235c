// Package imagediff computes pixel-level and perceptual differences
// between a reference design image and an actual rendered capture, and
// clusters the differing pixels into severity-ranked regions.
package imagediff

import (
	"fmt"
	"image"

	"github.com/corona10/goimagehash"
)

// DimensionMismatchError reports a reference/actual size disagreement.
// Mismatched images are never resized or cropped; the mismatch signals a
// stale reference asset or a misconfigured viewport upstream.
type DimensionMismatchError struct {
	RefWidth, RefHeight       int
	ActualWidth, ActualHeight int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("image dimensions differ: reference %dx%d vs actual %dx%d",
		e.RefWidth, e.RefHeight, e.ActualWidth, e.ActualHeight)
}

// Config holds the comparison tunables.
type Config struct {
	// PixelThreshold is the normalized per-channel difference above
	// which a pixel counts as differing. Range (0,1).
	PixelThreshold float64 `json:"pixel_threshold" mapstructure:"pixel_threshold"`

	// PerceptualEpsilon is the perception-hash hamming distance at or
	// below which the whole comparison short-circuits to "identical".
	// 0 disables the prefilter. Raising it trades exactness for speed:
	// differences below perceptual sensitivity are masked.
	PerceptualEpsilon int `json:"perceptual_epsilon" mapstructure:"perceptual_epsilon"`

	// MergeDistance is the chebyshev distance within which differing
	// pixels join the same region.
	MergeDistance int `json:"merge_distance" mapstructure:"merge_distance"`

	// Severity cutoffs by region pixel count: a region is minor below
	// MinorLimit, moderate below ModerateLimit, major below MajorLimit,
	// critical otherwise.
	MinorLimit    int `json:"minor_limit" mapstructure:"minor_limit"`
	ModerateLimit int `json:"moderate_limit" mapstructure:"moderate_limit"`
	MajorLimit    int `json:"major_limit" mapstructure:"major_limit"`
}

// DefaultConfig returns the standard comparison tunables.
func DefaultConfig() Config {
	return Config{
		PixelThreshold:    0.1,
		PerceptualEpsilon: 0,
		MergeDistance:     2,
		MinorLimit:        64,
		ModerateLimit:     1024,
		MajorLimit:        16384,
	}
}

// Validate checks the tunables before any comparison runs.
func (c Config) Validate() error {
	if c.PixelThreshold <= 0 || c.PixelThreshold >= 1 {
		return fmt.Errorf("pixel_threshold must be in (0,1), got %g", c.PixelThreshold)
	}
	if c.PerceptualEpsilon < 0 {
		return fmt.Errorf("perceptual_epsilon must be >= 0, got %d", c.PerceptualEpsilon)
	}
	if c.MergeDistance < 1 {
		return fmt.Errorf("merge_distance must be >= 1, got %d", c.MergeDistance)
	}
	if c.MinorLimit <= 0 || c.ModerateLimit <= c.MinorLimit || c.MajorLimit <= c.ModerateLimit {
		return fmt.Errorf("severity limits must be ascending positive values, got %d/%d/%d",
			c.MinorLimit, c.ModerateLimit, c.MajorLimit)
	}
	return nil
}

// Result holds the per-pixel difference mask and the clustered regions
// for one reference/actual pair. Regions are disjoint and together
// account for every differing pixel.
type Result struct {
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	DiffPixels int      `json:"diff_pixels"`
	Regions    []Region `json:"regions"`

	// Mask is a row-major bitset, one bit per pixel, set where the
	// pixel differs.
	Mask []byte `json:"mask"`
}

// Identical reports whether no pixel differed.
func (r *Result) Identical() bool { return r.DiffPixels == 0 }

// TotalPixels returns the compared pixel count.
func (r *Result) TotalPixels() int { return r.Width * r.Height }

// Differs reports whether the pixel at (x, y) differed. Coordinates are
// zero-based regardless of the source images' bounds origin.
func (r *Result) Differs(x, y int) bool {
	if x < 0 || y < 0 || x >= r.Width || y >= r.Height {
		return false
	}
	i := y*r.Width + x
	return r.Mask[i>>3]&(1<<(i&7)) != 0
}

func (r *Result) setDiff(x, y int) {
	i := y*r.Width + x
	r.Mask[i>>3] |= 1 << (i & 7)
}

// Compare classifies every pixel of actual against ref and clusters the
// differing pixels. ref and actual must have equal dimensions.
//
// When cfg.PerceptualEpsilon > 0, a perception-hash prefilter may
// short-circuit near-duplicate pairs to an empty result without the
// per-pixel pass.
func Compare(ref, actual image.Image, cfg Config) (*Result, error) {
	rb, ab := ref.Bounds(), actual.Bounds()
	if rb.Dx() != ab.Dx() || rb.Dy() != ab.Dy() {
		return nil, &DimensionMismatchError{
			RefWidth: rb.Dx(), RefHeight: rb.Dy(),
			ActualWidth: ab.Dx(), ActualHeight: ab.Dy(),
		}
	}

	w, h := rb.Dx(), rb.Dy()
	res := &Result{
		Width:   w,
		Height:  h,
		Regions: []Region{},
		Mask:    make([]byte, (w*h+7)/8),
	}
	if w == 0 || h == 0 {
		return res, nil
	}

	if cfg.PerceptualEpsilon > 0 {
		if near, err := perceptuallyClose(ref, actual, cfg.PerceptualEpsilon); err == nil && near {
			return res, nil
		}
		// A hashing failure falls through to the exact comparison.
	}

	// Per-pixel pass. Threshold is applied per channel in normalized
	// [0,1] space; alpha participates like the color channels.
	limit := uint32(cfg.PixelThreshold * 0xffff)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r1, g1, b1, a1 := ref.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
			r2, g2, b2, a2 := actual.At(ab.Min.X+x, ab.Min.Y+y).RGBA()
			if delta(r1, r2) > limit || delta(g1, g2) > limit ||
				delta(b1, b2) > limit || delta(a1, a2) > limit {
				res.setDiff(x, y)
				res.DiffPixels++
			}
		}
	}

	res.Regions = clusterRegions(res, cfg)
	return res, nil
}

func perceptuallyClose(ref, actual image.Image, epsilon int) (bool, error) {
	refHash, err := goimagehash.PerceptionHash(ref)
	if err != nil {
		return false, fmt.Errorf("hash reference: %w", err)
	}
	actHash, err := goimagehash.PerceptionHash(actual)
	if err != nil {
		return false, fmt.Errorf("hash actual: %w", err)
	}
	dist, err := refHash.Distance(actHash)
	if err != nil {
		return false, fmt.Errorf("hash distance: %w", err)
	}
	return dist <= epsilon, nil
}

func delta(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
