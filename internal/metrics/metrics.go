// Package metrics derives quantitative quality scores from a pixel
// diff: accuracy, SSIM, PSNR, error distribution statistics, and a
// composite quality score with a confidence estimate.
package metrics

import (
	"fmt"
	"image"
	"math"

	"github.com/standardbeagle/pixelgate/internal/imagediff"
)

// Config holds the scoring tunables. The quality-score weights are
// deliberately configuration, not hidden constants.
type Config struct {
	// SSIMWindow is the side length of the local SSIM window in pixels.
	SSIMWindow int `json:"ssim_window" mapstructure:"ssim_window"`

	// AccuracyWeight and SSIMWeight blend pixel accuracy and SSIM into
	// the quality score; they must sum to 1.
	AccuracyWeight float64 `json:"accuracy_weight" mapstructure:"accuracy_weight"`
	SSIMWeight     float64 `json:"ssim_weight" mapstructure:"ssim_weight"`

	// FragmentationWeight scales the penalty for scattered differences:
	// many small regions score worse than one large region of equal
	// total area.
	FragmentationWeight float64 `json:"fragmentation_weight" mapstructure:"fragmentation_weight"`

	// SampleThreshold is the pixel count above which the heavy metrics
	// (SSIM, MSE) run on a sampled grid to bound latency.
	SampleThreshold int `json:"sample_threshold" mapstructure:"sample_threshold"`
}

// DefaultConfig returns the standard scoring tunables.
func DefaultConfig() Config {
	return Config{
		SSIMWindow:          8,
		AccuracyWeight:      0.6,
		SSIMWeight:          0.4,
		FragmentationWeight: 0.15,
		SampleThreshold:     4 << 20, // ~4M pixels
	}
}

// Validate checks the tunables before any computation runs.
func (c Config) Validate() error {
	if c.SSIMWindow < 2 {
		return fmt.Errorf("ssim_window must be >= 2, got %d", c.SSIMWindow)
	}
	if c.AccuracyWeight < 0 || c.SSIMWeight < 0 {
		return fmt.Errorf("score weights must be non-negative")
	}
	if math.Abs(c.AccuracyWeight+c.SSIMWeight-1) > 1e-9 {
		return fmt.Errorf("accuracy_weight + ssim_weight must equal 1, got %g",
			c.AccuracyWeight+c.SSIMWeight)
	}
	if c.FragmentationWeight < 0 || c.FragmentationWeight > 1 {
		return fmt.Errorf("fragmentation_weight must be in [0,1], got %g", c.FragmentationWeight)
	}
	if c.SampleThreshold <= 0 {
		return fmt.Errorf("sample_threshold must be positive, got %d", c.SampleThreshold)
	}
	return nil
}

// Report holds the derived quality metrics for one comparison.
// QualityScore is a pure function of accuracy, SSIM, and fragmentation;
// it is never set independently.
type Report struct {
	PixelAccuracy float64  `json:"pixel_accuracy"` // [0,100]
	SSIM          float64  `json:"ssim"`           // [0,1]
	PSNR          Decibels `json:"psnr"`           // +Inf when identical

	RegionCount   int     `json:"region_count"`
	Fragmentation float64 `json:"fragmentation"` // [0,1]

	MeanError     float64 `json:"mean_error"`     // normalized [0,1]
	ErrorVariance float64 `json:"error_variance"`

	QualityScore float64 `json:"quality_score"` // [0,100]
	Confidence   float64 `json:"confidence"`    // [0,1]
	Sampled      bool    `json:"sampled"`
}

// Compute derives a Report from a diff result and the image pair it was
// computed from. ref and actual must match the diff's dimensions.
func Compute(diff *imagediff.Result, ref, actual image.Image, cfg Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("metrics config: %w", err)
	}
	rb := ref.Bounds()
	if rb.Dx() != diff.Width || rb.Dy() != diff.Height {
		return nil, fmt.Errorf("diff is %dx%d but reference is %dx%d",
			diff.Width, diff.Height, rb.Dx(), rb.Dy())
	}
	ab := actual.Bounds()
	if ab.Dx() != diff.Width || ab.Dy() != diff.Height {
		return nil, &imagediff.DimensionMismatchError{
			RefWidth: diff.Width, RefHeight: diff.Height,
			ActualWidth: ab.Dx(), ActualHeight: ab.Dy(),
		}
	}

	total := diff.TotalPixels()
	if total == 0 {
		return nil, fmt.Errorf("cannot score an empty image")
	}

	// Sampling stride for the luminance-based metrics. The per-pixel
	// classification in diff is always exhaustive; only SSIM and the
	// error distribution are sampled.
	stride := 1
	if total > cfg.SampleThreshold {
		stride = int(math.Ceil(math.Sqrt(float64(total) / float64(cfg.SampleThreshold))))
	}
	sampled := stride > 1

	refLuma := luminance(ref, diff.Width, diff.Height, stride)
	actLuma := luminance(actual, diff.Width, diff.Height, stride)

	mean, variance, mse := errorStats(refLuma, actLuma)
	ssim := ssimIndex(refLuma, actLuma, cfg.SSIMWindow)

	psnr := Decibels(math.Inf(1))
	if mse > 0 {
		psnr = Decibels(10 * math.Log10(255*255/mse))
	}

	accuracy := float64(total-diff.DiffPixels) / float64(total) * 100
	frag := fragmentation(diff)

	score := cfg.AccuracyWeight*accuracy + cfg.SSIMWeight*100*ssim - cfg.FragmentationWeight*100*frag
	score = clamp(score, 0, 100)

	return &Report{
		PixelAccuracy: accuracy,
		SSIM:          ssim,
		PSNR:          psnr,
		RegionCount:   len(diff.Regions),
		Fragmentation: frag,
		MeanError:     mean,
		ErrorVariance: variance,
		QualityScore:  score,
		Confidence:    confidence(diff, refLuma, sampled, stride),
		Sampled:       sampled,
	}, nil
}

// fragmentation measures how scattered the differing pixels are:
// 0 for no differences or one connected region, approaching 1 as the
// same diff area splinters into many small regions.
func fragmentation(diff *imagediff.Result) float64 {
	if diff.DiffPixels == 0 || len(diff.Regions) == 0 {
		return 0
	}
	largest := 0
	for _, r := range diff.Regions {
		if r.PixelCount > largest {
			largest = r.PixelCount
		}
	}
	concentration := float64(largest) / float64(diff.DiffPixels)
	countTerm := 1 - 1/float64(len(diff.Regions))
	return 0.5*(1-concentration) + 0.5*countTerm
}

// confidence reflects how much of the image the heavy metrics saw. Full
// computations get 1.0; sampled ones start lower and recover when the
// sampled luminance grid agrees with the exhaustive pixel
// classification on the differing fraction.
func confidence(diff *imagediff.Result, lumaGrid *grid, sampled bool, stride int) float64 {
	if !sampled {
		return 1.0
	}
	rate := 1 / float64(stride*stride)

	// Fraction of sampled positions the exhaustive mask marks as
	// differing, versus the full-image differing fraction.
	sampledDiff := 0
	for gy := 0; gy < lumaGrid.h; gy++ {
		for gx := 0; gx < lumaGrid.w; gx++ {
			if diff.Differs(gx*stride, gy*stride) {
				sampledDiff++
			}
		}
	}
	sampleFrac := float64(sampledDiff) / float64(lumaGrid.w*lumaGrid.h)
	fullFrac := float64(diff.DiffPixels) / float64(diff.TotalPixels())
	agreement := 1 - math.Abs(sampleFrac-fullFrac)

	return clamp(0.5+0.2*rate+0.3*agreement, 0, 1)
}

// grid is a sampled luminance plane in [0,255].
type grid struct {
	w, h int
	v    []float64
}

func (g *grid) at(x, y int) float64 { return g.v[y*g.w+x] }

func luminance(img image.Image, width, height, stride int) *grid {
	b := img.Bounds()
	gw := (width + stride - 1) / stride
	gh := (height + stride - 1) / stride
	g := &grid{w: gw, h: gh, v: make([]float64, gw*gh)}
	for gy := 0; gy < gh; gy++ {
		for gx := 0; gx < gw; gx++ {
			r, gn, bl, _ := img.At(b.Min.X+gx*stride, b.Min.Y+gy*stride).RGBA()
			// ITU-R BT.601 luma, scaled from 16-bit to [0,255].
			y := 0.299*float64(r) + 0.587*float64(gn) + 0.114*float64(bl)
			g.v[gy*gw+gx] = y / 257.0
		}
	}
	return g
}

// errorStats returns the mean and variance of the normalized per-pixel
// luminance error and the raw MSE in [0,255] space.
func errorStats(ref, act *grid) (mean, variance, mse float64) {
	n := float64(len(ref.v))
	for i := range ref.v {
		d := ref.v[i] - act.v[i]
		mse += d * d
		mean += math.Abs(d) / 255
	}
	mse /= n
	mean /= n
	for i := range ref.v {
		d := math.Abs(ref.v[i]-act.v[i])/255 - mean
		variance += d * d
	}
	variance /= n
	return mean, variance, mse
}

// ssimIndex computes the mean structural similarity over non-overlapping
// windows using the standard luminance/contrast/structure formula with
// K1=0.01, K2=0.03, L=255.
func ssimIndex(ref, act *grid, window int) float64 {
	const (
		c1 = (0.01 * 255) * (0.01 * 255)
		c2 = (0.03 * 255) * (0.03 * 255)
	)

	if ref.w < window || ref.h < window {
		// Degenerate plane: fall back to a single window covering it.
		window = ref.w
		if ref.h < window {
			window = ref.h
		}
		if window == 0 {
			return 1
		}
	}

	var sum float64
	windows := 0
	for wy := 0; wy+window <= ref.h; wy += window {
		for wx := 0; wx+window <= ref.w; wx += window {
			var muX, muY float64
			n := float64(window * window)
			for y := wy; y < wy+window; y++ {
				for x := wx; x < wx+window; x++ {
					muX += ref.at(x, y)
					muY += act.at(x, y)
				}
			}
			muX /= n
			muY /= n

			var varX, varY, cov float64
			for y := wy; y < wy+window; y++ {
				for x := wx; x < wx+window; x++ {
					dx := ref.at(x, y) - muX
					dy := act.at(x, y) - muY
					varX += dx * dx
					varY += dy * dy
					cov += dx * dy
				}
			}
			varX /= n
			varY /= n
			cov /= n

			num := (2*muX*muY + c1) * (2*cov + c2)
			den := (muX*muX + muY*muY + c1) * (varX + varY + c2)
			sum += num / den
			windows++
		}
	}
	if windows == 0 {
		return 1
	}
	return sum / float64(windows)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
