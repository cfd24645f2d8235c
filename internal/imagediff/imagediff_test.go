package imagediff

import (
	"errors"
	"image"
	"image/color"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func withBlock(base *image.RGBA, rect image.Rectangle, c color.Color) *image.RGBA {
	img := image.NewRGBA(base.Bounds())
	copy(img.Pix, base.Pix)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

var (
	white = color.RGBA{255, 255, 255, 255}
	black = color.RGBA{0, 0, 0, 255}
)

func TestCompare_IdenticalImages(t *testing.T) {
	ref := solid(50, 50, white)
	act := solid(50, 50, white)

	res, err := Compare(ref, act, DefaultConfig())
	require.NoError(t, err)

	assert.True(t, res.Identical())
	assert.Equal(t, 0, res.DiffPixels)
	assert.Empty(t, res.Regions)
}

func TestCompare_DimensionMismatch(t *testing.T) {
	ref := solid(100, 100, white)
	act := solid(100, 80, white)

	_, err := Compare(ref, act, DefaultConfig())
	require.Error(t, err)

	var mismatch *DimensionMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, 100, mismatch.RefHeight)
	assert.Equal(t, 80, mismatch.ActualHeight)
}

func TestCompare_BlackSquareOnWhite(t *testing.T) {
	ref := solid(100, 100, white)
	act := withBlock(ref, image.Rect(40, 40, 50, 50), black)

	res, err := Compare(ref, act, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, 100, res.DiffPixels)
	require.Len(t, res.Regions, 1)
	assert.Equal(t, image.Rect(40, 40, 50, 50), res.Regions[0].Bounds)
	assert.Equal(t, 100, res.Regions[0].PixelCount)
	assert.Equal(t, SeverityModerate, res.Regions[0].Severity)
}

func TestCompare_FullyDifferent(t *testing.T) {
	ref := solid(64, 64, white)
	act := solid(64, 64, black)

	res, err := Compare(ref, act, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, 64*64, res.DiffPixels)
	require.Len(t, res.Regions, 1)
	assert.Equal(t, image.Rect(0, 0, 64, 64), res.Regions[0].Bounds)
	assert.Equal(t, SeverityMinor.String(), "minor") // sanity on naming
	assert.Equal(t, SeverityMajor, res.Regions[0].Severity)
}

func TestCompare_Deterministic(t *testing.T) {
	ref := solid(80, 60, white)
	act := withBlock(withBlock(ref, image.Rect(5, 5, 12, 12), black),
		image.Rect(50, 40, 70, 55), color.RGBA{200, 30, 30, 255})

	first, err := Compare(ref, act, DefaultConfig())
	require.NoError(t, err)
	second, err := Compare(ref, act, DefaultConfig())
	require.NoError(t, err)

	if !reflect.DeepEqual(first, second) {
		t.Fatal("two comparisons of identical inputs produced different results")
	}
}

func TestCompare_RegionsPartitionDiffPixels(t *testing.T) {
	ref := solid(100, 100, white)
	act := withBlock(withBlock(withBlock(ref,
		image.Rect(0, 0, 10, 10), black),
		image.Rect(30, 30, 35, 35), black),
		image.Rect(90, 90, 100, 100), black)

	res, err := Compare(ref, act, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, res.Regions, 3)
	sum := 0
	for _, reg := range res.Regions {
		sum += reg.PixelCount
	}
	assert.Equal(t, res.DiffPixels, sum, "region pixel counts must partition the diff set")
}

func TestCompare_MergeDistanceJoinsNearbyPixels(t *testing.T) {
	ref := solid(40, 40, white)
	// Two single pixels two apart: one region at merge distance 2,
	// two regions at merge distance 1.
	act := withBlock(withBlock(ref,
		image.Rect(10, 10, 11, 11), black),
		image.Rect(12, 10, 13, 11), black)

	cfg := DefaultConfig()
	cfg.MergeDistance = 2
	res, err := Compare(ref, act, cfg)
	require.NoError(t, err)
	assert.Len(t, res.Regions, 1)

	cfg.MergeDistance = 1
	res, err = Compare(ref, act, cfg)
	require.NoError(t, err)
	assert.Len(t, res.Regions, 2)
}

func TestCompare_ThresholdFiltersSmallDeltas(t *testing.T) {
	ref := solid(20, 20, color.RGBA{128, 128, 128, 255})
	// 5/255 ≈ 0.02 normalized, below the 0.1 default threshold.
	act := solid(20, 20, color.RGBA{133, 128, 128, 255})

	res, err := Compare(ref, act, DefaultConfig())
	require.NoError(t, err)
	assert.True(t, res.Identical())

	cfg := DefaultConfig()
	cfg.PixelThreshold = 0.01
	res, err = Compare(ref, act, cfg)
	require.NoError(t, err)
	assert.Equal(t, 20*20, res.DiffPixels)
}

func TestCompare_RegionOrdering(t *testing.T) {
	ref := solid(200, 100, white)
	act := withBlock(withBlock(ref,
		image.Rect(0, 0, 5, 5), black),          // 25 px, minor
		image.Rect(100, 10, 140, 60), black)     // 2000 px, major

	res, err := Compare(ref, act, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, res.Regions, 2)
	assert.Equal(t, SeverityMajor, res.Regions[0].Severity)
	assert.Equal(t, SeverityMinor, res.Regions[1].Severity)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.PixelThreshold = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.MergeDistance = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.ModerateLimit = bad.MinorLimit
	assert.Error(t, bad.Validate())
}

func TestResult_MaskRoundTrip(t *testing.T) {
	ref := solid(30, 30, white)
	act := withBlock(ref, image.Rect(3, 4, 8, 9), black)

	res, err := Compare(ref, act, DefaultConfig())
	require.NoError(t, err)

	for y := 0; y < 30; y++ {
		for x := 0; x < 30; x++ {
			want := x >= 3 && x < 8 && y >= 4 && y < 9
			if res.Differs(x, y) != want {
				t.Fatalf("mask bit at (%d,%d): got %v, want %v", x, y, res.Differs(x, y), want)
			}
		}
	}
}
