package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/pixelgate/internal/cache"
	"github.com/standardbeagle/pixelgate/internal/capture"
	"github.com/standardbeagle/pixelgate/internal/config"
	"github.com/standardbeagle/pixelgate/internal/imagediff"
)

var white = color.RGBA{255, 255, 255, 255}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fakeCapturer renders solid white pages at the requested viewport size
// and can be told to fail specific URLs.
type fakeCapturer struct {
	mu       sync.Mutex
	calls    int
	failURLs map[string]bool
}

func (f *fakeCapturer) Capture(_ context.Context, url string, vp capture.Viewport) (*capture.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.failURLs[url] {
		return nil, &capture.CaptureError{URL: url, Viewport: vp, Err: errors.New("navigation timeout")}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(vp.Width, vp.Height, white)); err != nil {
		return nil, err
	}
	return &capture.Result{Viewport: vp, PNG: buf.Bytes(), URL: url}, nil
}

func (f *fakeCapturer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig(viewports ...capture.Viewport) config.Config {
	cfg := config.Default()
	cfg.Viewports = viewports
	cfg.Concurrency = 3
	return cfg
}

// writeReference writes a solid white PNG matching the viewport size
// and returns its path.
func writeReference(t *testing.T, dir string, vp capture.Viewport) string {
	t.Helper()
	path := filepath.Join(dir, "ref_"+vp.Key()+".png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, solid(vp.Width, vp.Height, white)), 0644))
	return path
}

func testJobs(t *testing.T, dir, screen, url string, viewports ...capture.Viewport) []*Job {
	t.Helper()
	refs := make(map[string]string, len(viewports))
	for _, vp := range viewports {
		refs[vp.Name] = writeReference(t, dir, vp)
	}
	jobs, err := ExpandJobs([]Screen{{ID: screen, URL: url, References: refs}}, viewports)
	require.NoError(t, err)
	return jobs
}

func smallViewports() []capture.Viewport {
	return []capture.Viewport{
		capture.Custom("small", 40, 30, 1),
		capture.Custom("medium", 60, 40, 1),
		capture.Custom("large", 80, 50, 1),
	}
}

func TestRun_OneScreenThreeViewports(t *testing.T) {
	vps := smallViewports()
	jobs := testJobs(t, t.TempDir(), "landing", "http://app/landing", vps...)

	o := New(&fakeCapturer{}, nil, testConfig(vps...))
	report, err := o.Run(context.Background(), jobs)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Complete)
	assert.Equal(t, 0, report.Failed)
	for _, job := range jobs {
		require.Equal(t, StatusComplete, job.Status())
		require.NotNil(t, job.Result)
		assert.Equal(t, 100.0, job.Result.Metrics.PixelAccuracy)
		assert.Empty(t, job.Result.Diff.Regions)
	}
}

func TestRun_FailureIsolation(t *testing.T) {
	vps := smallViewports()
	dir := t.TempDir()
	jobs := append(
		testJobs(t, dir, "good", "http://app/good", vps...),
		testJobs(t, dir, "bad", "http://app/bad", vps...)...,
	)

	fake := &fakeCapturer{failURLs: map[string]bool{"http://app/bad": true}}
	o := New(fake, nil, testConfig(vps...))

	report, err := o.Run(context.Background(), jobs)
	require.NoError(t, err, "job-level failures must not abort the batch")

	assert.Equal(t, 3, report.Complete)
	assert.Equal(t, 3, report.Failed)

	for _, job := range jobs {
		if job.Screen == "bad" {
			require.Equal(t, StatusFailed, job.Status())
			var capErr *capture.CaptureError
			assert.True(t, errors.As(job.Err, &capErr))
		} else {
			assert.Equal(t, StatusComplete, job.Status())
		}
	}
}

func TestRun_DimensionMismatchFailsJobOnly(t *testing.T) {
	vps := smallViewports()
	dir := t.TempDir()
	jobs := testJobs(t, dir, "home", "http://app/home", vps...)

	// Corrupt one reference with the wrong dimensions.
	wrong := encodePNG(t, solid(7, 7, white))
	require.NoError(t, os.WriteFile(jobs[0].ReferencePath, wrong, 0644))

	o := New(&fakeCapturer{}, nil, testConfig(vps...))
	report, err := o.Run(context.Background(), jobs)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Complete)
	assert.Equal(t, 1, report.Failed)

	var mismatch *imagediff.DimensionMismatchError
	assert.True(t, errors.As(jobs[0].Err, &mismatch))
}

func TestRun_InvalidConfigFailsFast(t *testing.T) {
	vps := smallViewports()
	jobs := testJobs(t, t.TempDir(), "home", "http://app/home", vps...)

	cfg := testConfig(vps...)
	cfg.Concurrency = 0

	fake := &fakeCapturer{}
	_, err := New(fake, nil, cfg).Run(context.Background(), jobs)
	require.Error(t, err)
	assert.Equal(t, 0, fake.callCount(), "no capture may start under invalid configuration")
}

func TestRun_EmptyViewportListFailsFast(t *testing.T) {
	cfg := config.Default()
	cfg.Viewports = nil

	_, err := New(&fakeCapturer{}, nil, cfg).Run(context.Background(), []*Job{{}})
	assert.Error(t, err)
}

func TestRun_CancellationStopsNewJobs(t *testing.T) {
	vps := smallViewports()
	jobs := testJobs(t, t.TempDir(), "home", "http://app/home", vps...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := &fakeCapturer{}
	report, err := New(fake, nil, testConfig(vps...)).Run(ctx, jobs)
	require.NoError(t, err)

	assert.Equal(t, 0, fake.callCount())
	assert.Equal(t, len(jobs), report.Failed)
	for _, job := range jobs {
		assert.ErrorIs(t, job.Err, ErrCanceled)
	}
}

func TestRun_CacheHitSkipsCapture(t *testing.T) {
	vps := smallViewports()
	dir := t.TempDir()
	store, err := cache.NewStore(filepath.Join(dir, "cache"))
	require.NoError(t, err)

	cfg := testConfig(vps...)
	fake := &fakeCapturer{}

	first := testJobs(t, dir, "home", "http://app/home", vps...)
	_, err = New(fake, store, cfg).Run(context.Background(), first)
	require.NoError(t, err)
	require.Equal(t, 3, fake.callCount())

	second := make([]*Job, len(first))
	for i, job := range first {
		second[i] = &Job{Screen: job.Screen, URL: job.URL, Viewport: job.Viewport, ReferencePath: job.ReferencePath}
	}

	report, err := New(fake, store, cfg).Run(context.Background(), second)
	require.NoError(t, err)

	assert.Equal(t, 3, fake.callCount(), "cached jobs must not re-capture")
	assert.Equal(t, 3, report.CacheHits)

	// Cached results are bit-identical to the fresh computation.
	for i := range first {
		fresh, err := json.Marshal(first[i].Result.Metrics)
		require.NoError(t, err)
		cached, err := json.Marshal(second[i].Result.Metrics)
		require.NoError(t, err)
		assert.Equal(t, string(fresh), string(cached))
	}
}

func TestRun_ConfigChangeInvalidatesCache(t *testing.T) {
	vps := smallViewports()[:1]
	dir := t.TempDir()
	store, err := cache.NewStore(filepath.Join(dir, "cache"))
	require.NoError(t, err)

	fake := &fakeCapturer{}
	cfg := testConfig(vps...)

	jobs := testJobs(t, dir, "home", "http://app/home", vps...)
	_, err = New(fake, store, cfg).Run(context.Background(), jobs)
	require.NoError(t, err)
	require.Equal(t, 1, fake.callCount())

	// A comparison-semantics change must produce a different key.
	cfg.Diff.PixelThreshold = 0.2
	again := testJobs(t, dir, "home", "http://app/home", vps...)
	_, err = New(fake, store, cfg).Run(context.Background(), again)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.callCount())
}

func TestRun_ForceRefreshBypassesCache(t *testing.T) {
	vps := smallViewports()[:1]
	dir := t.TempDir()
	store, err := cache.NewStore(filepath.Join(dir, "cache"))
	require.NoError(t, err)

	fake := &fakeCapturer{}
	cfg := testConfig(vps...)

	jobs := testJobs(t, dir, "home", "http://app/home", vps...)
	_, err = New(fake, store, cfg).Run(context.Background(), jobs)
	require.NoError(t, err)

	cfg.ForceRefresh = true
	again := testJobs(t, dir, "home", "http://app/home", vps...)
	_, err = New(fake, store, cfg).Run(context.Background(), again)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.callCount())
}

func TestJob_StatusNeverMovesBackward(t *testing.T) {
	job := &Job{}
	require.True(t, job.advance(StatusPending, StatusCapturing))
	require.True(t, job.advance(StatusCapturing, StatusComparing))
	assert.False(t, job.advance(StatusComparing, StatusCapturing), "backward transition refused")
	require.True(t, job.advance(StatusComparing, StatusComplete))
	assert.False(t, job.advance(StatusComplete, StatusFailed), "terminal state is final")
	assert.Equal(t, StatusComplete, job.Status())
}

func TestExpandJobs_MissingReference(t *testing.T) {
	_, err := ExpandJobs(
		[]Screen{{ID: "home", URL: "http://app", References: map[string]string{"small": "x.png"}}},
		smallViewports(),
	)
	assert.Error(t, err)
}
