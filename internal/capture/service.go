// Package capture drives headless-browser sessions and produces raster
// screenshots of target pages at device-class viewports.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	playwright "github.com/playwright-community/playwright-go"
)

var (
	// ErrPoolClosed is returned when acquiring a session after Close.
	ErrPoolClosed = errors.New("capture: session pool is closed")
)

// CaptureError wraps a failure to produce a screenshot for one target.
// It is always scoped to a single capture; sibling captures sharing the
// pool are unaffected.
type CaptureError struct {
	URL      string
	Viewport Viewport
	Err      error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s at %s: %v", e.URL, e.Viewport, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Result is an immutable screenshot of one URL at one viewport.
type Result struct {
	Viewport   Viewport  `json:"viewport"`
	PNG        []byte    `json:"-"`
	CapturedAt time.Time `json:"captured_at"`
	URL        string    `json:"url"`
}

// Options configures the capture service.
type Options struct {
	// PoolSize is the number of browser sessions kept alive. Default 4.
	PoolSize int
	// NavigationTimeout bounds a single page load. Default 30s.
	NavigationTimeout time.Duration
	// Headless controls browser visibility. Default true.
	Headless bool
	// InstallBrowsers downloads the chromium build if missing.
	InstallBrowsers bool
}

// DefaultOptions returns the standard service configuration.
func DefaultOptions() Options {
	return Options{
		PoolSize:          4,
		NavigationTimeout: 30 * time.Second,
		Headless:          true,
		InstallBrowsers:   true,
	}
}

// session is one reusable browser context + page pair. The context's
// device scale factor is fixed at creation, so a capture requesting a
// different scale re-provisions the context in place.
type session struct {
	browserCtx playwright.BrowserContext
	page       playwright.Page
	scale      float64
}

// Service captures screenshots through a bounded pool of browser
// sessions sharing a single chromium instance.
type Service struct {
	opts    Options
	pw      *playwright.Playwright
	browser playwright.Browser

	sessions  chan *session
	closed    chan struct{}
	closeOnce sync.Once
}

// NewService starts the playwright driver, launches chromium, and
// provisions the session pool. Callers must Close the service to stop
// the browser processes.
func NewService(opts Options) (*Service, error) {
	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultOptions().PoolSize
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = DefaultOptions().NavigationTimeout
	}

	if opts.InstallBrowsers {
		if err := playwright.Install(&playwright.RunOptions{
			Browsers: []string{"chromium"},
		}); err != nil {
			return nil, fmt.Errorf("install playwright browsers: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright driver: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launch chromium (headless=%v): %w", opts.Headless, err)
	}

	s := &Service{
		opts:     opts,
		pw:       pw,
		browser:  browser,
		sessions: make(chan *session, opts.PoolSize),
		closed:   make(chan struct{}),
	}

	for i := 0; i < opts.PoolSize; i++ {
		sess, err := s.newSession(1)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("provision session %d: %w", i, err)
		}
		s.sessions <- sess
	}

	log.Printf("[Capture] pool ready: %d sessions, timeout %s", opts.PoolSize, opts.NavigationTimeout)
	return s, nil
}

func (s *Service) newSession(scale float64) (*session, error) {
	browserCtx, err := s.browser.NewContext(playwright.BrowserNewContextOptions{
		DeviceScaleFactor: playwright.Float(scale),
	})
	if err != nil {
		return nil, fmt.Errorf("create browser context: %w", err)
	}
	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	return &session{browserCtx: browserCtx, page: page, scale: scale}, nil
}

// acquire blocks until a pooled session is free or ctx is done.
func (s *Service) acquire(ctx context.Context) (*session, error) {
	select {
	case <-s.closed:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case sess := <-s.sessions:
		return sess, nil
	}
}

// release returns a session to the pool. If the pool is shutting down
// the session is torn down instead.
func (s *Service) release(sess *session) {
	select {
	case <-s.closed:
		sess.close()
	case s.sessions <- sess:
	}
}

func (sess *session) close() {
	if sess.page != nil {
		_ = sess.page.Close()
	}
	if sess.browserCtx != nil {
		_ = sess.browserCtx.Close()
	}
}

// Capture navigates a pooled session to url at the given viewport and
// returns a full-page PNG screenshot. Navigation failures and timeouts
// produce a *CaptureError scoped to this capture only; the session is
// returned to the pool on every path.
func (s *Service) Capture(ctx context.Context, url string, vp Viewport) (*Result, error) {
	if !vp.Valid() {
		return nil, &CaptureError{URL: url, Viewport: vp, Err: errors.New("invalid viewport dimensions")}
	}

	sess, err := s.acquire(ctx)
	if err != nil {
		return nil, &CaptureError{URL: url, Viewport: vp, Err: err}
	}
	defer s.release(sess)

	// Device scale factor is fixed per browser context, so a scale
	// change means rebuilding this session's context.
	if sess.scale != vp.Scale {
		fresh, err := s.newSession(vp.Scale)
		if err != nil {
			return nil, &CaptureError{URL: url, Viewport: vp, Err: err}
		}
		sess.close()
		*sess = *fresh
	}

	if err := sess.page.SetViewportSize(vp.Width, vp.Height); err != nil {
		return nil, &CaptureError{URL: url, Viewport: vp, Err: fmt.Errorf("set viewport: %w", err)}
	}

	timeout := s.opts.NavigationTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	if _, err := sess.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return nil, &CaptureError{URL: url, Viewport: vp, Err: fmt.Errorf("navigate: %w", err)}
	}

	png, err := sess.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Type:     playwright.ScreenshotTypePng,
	})
	if err != nil {
		return nil, &CaptureError{URL: url, Viewport: vp, Err: fmt.Errorf("screenshot: %w", err)}
	}

	return &Result{
		Viewport:   vp,
		PNG:        png,
		CapturedAt: time.Now(),
		URL:        url,
	}, nil
}

// Close tears down all sessions, the browser, and the driver in reverse
// acquisition order. Safe to call multiple times; in-flight captures
// holding a session finish and their sessions are closed on release.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)

		// Drain whatever sessions are parked in the pool right now.
		for {
			select {
			case sess := <-s.sessions:
				sess.close()
			default:
				if s.browser != nil {
					_ = s.browser.Close()
				}
				if s.pw != nil {
					_ = s.pw.Stop()
				}
				log.Printf("[Capture] pool closed")
				return
			}
		}
	})
}
