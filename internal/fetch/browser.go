package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/rescueradar/rescueradar/internal/types"
)

// BrowserOptions tunes the headless browser used for JS-rendered sources.
type BrowserOptions struct {
	Headless bool
	// Stealth applies bot-detection evasion to each page.
	Stealth bool
	// PageTimeout bounds one rendered fetch end to end.
	PageTimeout time.Duration
	// WaitStable waits for network + DOM quiet before reading the page.
	WaitStable time.Duration
}

// DefaultBrowserOptions matches what the rendered-source adapters need.
func DefaultBrowserOptions() BrowserOptions {
	return BrowserOptions{
		Headless:    true,
		Stealth:     true,
		PageTimeout: 60 * time.Second,
		WaitStable:  2 * time.Second,
	}
}

// Browser is a lazily-launched headless Chromium handle. Only adapters for
// JS-rendered sources touch it; everything else stays on the HTTP client.
type Browser struct {
	opts   BrowserOptions
	logger *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
}

// NewBrowser prepares a handle. The browser process starts on first use.
func NewBrowser(opts BrowserOptions, logger *slog.Logger) *Browser {
	return &Browser{opts: opts, logger: logger.With("component", "browser")}
}

func (b *Browser) ensure() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}

	l := launcher.New().
		Headless(b.opts.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-gpu")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	b.logger.Debug("browser launched", "headless", b.opts.Headless)
	b.browser = browser
	return browser, nil
}

// FetchRendered loads a URL in the browser, optionally waits for a selector,
// and returns the rendered HTML as a Response.
func (b *Browser) FetchRendered(ctx context.Context, rawURL, waitSelector string) (*Response, error) {
	browser, err := b.ensure()
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err}
	}

	start := time.Now()
	var page *rod.Page
	if b.opts.Stealth {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: fmt.Errorf("create page: %w", err)}
	}
	defer page.Close()

	page = page.Context(ctx).Timeout(b.opts.PageTimeout)

	if err := page.Navigate(rawURL); err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: fmt.Errorf("navigate: %w", err), Retryable: true}
	}
	if err := page.WaitLoad(); err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: fmt.Errorf("wait load: %w", err), Retryable: true}
	}
	if waitSelector != "" {
		if _, err := page.Element(waitSelector); err != nil {
			return nil, &types.FetchError{URL: rawURL, Err: fmt.Errorf("wait for %q: %w", waitSelector, err)}
		}
	}
	if b.opts.WaitStable > 0 {
		// Best effort; slow third-party beacons should not fail the fetch.
		_ = page.WaitDOMStable(b.opts.WaitStable, 0.2)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: fmt.Errorf("read html: %w", err)}
	}

	info, _ := page.Info()
	finalURL := rawURL
	if info != nil && info.URL != "" {
		finalURL = info.URL
	}
	return &Response{
		StatusCode: 200,
		Body:       []byte(html),
		FinalURL:   finalURL,
		Duration:   time.Since(start),
	}, nil
}

// Close shuts the browser process down if it was ever started.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}
