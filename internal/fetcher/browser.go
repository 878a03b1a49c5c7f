package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/IshaanNene/ShelfStalk/internal/config"
	"github.com/IshaanNene/ShelfStalk/internal/types"
)

const domCountsJS = `() => ({
	links: document.querySelectorAll('a[href]').length,
	images: document.querySelectorAll('img').length,
	jsonld: document.querySelectorAll('script[type="application/ld+json"]').length,
	height: document.body ? document.body.scrollHeight : 0,
})`

const navStatusJS = `() => {
	try {
		const entries = performance.getEntriesByType("navigation");
		if (entries.length > 0) return entries[0].responseStatus || 0;
	} catch (e) {}
	return 0;
}`

// BrowserRenderer implements Renderer using a headless Chromium via Rod.
type BrowserRenderer struct {
	browser   *rod.Browser
	cfg       config.BrowserConfig
	userAgent string
	logger    *slog.Logger
	pagePool  chan *rod.Page
}

// NewBrowserRenderer launches a browser and returns a ready renderer.
func NewBrowserRenderer(cfg *config.Config, logger *slog.Logger) (*BrowserRenderer, error) {
	br := &BrowserRenderer{
		cfg:       cfg.Browser,
		userAgent: cfg.Crawl.UserAgent,
		logger:    logger.With("component", "browser_renderer"),
		pagePool:  make(chan *rod.Page, max(cfg.Browser.MaxPages, 1)),
	}

	l := launcher.New().
		Headless(cfg.Browser.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled")
	if cfg.Browser.WindowSize != "" {
		l = l.Set("window-size", cfg.Browser.WindowSize)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	br.browser = browser

	br.logger.Info("browser renderer ready",
		"max_pages", cap(br.pagePool),
		"stealth", cfg.Browser.Stealth,
		"headless", cfg.Browser.Headless,
	)
	return br, nil
}

// Render navigates to url, scrolls to trigger lazy loading, waits, and
// returns the rendered HTML with DOM counts.
func (br *BrowserRenderer) Render(ctx context.Context, url string, opts RenderOptions) (*types.PageObservation, error) {
	start := time.Now()

	page, err := br.getPage()
	if err != nil {
		return nil, &types.FetchError{URL: url, Err: err, Retryable: true}
	}
	defer br.putPage(page)

	p := page.Context(ctx)

	if br.userAgent != "" {
		if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: br.userAgent}); err != nil {
			br.logger.Warn("failed to set user agent", "error", err)
		}
	}
	br.debugOnError("failed to set extra headers", url, proto.NetworkSetExtraHTTPHeaders{
		Headers: proto.NetworkHeaders{"Accept-Language": gson.New("en-US,en;q=0.9")},
	}.Call(p))

	timeout := br.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	if err := p.Timeout(timeout).Navigate(url); err != nil {
		return nil, &types.FetchError{URL: url, Err: fmt.Errorf("navigate: %w", err), Retryable: true}
	}
	if err := p.Timeout(timeout).WaitStable(300 * time.Millisecond); err != nil {
		br.logger.Debug("page stability timeout, continuing", "url", url, "error", err)
	}

	scrollHeight := br.scroll(ctx, p, opts)
	if opts.LoadMoreSelector != "" {
		if n := br.loadMore(ctx, p, opts); n > 0 {
			scrollHeight = max(scrollHeight, br.scroll(ctx, p, RenderOptions{ScrollCount: 1, ScrollInterval: opts.ScrollInterval}))
		}
	}

	if opts.WaitAfterLoad > 0 {
		select {
		case <-ctx.Done():
			return nil, &types.FetchError{URL: url, Err: ctx.Err()}
		case <-time.After(opts.WaitAfterLoad):
		}
	}

	html, err := p.HTML()
	if err != nil {
		return nil, &types.FetchError{URL: url, Err: fmt.Errorf("read html: %w", err), Retryable: true}
	}

	finalURL := url
	if info, err := p.Info(); err == nil && info != nil && info.URL != "" {
		finalURL = info.URL
	}

	status := 0
	if res, err := p.Eval(navStatusJS); err == nil {
		status = res.Value.Int()
	}

	signals := types.DOMSignals{ScrollHeight: scrollHeight}
	if res, err := p.Eval(domCountsJS); err == nil {
		counts := res.Value
		signals.LinkCount = counts.Get("links").Int()
		signals.ImageCount = counts.Get("images").Int()
		signals.HasJSONLD = counts.Get("jsonld").Int() > 0
		if h := counts.Get("height").Int(); h > signals.ScrollHeight {
			signals.ScrollHeight = h
		}
	} else {
		signals = ComputeSignals(html)
		signals.ScrollHeight = scrollHeight
	}

	duration := time.Since(start)
	br.logger.Debug("render complete",
		"url", url,
		"final_url", finalURL,
		"size", len(html),
		"scroll_height", signals.ScrollHeight,
		"duration", duration,
	)

	return &types.PageObservation{
		URL:           finalURL,
		Status:        status,
		HTML:          html,
		DOMSignals:    signals,
		Mode:          types.ModeBrowser,
		FetchDuration: duration,
		FetchedAt:     time.Now(),
	}, nil
}

// scroll scrolls to the bottom opts.ScrollCount times and returns the last
// observed document height. It stops early once the height stops growing.
func (br *BrowserRenderer) scroll(ctx context.Context, p *rod.Page, opts RenderOptions) int {
	height := 0
	for i := 0; i < opts.ScrollCount; i++ {
		res, err := p.Eval(`() => { window.scrollTo(0, document.body.scrollHeight); return document.body.scrollHeight; }`)
		if err != nil {
			br.logger.Debug("scroll failed", "step", i, "error", err)
			return height
		}
		h := res.Value.Int()
		if h == height && i > 0 {
			return height
		}
		height = h

		select {
		case <-ctx.Done():
			return height
		case <-time.After(opts.ScrollInterval):
		}
	}
	return height
}

// debugOnError logs a non-fatal page setup failure.
func (br *BrowserRenderer) debugOnError(msg, url string, err error) {
	if err != nil {
		br.logger.Debug(msg, "url", url, "error", err)
	}
}

// Close shuts down the browser and releases pooled pages.
func (br *BrowserRenderer) Close() error {
	close(br.pagePool)
	for page := range br.pagePool {
		_ = page.Close()
	}
	if br.browser != nil {
		return br.browser.Close()
	}
	return nil
}

// getPage retrieves a page from the pool or creates a new one.
func (br *BrowserRenderer) getPage() (*rod.Page, error) {
	select {
	case page := <-br.pagePool:
		return page, nil
	default:
	}
	if br.cfg.Stealth {
		return stealth.Page(br.browser)
	}
	return br.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
}

// putPage returns a page to the pool.
func (br *BrowserRenderer) putPage(page *rod.Page) {
	_ = page.Navigate("about:blank")
	select {
	case br.pagePool <- page:
	default:
		_ = page.Close()
	}
}
