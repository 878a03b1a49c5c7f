package fetcher

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

const clickWait = 5 * time.Second

// loadMore clicks the "load more" button until it disappears, stops
// responding, or opts.LoadMoreClicks is reached. It returns the number of
// successful clicks.
func (br *BrowserRenderer) loadMore(ctx context.Context, p *rod.Page, opts RenderOptions) int {
	clicks := 0
	for clicks < opts.LoadMoreClicks {
		if ctx.Err() != nil {
			return clicks
		}
		el, err := p.Timeout(clickWait).Element(opts.LoadMoreSelector)
		if err != nil {
			br.logger.Debug("load more button gone", "selector", opts.LoadMoreSelector, "clicks", clicks)
			return clicks
		}
		if visible, err := el.Visible(); err != nil || !visible {
			return clicks
		}
		if err := el.ScrollIntoView(); err != nil {
			br.logger.Debug("scroll to load more failed", "error", err)
		}
		if err := el.Timeout(clickWait).Click(proto.InputMouseButtonLeft, 1); err != nil {
			br.logger.Debug("load more click failed", "selector", opts.LoadMoreSelector, "error", err)
			return clicks
		}
		clicks++
		if err := p.Timeout(clickWait).WaitStable(300 * time.Millisecond); err != nil {
			br.logger.Debug("page unstable after click", "error", err)
		}
	}
	return clicks
}
