// Package browser drives a headless Chrome tab through chromedp.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	log "github.com/sirupsen/logrus"

	"grocery/crawler/internal/config"
	"grocery/crawler/internal/recovery"
)

const readyStatePollInterval = 250 * time.Millisecond

var defaultHeaders = network.Headers{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-GB,en;q=0.9",
}

// ProxySource hands out proxy URLs, empty when none is configured
type ProxySource interface {
	Get() string
}

// Navigator owns one browser tab. Every method works on that tab, so calls
// must not overlap.
type Navigator struct {
	cfg config.BrowserConfig
	log *log.Entry

	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
}

func New(ctx context.Context, cfg config.BrowserConfig, proxies ProxySource, logger *log.Entry) (*Navigator, error) {
	if logger == nil {
		logger = log.WithField("component", "browser")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)

	if proxies != nil {
		if proxyURL := proxies.Get(); proxyURL != "" {
			opts = append(opts, chromedp.ProxyServer(proxyURL))
			logger.Infof("🔗 Using proxy: %s", proxyURL)
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Debugf))

	n := &Navigator{
		cfg:         cfg,
		log:         logger,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
	}

	if err := chromedp.Run(tabCtx, network.Enable(), network.SetExtraHTTPHeaders(defaultHeaders)); err != nil {
		n.Close()
		return nil, recovery.Wrap(recovery.CategoryDriverSetup, "browser_start", err)
	}

	logger.Info("✅ Browser started")
	return n, nil
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx
func (n *Navigator) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(n.tabCtx, timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (n *Navigator) navigationTimeout() time.Duration {
	if n.cfg.NavigationTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(n.cfg.NavigationTimeout) * time.Second
}

func (n *Navigator) Navigate(ctx context.Context, url string) error {
	if err := n.run(ctx, n.navigationTimeout(), chromedp.Navigate(url)); err != nil {
		return classify("navigate", fmt.Errorf("navigate to %s: %w", url, err))
	}
	return nil
}

func (n *Navigator) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if err := n.run(ctx, 10*time.Second, chromedp.Location(&location)); err != nil {
		return "", classify("current_url", err)
	}
	return location, nil
}

func (n *Navigator) PageSource(ctx context.Context) (string, error) {
	var html string
	if err := n.run(ctx, n.navigationTimeout(), chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", classify("page_source", err)
	}
	return html, nil
}

// WaitForReadyState polls document.readyState until it is complete. A timeout
// is reported as false, not as an error.
func (n *Navigator) WaitForReadyState(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)

	for {
		var state string
		if err := n.run(ctx, readyStatePollInterval*4, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			n.log.Debugf("readyState poll failed: %v", err)
		} else if state == "complete" {
			return true, nil
		}

		if time.Now().After(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(readyStatePollInterval):
		}
	}
}

// DismissPopups clicks the first visible element of every configured popup selector
func (n *Navigator) DismissPopups(ctx context.Context) error {
	if len(n.cfg.PopupSelectors) == 0 {
		return nil
	}

	script, err := popupScript(n.cfg.PopupSelectors)
	if err != nil {
		return err
	}

	var clicked int
	if err := n.run(ctx, 10*time.Second, chromedp.Evaluate(script, &clicked)); err != nil {
		return classify("dismiss_popups", err)
	}
	if clicked > 0 {
		n.log.Debugf("Dismissed %d popup(s)", clicked)
	}
	return nil
}

func (n *Navigator) Close() {
	if n.tabCancel != nil {
		n.tabCancel()
	}
	if n.allocCancel != nil {
		n.allocCancel()
	}
	n.log.Info("Browser closed")
}

func popupScript(selectors []string) (string, error) {
	encoded, err := json.Marshal(selectors)
	if err != nil {
		return "", fmt.Errorf("encode popup selectors: %w", err)
	}

	return fmt.Sprintf(`(() => {
	let clicked = 0;
	for (const selector of %s) {
		let el = null;
		try { el = document.querySelector(selector); } catch (e) { continue; }
		if (el && el.offsetParent !== null) { el.click(); clicked++; }
	}
	return clicked;
})()`, encoded), nil
}

func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return recovery.Wrap(recovery.CategoryTimeout, op, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return recovery.Wrap(recovery.CategoryNetwork, op, err)
}
