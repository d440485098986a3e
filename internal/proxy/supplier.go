package proxy

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"resty.dev/v3"

	"grocery/crawler/internal/config"
)

const (
	checkTimeout     = 5 * time.Second
	checkConcurrency = 20
)

// ProxySupplier hands out working proxies in round-robin order
type ProxySupplier interface {
	Get() string
	Count() int
}

type proxySupplier struct {
	proxies []string
	current int
	mutex   sync.Mutex
}

// NewProxySupplier checks every configured proxy against the proxy check URL
// and keeps the ones that answer. Without a check URL all proxies are kept.
func NewProxySupplier(ctx context.Context, cfg config.BrowserConfig) ProxySupplier {
	if len(cfg.Proxies) == 0 {
		return &proxySupplier{}
	}
	if cfg.ProxyCheckURL == "" {
		return &proxySupplier{proxies: append([]string(nil), cfg.Proxies...)}
	}

	log.Infof("🔄 Checking %d proxies against %s...", len(cfg.Proxies), cfg.ProxyCheckURL)

	valid := make([]bool, len(cfg.Proxies))
	semaphore := make(chan struct{}, checkConcurrency)

	var wg sync.WaitGroup
	for i, proxyURL := range cfg.Proxies {
		i, proxyURL := i, proxyURL
		wg.Add(1)
		go func() {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			valid[i] = isProxyValid(ctx, proxyURL, cfg.ProxyCheckURL)
		}()
	}
	wg.Wait()

	// keep configuration order so rotation is predictable
	working := make([]string, 0, len(cfg.Proxies))
	for i, ok := range valid {
		if ok {
			working = append(working, cfg.Proxies[i])
		}
	}

	log.Infof("✅ %d of %d proxies are working", len(working), len(cfg.Proxies))
	return &proxySupplier{proxies: working}
}

// Get returns the next proxy URL, or "" when there is none
func (p *proxySupplier) Get() string {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if len(p.proxies) == 0 {
		return ""
	}

	proxy := p.proxies[p.current]
	p.current = (p.current + 1) % len(p.proxies)

	return proxy
}

func (p *proxySupplier) Count() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.proxies)
}

func isProxyValid(ctx context.Context, proxyURL, checkURL string) bool {
	client := resty.New().
		SetTimeout(checkTimeout).
		SetRetryCount(0).
		SetProxy(proxyURL).
		SetTLSClientConfig(&tls.Config{
			InsecureSkipVerify: true,
		})
	defer client.Close()

	resp, err := client.R().
		SetContext(ctx).
		Get(checkURL)

	if err != nil {
		log.Debugf("❌ Proxy %s failed: %v", proxyURL, err)
		return false
	}
	if resp.IsError() {
		log.Debugf("❌ Proxy %s answered %s", proxyURL, resp.Status())
		return false
	}

	return true
}
