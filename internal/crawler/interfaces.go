package crawler

import (
	"context"
	"time"

	"grocery/crawler/internal/delay"
	"grocery/crawler/internal/domain"
)

// Navigator drives the single browser tab the crawl runs in
type Navigator interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	PageSource(ctx context.Context) (string, error)
	// WaitForReadyState reports false when the page did not finish loading in time
	WaitForReadyState(ctx context.Context, timeout time.Duration) (bool, error)
	DismissPopups(ctx context.Context) error
}

type CategoryStore interface {
	GetOrCreate(ctx context.Context, urlCode, name string) (*domain.Category, bool, error)
}

type ProductExtractor interface {
	ExtractFromCurrentPage(ctx context.Context, category *domain.Category) (int, error)
	ExtractFromPageAtURL(ctx context.Context, url string) (int, error)
}

type DelayPolicy interface {
	Wait(ctx context.Context, phase delay.Phase) error
	CheckRateLimit(pageText string) bool
	IncreaseDelay()
	Reset()
}

// FailureSink is told about every link that failed after recovery gave up
type FailureSink interface {
	LinkFailed(ctx context.Context, link domain.LinkInfo, depth int, err error)
}
