package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"

	"grocery/crawler/internal/classifier"
	"grocery/crawler/internal/domain"
	"grocery/crawler/internal/recovery"
)

// Page gives access to the document currently loaded in the browser
type Page interface {
	CurrentURL(ctx context.Context) (string, error)
	PageSource(ctx context.Context) (string, error)
}

type ProductStore interface {
	SaveProducts(ctx context.Context, products []domain.Product) (int, error)
}

// Cache remembers pages that were already extracted
type Cache interface {
	WasExtracted(ctx context.Context, pageURL string) (bool, error)
	MarkExtracted(ctx context.Context, pageURL string, products int) error
}

type Extractor struct {
	page  Page
	store ProductStore
	cache Cache
	log   *log.Entry
}

// New creates an extractor. cache may be nil.
func New(page Page, store ProductStore, cache Cache, logger *log.Entry) *Extractor {
	if logger == nil {
		logger = log.WithField("component", "extractor")
	}
	return &Extractor{
		page:  page,
		store: store,
		cache: cache,
		log:   logger,
	}
}

// ExtractFromCurrentPage saves the products listed on the loaded page under category
func (e *Extractor) ExtractFromCurrentPage(ctx context.Context, category *domain.Category) (int, error) {
	pageURL, err := e.page.CurrentURL(ctx)
	if err != nil {
		return 0, err
	}

	code := ""
	if category != nil {
		code = category.URLCode
	}
	return e.extract(ctx, pageURL, code)
}

// ExtractFromPageAtURL saves the products listed on the loaded page for pageURL,
// such as a results page reached through pagination. The category is taken from
// the last category code in pageURL, if any.
func (e *Extractor) ExtractFromPageAtURL(ctx context.Context, pageURL string) (int, error) {
	code := ""
	if codes := classifier.ExtractCategoryCodes(pageURL); len(codes) > 0 {
		code = codes[len(codes)-1]
	}

	if current, err := e.page.CurrentURL(ctx); err == nil && current != pageURL {
		e.log.Debugf("Extracting %s while browser is at %s", pageURL, current)
	}
	return e.extract(ctx, pageURL, code)
}

func (e *Extractor) extract(ctx context.Context, pageURL, categoryCode string) (int, error) {
	if e.cache != nil {
		done, err := e.cache.WasExtracted(ctx, pageURL)
		if err != nil {
			e.log.Warnf("⚠️ Extraction cache unavailable: %v", err)
		} else if done {
			e.log.Debugf("⏭️ Products on %s already extracted", pageURL)
			return 0, nil
		}
	}

	source, err := e.page.PageSource(ctx)
	if err != nil {
		return 0, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		return 0, recovery.Wrap(recovery.CategoryParsing, "extract_products", fmt.Errorf("failed to parse %s: %w", pageURL, err))
	}

	products, strategy := Parse(doc, pageURL)
	if len(products) == 0 {
		e.log.Infof("No products found on %s", pageURL)
		return 0, nil
	}

	for i := range products {
		products[i].CategoryCode = categoryCode
	}

	saved, err := e.store.SaveProducts(ctx, products)
	if err != nil {
		return saved, err
	}

	e.log.WithFields(log.Fields{
		"url":      pageURL,
		"strategy": strategy,
		"category": categoryCode,
	}).Infof("🛒 Saved %d products", saved)

	if e.cache != nil {
		if err := e.cache.MarkExtracted(ctx, pageURL, saved); err != nil {
			e.log.Warnf("⚠️ Failed to cache extraction of %s: %v", pageURL, err)
		}
	}

	return saved, nil
}
