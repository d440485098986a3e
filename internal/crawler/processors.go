package crawler

import (
	"context"
	"strings"

	"grocery/crawler/internal/discovery"
	"grocery/crawler/internal/domain"
	"grocery/crawler/internal/recovery"
)

func (e *Engine) process(ctx context.Context, link domain.LinkInfo, depth int) (bool, error) {
	switch {
	case link.Type.IsCategoryLike():
		return e.processCategory(ctx, link, depth)
	case link.Type == domain.LinkTypePagination:
		return e.processPagination(ctx, link, depth)
	case link.Type == domain.LinkTypeProduct:
		e.log.Debugf("🛒 Product page %s", link.URL)
		return true, nil
	default:
		found, err := e.discoverCurrent(ctx)
		if err != nil {
			return false, err
		}
		return found.Links.Total() > 0, nil
	}
}

// processCategory stores the category, extracts its products and follows a
// bounded number of its subcategories one level down.
func (e *Engine) processCategory(ctx context.Context, link domain.LinkInfo, depth int) (bool, error) {
	category, err := e.resolveCategory(ctx, link)
	if err != nil {
		return false, err
	}

	found, err := e.discoverCurrent(ctx)
	if err != nil {
		return false, err
	}

	if depth < e.cfg.ExtractionDepth && category != nil && e.extractor != nil {
		n, err := e.extractor.ExtractFromCurrentPage(ctx, category)
		if err != nil {
			e.log.Warnf("⚠️ Product extraction failed for %s: %v", link.URL, err)
			e.recovery.RecordError(opExtract, link.URL, err)
		} else {
			e.addProducts(n)
		}
	}

	if depth < e.cfg.RecursionDepth {
		subcategories := found.Links[domain.LinkTypeSubcategory]
		if len(subcategories) > e.cfg.MaxSubcategories {
			subcategories = subcategories[:e.cfg.MaxSubcategories]
		}
		e.followLinks(ctx, subcategories, domain.LinkTypeSubcategory, depth+1)
	}

	return true, nil
}

func (e *Engine) resolveCategory(ctx context.Context, link domain.LinkInfo) (*domain.Category, error) {
	code := link.PrimaryCategoryCode()
	if code == "" || e.categories == nil {
		return nil, nil
	}

	name := strings.TrimSpace(link.Text)
	if name == "" {
		name = unknownCategory
	}

	var category *domain.Category
	err := e.recovery.Execute(ctx, opCategory, e.recovery.Policy(recovery.CategoryDatabase), func(ctx context.Context) error {
		c, created, err := e.categories.GetOrCreate(ctx, code, name)
		if err != nil {
			return err
		}
		category = c
		if created {
			e.mu.Lock()
			e.categoriesCreated++
			e.mu.Unlock()
			e.log.Infof("📁 Created category %s (%s)", c.Name, c.URLCode)
		}
		return nil
	})
	return category, err
}

// processPagination extracts the results page and follows "next" links while
// the next level is still inside maxDepth.
func (e *Engine) processPagination(ctx context.Context, link domain.LinkInfo, depth int) (bool, error) {
	if e.extractor != nil {
		n, err := e.extractor.ExtractFromPageAtURL(ctx, link.URL)
		if err != nil {
			e.log.Warnf("⚠️ Product extraction failed for %s: %v", link.URL, err)
			e.recovery.RecordError(opExtract, link.URL, err)
		} else {
			e.addProducts(n)
		}
	}

	found, err := e.discoverCurrent(ctx)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	maxDepth := e.maxDepth
	e.mu.Unlock()

	if depth+1 < maxDepth {
		next := make([]domain.LinkInfo, 0, e.cfg.MaxPaginationLinks)
		for _, candidate := range found.Links[domain.LinkTypePagination] {
			if len(next) == e.cfg.MaxPaginationLinks {
				break
			}
			if strings.Contains(strings.ToLower(candidate.Text), "next") {
				next = append(next, candidate)
			}
		}
		e.followLinks(ctx, next, domain.LinkTypePagination, depth+1)
	}

	return true, nil
}

func (e *Engine) followLinks(ctx context.Context, links []domain.LinkInfo, source domain.LinkType, depth int) {
	if len(links) == 0 {
		return
	}

	e.setPhase(PhaseRecursing)
	for _, link := range links {
		if ctx.Err() != nil {
			return
		}
		link.SourceType = source
		e.VisitLink(ctx, link, depth)
	}
}

// discoverCurrent runs link discovery on the page the tab is showing
func (e *Engine) discoverCurrent(ctx context.Context) (*discovery.Result, error) {
	e.setPhase(PhaseDiscovering)

	current, err := e.nav.CurrentURL(ctx)
	if err != nil {
		return nil, err
	}
	source, err := e.nav.PageSource(ctx)
	if err != nil {
		return nil, err
	}

	found, err := e.discoverer.Discover(source, current, registry{e})
	if err != nil {
		return nil, err
	}

	for linkType, n := range found.Stats.ByType {
		e.metrics.LinkDiscovered(linkType.String(), n)
	}
	return found, nil
}

func (e *Engine) addProducts(n int) {
	e.mu.Lock()
	e.products += n
	e.mu.Unlock()
	e.metrics.AddProducts(n)
}
