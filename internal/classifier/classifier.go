// Package classifier maps links onto the grocery taxonomy.
// Classification is deterministic and performs no I/O.
package classifier

import (
	"net/url"
	"path"
	"slices"
	"strings"

	"grocery/crawler/internal/config"
	"grocery/crawler/internal/domain"
)

const (
	PriorityTaxonomy    = 2
	PriorityCategory    = 2
	PrioritySubcategory = 3
	PriorityPagination  = 4
	PriorityProduct     = 5
	PriorityNavigation  = 6
)

// AutoIDAttr is the data attribute carrying taxonomy markers
const AutoIDAttr = "data-auto-id"

// Classifier holds the keyword tables and the allowed domain. It is immutable
// after construction and safe for concurrent use.
type Classifier struct {
	allowedHost string
	cfg         config.ClassifierConfig
}

func New(allowedDomain string, cfg config.ClassifierConfig) *Classifier {
	return &Classifier{
		allowedHost: normalizeDomain(allowedDomain),
		cfg: config.ClassifierConfig{
			TaxonomyAutoIDTokens:    lowerAll(cfg.TaxonomyAutoIDTokens),
			TaxonomyExploreClasses:  lowerAll(cfg.TaxonomyExploreClasses),
			ProduceTaxonomyClasses:  lowerAll(cfg.ProduceTaxonomyClasses),
			ProductMarkers:          lowerAll(cfg.ProductMarkers),
			DepartmentMarkers:       lowerAll(cfg.DepartmentMarkers),
			PaginationClassKeywords: lowerAll(cfg.PaginationClassKeywords),
			PaginationTextKeywords:  lowerAll(cfg.PaginationTextKeywords),
			NavigationKeywords:      lowerAll(cfg.NavigationKeywords),
			CategoryTextKeywords:    lowerAll(cfg.CategoryTextKeywords),
			CategoryClassKeywords:   lowerAll(cfg.CategoryClassKeywords),
			DeniedExtensions:        lowerAll(cfg.DeniedExtensions),
			DeniedPaths:             lowerAll(cfg.DeniedPaths),
		},
	}
}

// Classify assigns a link type and priority. Rules are checked in a fixed
// order and the first match wins.
func (c *Classifier) Classify(rawURL, text, title, cssClasses string, dataAttrs map[string]string) domain.LinkInfo {
	link := domain.LinkInfo{
		URL:           rawURL,
		Text:          strings.TrimSpace(text),
		Title:         strings.TrimSpace(title),
		CSSClasses:    strings.TrimSpace(cssClasses),
		CategoryCodes: ExtractCategoryCodes(rawURL),
	}

	classes := strings.ToLower(cssClasses)
	lowText := strings.ToLower(link.Text)
	p := strings.ToLower(urlPath(rawURL))
	autoID := strings.ToLower(dataAttrs[AutoIDAttr])

	switch {
	case containsAny(autoID, c.cfg.TaxonomyAutoIDTokens) || containsAny(classes, c.cfg.TaxonomyExploreClasses):
		link.Type, link.Priority, link.Special = domain.LinkTypeSubcategory, PriorityTaxonomy, domain.SpecialTaxonomyExplore
	case containsAny(classes, c.cfg.ProduceTaxonomyClasses):
		link.Type, link.Priority, link.Special = domain.LinkTypeSubcategory, PriorityTaxonomy, domain.SpecialProduceTaxonomy
	case containsAny(p, c.cfg.ProductMarkers):
		link.Type, link.Priority = domain.LinkTypeProduct, PriorityProduct
	case containsAny(classes, c.cfg.PaginationClassKeywords) || containsAny(lowText, c.cfg.PaginationTextKeywords):
		link.Type, link.Priority = domain.LinkTypePagination, PriorityPagination
	case containsAny(classes, c.cfg.NavigationKeywords):
		link.Type, link.Priority = domain.LinkTypeNavigation, PriorityNavigation
	case containsAny(p, c.cfg.DepartmentMarkers):
		link.Type, link.Priority = c.classifyDepartment(p, lowText, len(link.CategoryCodes))
	case containsAny(classes, c.cfg.CategoryClassKeywords):
		link.Type, link.Priority = domain.LinkTypeCategory, PriorityCategory
	default:
		link.Type = domain.LinkTypeOther
	}

	return link
}

func (c *Classifier) classifyDepartment(p, lowText string, codes int) (domain.LinkType, int) {
	if codes >= 2 || len(pathSegments(p)) >= 3 {
		return domain.LinkTypeSubcategory, PrioritySubcategory
	}
	if containsAny(lowText, c.cfg.CategoryTextKeywords) {
		return domain.LinkTypeSubcategory, PrioritySubcategory
	}
	return domain.LinkTypeCategory, PriorityCategory
}

// IsDepartmentPath reports whether the URL points at a department or category page
func (c *Classifier) IsDepartmentPath(rawURL string) bool {
	return containsAny(strings.ToLower(urlPath(rawURL)), c.cfg.DepartmentMarkers)
}

// IsValidURL reports whether rawURL is an absolute http(s) URL on the allowed
// domain that does not hit the asset or path denylist.
func (c *Classifier) IsValidURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if normalizeDomain(u.Hostname()) != c.allowedHost {
		return false
	}

	p := strings.ToLower(u.Path)
	if ext := path.Ext(p); ext != "" && slices.Contains(c.cfg.DeniedExtensions, ext) {
		return false
	}
	for _, pattern := range c.cfg.DeniedPaths {
		if PathMatches(p, pattern) {
			return false
		}
	}

	return true
}

func normalizeDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if u, err := url.Parse(host); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	return strings.TrimPrefix(host, "www.")
}

func containsAny(s string, keywords []string) bool {
	if s == "" {
		return false
	}
	for _, kw := range keywords {
		if kw != "" && strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(v))
	}
	return out
}
