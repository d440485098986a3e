// Package discovery extracts and classifies the links of a rendered page.
package discovery

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"

	"grocery/crawler/internal/classifier"
	"grocery/crawler/internal/domain"
	"grocery/crawler/internal/recovery"
)

const anchorSelector = "a[href], area[href]"

// Registry is the view of crawl state discovery needs
type Registry interface {
	IsProcessed(url string) bool
	MarkDiscovered(url string)
}

// Stats counts what happened to every anchor on a page
type Stats struct {
	Anchors              int                     `json:"anchors"`
	EmptyHref            int                     `json:"empty_href"`
	Unresolvable         int                     `json:"unresolvable"`
	Invalid              int                     `json:"invalid"`
	AlreadyProcessed     int                     `json:"already_processed"`
	Duplicate            int                     `json:"duplicate"`
	Accepted             int                     `json:"accepted"`
	ByType               map[domain.LinkType]int `json:"by_type"`
	MissingSubcategories bool                    `json:"missing_subcategories"`
}

type Result struct {
	Links domain.CategorizedLinks
	Stats Stats
}

type Discoverer struct {
	classifier *classifier.Classifier
	log        *log.Entry
}

func New(c *classifier.Classifier, logger *log.Entry) *Discoverer {
	if logger == nil {
		logger = log.WithField("component", "discovery")
	}
	return &Discoverer{
		classifier: c,
		log:        logger,
	}
}

// Discover parses pageHTML, resolves every anchor against currentURL and
// returns the valid, unprocessed links grouped by type. Accepted URLs are
// registered as discovered in seen, which may be nil.
func (d *Discoverer) Discover(pageHTML, currentURL string, seen Registry) (*Result, error) {
	base, err := url.Parse(currentURL)
	if err != nil {
		return nil, recovery.Wrap(recovery.CategoryValidation, "discover", fmt.Errorf("invalid current url %q: %w", currentURL, err))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, recovery.Wrap(recovery.CategoryParsing, "discover", fmt.Errorf("failed to parse HTML: %w", err))
	}

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if resolved, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = resolved
		}
	}

	result := &Result{
		Links: domain.NewCategorizedLinks(),
		Stats: Stats{ByType: make(map[domain.LinkType]int)},
	}
	accepted := make(map[string]struct{})

	doc.Find(anchorSelector).Each(func(i int, s *goquery.Selection) {
		result.Stats.Anchors++

		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || href == "#" {
			result.Stats.EmptyHref++
			return
		}

		absolute, err := classifier.Canonicalize(base, href)
		if err != nil {
			result.Stats.Unresolvable++
			return
		}

		if !d.classifier.IsValidURL(absolute) {
			result.Stats.Invalid++
			return
		}
		if seen != nil && seen.IsProcessed(absolute) {
			result.Stats.AlreadyProcessed++
			return
		}
		if _, dup := accepted[absolute]; dup {
			result.Stats.Duplicate++
			return
		}

		link := d.classifier.Classify(absolute, linkText(s), s.AttrOr("title", ""), s.AttrOr("class", ""), dataAttributes(s))

		accepted[absolute] = struct{}{}
		result.Links.Add(link)
		result.Stats.Accepted++
		result.Stats.ByType[link.Type]++
		if seen != nil {
			seen.MarkDiscovered(absolute)
		}
	})

	if d.classifier.IsDepartmentPath(currentURL) && result.Links.Count(domain.LinkTypeSubcategory) == 0 {
		result.Stats.MissingSubcategories = true
		d.log.Warnf("⚠️ No subcategory links found on category page %s (%d links accepted)", currentURL, result.Stats.Accepted)
	}

	d.log.WithFields(log.Fields{
		"url":      currentURL,
		"anchors":  result.Stats.Anchors,
		"accepted": result.Stats.Accepted,
		"invalid":  result.Stats.Invalid,
		"seen":     result.Stats.AlreadyProcessed,
	}).Debug("links discovered")

	return result, nil
}

func linkText(s *goquery.Selection) string {
	text := strings.Join(strings.Fields(s.Text()), " ")
	if text == "" {
		text = strings.TrimSpace(s.AttrOr("aria-label", ""))
	}
	if text == "" {
		text = strings.TrimSpace(s.Find("img[alt]").First().AttrOr("alt", ""))
	}
	return text
}

func dataAttributes(s *goquery.Selection) map[string]string {
	if len(s.Nodes) == 0 {
		return nil
	}

	var attrs map[string]string
	for _, attr := range s.Nodes[0].Attr {
		if !strings.HasPrefix(attr.Key, "data-") {
			continue
		}
		if attrs == nil {
			attrs = make(map[string]string)
		}
		attrs[attr.Key] = attr.Val
	}
	return attrs
}
