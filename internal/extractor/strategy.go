package extractor

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"grocery/crawler/internal/domain"
)

const (
	maxPrice      = 10000
	minNameLength = 3
	maxNameLength = 500
	defaultUnit   = "each"
)

var (
	priceRe     = regexp.MustCompile(`£(\d+\.?\d*)`)
	productIDRe = regexp.MustCompile(`/(\d+)$`)
)

// Strategy is a set of selectors for one product listing layout.
// Every selector list is tried in order and the first match wins.
type Strategy struct {
	Name       string
	Containers []string
	Title      []string
	Link       []string
	Price      []string
	WasPrice   []string
	Unit       []string
	Image      []string
	Promo      []string
	OutOfStock []string
}

// Strategies are tried in order; the first one whose containers match is used
var Strategies = []Strategy{
	{
		Name:       "co-product",
		Containers: []string{"div.co-product", ".co-product"},
		Title:      []string{"h3.co-product__title", "a.co-product__anchor"},
		Link:       []string{"a.co-product__anchor"},
		Price:      []string{".co-product__price"},
		WasPrice:   []string{"span.co-product__was-price"},
		Unit:       []string{"span.co-product__volume"},
		Image:      []string{"img.asda-img"},
		Promo:      []string{".co-product__promo-pill"},
		OutOfStock: []string{".co-product__out-of-stock"},
	},
	{
		Name: "generic",
		Containers: []string{
			`div[class*="product"]`,
			`article[class*="product"]`,
			`li[class*="product"]`,
			`[data-testid*="product"]`,
		},
		Title:      []string{`[data-auto-id="linkProductTitle"]`, "h3 a", "h2 a", "h3", `a[href*="/product/"]`},
		Link:       []string{`a[href*="/product/"]`, "a[href]"},
		Price:      []string{`[class*="price"]:not([class*="was"])`, `[data-auto-id*="price"]`},
		WasPrice:   []string{`[class*="was-price"]`, `[class*="was_price"]`},
		Unit:       []string{`[class*="volume"]`, `[class*="weight"]`},
		Image:      []string{"img"},
		Promo:      []string{`[class*="promo"]`, `[class*="offer"]`},
		OutOfStock: []string{`[class*="out-of-stock"]`},
	},
}

// Parse returns the valid products found in doc and the name of the strategy
// that matched. Relative product links are resolved against pageURL.
func Parse(doc *goquery.Document, pageURL string) ([]domain.Product, string) {
	base, _ := url.Parse(pageURL)

	for _, strategy := range Strategies {
		containers := strategy.containers(doc)
		if containers == nil {
			continue
		}

		products := make([]domain.Product, 0, containers.Length())
		seen := make(map[string]struct{})
		containers.Each(func(_ int, s *goquery.Selection) {
			p, ok := strategy.product(s, base)
			if !ok {
				return
			}
			if _, dup := seen[p.ExternalID]; dup {
				return
			}
			seen[p.ExternalID] = struct{}{}
			products = append(products, p)
		})
		return products, strategy.Name
	}

	return nil, ""
}

func (s Strategy) containers(doc *goquery.Document) *goquery.Selection {
	for _, selector := range s.Containers {
		if found := doc.Find(selector); found.Length() > 0 {
			return found
		}
	}
	return nil
}

func (s Strategy) product(container *goquery.Selection, base *url.URL) (domain.Product, bool) {
	p := domain.Product{InStock: true, Unit: defaultUnit}

	p.Name = strings.TrimSpace(first(container, s.Title).Text())
	if p.Name == "" {
		return p, false
	}

	href, _ := first(container, s.Link).Attr("href")
	p.ExternalID = productID(href)
	if p.ExternalID == "" {
		return p, false
	}
	p.ProductURL = resolve(base, href)

	price, ok := parsePrice(first(container, s.Price).Text())
	if !ok {
		return p, false
	}
	p.Price = price

	if was, ok := parsePrice(first(container, s.WasPrice).Text()); ok {
		p.WasPrice = &was
	}
	if unit := strings.TrimSpace(first(container, s.Unit).Text()); unit != "" {
		p.Unit = unit
	}
	if src, ok := first(container, s.Image).Attr("src"); ok {
		p.ImageURL = resolve(base, src)
	}
	p.SpecialOffer = first(container, s.Promo).Length() > 0
	p.InStock = first(container, s.OutOfStock).Length() == 0

	return p, valid(p)
}

func first(container *goquery.Selection, selectors []string) *goquery.Selection {
	for _, selector := range selectors {
		if found := container.Find(selector).First(); found.Length() > 0 {
			return found
		}
	}
	return container.Slice(0, 0)
}

func productID(href string) string {
	if href == "" {
		return ""
	}
	if u, err := url.Parse(href); err == nil {
		href = strings.TrimSuffix(u.Path, "/")
	}
	if m := productIDRe.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	return ""
}

func parsePrice(text string) (float64, bool) {
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	price, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}

func valid(p domain.Product) bool {
	if p.Price <= 0 || p.Price > maxPrice {
		return false
	}
	n := len([]rune(p.Name))
	return n >= minNameLength && n <= maxNameLength
}
