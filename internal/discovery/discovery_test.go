package discovery_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grocery/crawler/internal/classifier"
	"grocery/crawler/internal/config"
	"grocery/crawler/internal/discovery"
	"grocery/crawler/internal/domain"
)

const site = "https://groceries.example.com"

type fakeRegistry struct {
	processed  map[string]bool
	discovered []string
}

func (r *fakeRegistry) IsProcessed(url string) bool {
	return r.processed[url]
}

func (r *fakeRegistry) MarkDiscovered(url string) {
	r.discovered = append(r.discovered, url)
}

func newDiscoverer() *discovery.Discoverer {
	c := classifier.New("groceries.example.com", config.Default().Classifier)
	return discovery.New(c, nil)
}

const categoryPage = `<html><body>
<nav class="breadcrumb"><a href="/" class="breadcrumb__link">Home</a></nav>
<a href="/dept/1234567890123/9876543210987/fresh-fruit" data-auto-id="linkTaxonomyExplore">Fresh Fruit</a>
<a href="/dept/1234567890123/1111111111111/salad" class="taxonomy-explore__item">Salad</a>
<a href="/dept/1234567890123/9876543210987/fresh-fruit#top">Fresh Fruit again</a>
<a href="/product/bananas/910000000001">Bananas</a>
<a href="?page=2" class="co-pagination__next">Next</a>
<a href="/checkout">Checkout</a>
<a href="https://elsewhere.example.org/dept/x">Elsewhere</a>
<a href="/static/app.js">script</a>
<a href="javascript:void(0)">noop</a>
<a href="#">top</a>
<a href="">empty</a>
<a href="/recipes"><img alt="Recipes" src="/r.png"></a>
<a href="/dept/9999999999999">Processed</a>
</body></html>`

func TestDiscoverCategorizesLinks(t *testing.T) {
	d := newDiscoverer()
	reg := &fakeRegistry{processed: map[string]bool{site + "/dept/9999999999999": true}}

	result, err := d.Discover(categoryPage, site+"/dept/1234567890123", reg)
	require.NoError(t, err)

	links := result.Links
	require.Len(t, links[domain.LinkTypeSubcategory], 2)
	assert.Equal(t, site+"/dept/1234567890123/9876543210987/fresh-fruit", links[domain.LinkTypeSubcategory][0].URL)
	assert.Equal(t, domain.SpecialTaxonomyExplore, links[domain.LinkTypeSubcategory][0].Special)
	assert.Equal(t, "Salad", links[domain.LinkTypeSubcategory][1].Text)

	require.Len(t, links[domain.LinkTypeProduct], 1)
	assert.Equal(t, 5, links[domain.LinkTypeProduct][0].Priority)

	require.Len(t, links[domain.LinkTypePagination], 1)
	assert.Equal(t, site+"/dept/1234567890123?page=2", links[domain.LinkTypePagination][0].URL)

	require.Len(t, links[domain.LinkTypeNavigation], 1)
	require.Len(t, links[domain.LinkTypeOther], 1)
	assert.Equal(t, "Recipes", links[domain.LinkTypeOther][0].Text)

	stats := result.Stats
	assert.Equal(t, 14, stats.Anchors)
	assert.Equal(t, 2, stats.EmptyHref)
	assert.Equal(t, 1, stats.Unresolvable)
	assert.Equal(t, 3, stats.Invalid)
	assert.Equal(t, 1, stats.AlreadyProcessed)
	assert.Equal(t, 1, stats.Duplicate)
	assert.Equal(t, 6, stats.Accepted)
	assert.Equal(t, 2, stats.ByType[domain.LinkTypeSubcategory])
	assert.False(t, stats.MissingSubcategories)

	assert.Len(t, reg.discovered, 6)
	assert.NotContains(t, reg.discovered, site+"/dept/9999999999999")
}

func TestDiscoverWarnsWhenCategoryPageHasNoSubcategories(t *testing.T) {
	d := newDiscoverer()
	page := `<a href="/product/milk/910000000002">Milk</a><a href="/recipes">Recipes</a>`

	result, err := d.Discover(page, site+"/dept/1234567890123", nil)
	require.NoError(t, err)

	assert.True(t, result.Stats.MissingSubcategories)
	assert.Equal(t, 2, result.Links.Total())
}

func TestDiscoverNoWarningOutsideCategoryPages(t *testing.T) {
	d := newDiscoverer()

	result, err := d.Discover(`<a href="/recipes">Recipes</a>`, site+"/", nil)
	require.NoError(t, err)
	assert.False(t, result.Stats.MissingSubcategories)
}

func TestDiscoverHonoursBaseElement(t *testing.T) {
	d := newDiscoverer()
	page := `<html><head><base href="https://groceries.example.com/dept/"></head>
<body><a href="1234567890123">Bakery</a></body></html>`

	result, err := d.Discover(page, site+"/somewhere/else", nil)
	require.NoError(t, err)

	require.Equal(t, 1, result.Links.Total())
	assert.Equal(t, site+"/dept/1234567890123", result.Links[domain.LinkTypeSubcategory][0].URL)
}

func TestDiscoverRejectsInvalidCurrentURL(t *testing.T) {
	d := newDiscoverer()

	_, err := d.Discover("<a href='/x'>x</a>", "http://[::1", nil)
	require.Error(t, err)
}
