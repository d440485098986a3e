package extractor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grocery/crawler/internal/domain"
)

const listingPage = `<html><body>
<div class="co-product">
  <h3 class="co-product__title"><a class="co-product__anchor" href="/product/bananas/910000000001">ASDA Bananas</a></h3>
  <strong class="co-product__price">£0.89</strong>
  <span class="co-product__volume">5 pack</span>
  <img class="asda-img" src="/images/bananas.jpg">
</div>
<div class="co-product">
  <h3 class="co-product__title"><a class="co-product__anchor" href="/product/apples/910000000002">Pink Lady Apples</a></h3>
  <strong class="co-product__price">now £1.50</strong>
  <span class="co-product__was-price">was £2.00</span>
  <span class="co-product__promo-pill">Rollback</span>
</div>
<div class="co-product">
  <h3 class="co-product__title"><a class="co-product__anchor" href="/product/no-price/910000000003">No Price</a></h3>
</div>
<div class="co-product">
  <h3 class="co-product__title"><a class="co-product__anchor" href="/product/no-id">Missing Id</a></h3>
  <strong class="co-product__price">£3.00</strong>
</div>
</body></html>`

const genericPage = `<html><body>
<ul>
  <li class="product-tile">
    <h3><a href="/product/milk/910000000010">Semi Skimmed Milk</a></h3>
    <span class="product-price">£1.45</span>
  </li>
</ul>
</body></html>`

func parse(t *testing.T, html, pageURL string) ([]domain.Product, string) {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return Parse(doc, pageURL)
}

func TestParseListing(t *testing.T) {
	products, strategy := parse(t, listingPage, "https://groceries.example.com/aisle/1234567890123")

	assert.Equal(t, "co-product", strategy)
	require.Len(t, products, 2)

	bananas := products[0]
	assert.Equal(t, "910000000001", bananas.ExternalID)
	assert.Equal(t, "ASDA Bananas", bananas.Name)
	assert.InDelta(t, 0.89, bananas.Price, 0.001)
	assert.Nil(t, bananas.WasPrice)
	assert.Equal(t, "5 pack", bananas.Unit)
	assert.Equal(t, "https://groceries.example.com/images/bananas.jpg", bananas.ImageURL)
	assert.Equal(t, "https://groceries.example.com/product/bananas/910000000001", bananas.ProductURL)
	assert.True(t, bananas.InStock)
	assert.False(t, bananas.SpecialOffer)

	apples := products[1]
	assert.InDelta(t, 1.5, apples.Price, 0.001)
	require.NotNil(t, apples.WasPrice)
	assert.InDelta(t, 2.0, *apples.WasPrice, 0.001)
	assert.Equal(t, "each", apples.Unit)
	assert.True(t, apples.SpecialOffer)
}

func TestParseFallsBackToGeneric(t *testing.T) {
	products, strategy := parse(t, genericPage, "https://groceries.example.com/search?q=milk")

	assert.Equal(t, "generic", strategy)
	require.Len(t, products, 1)
	assert.Equal(t, "910000000010", products[0].ExternalID)
	assert.Equal(t, "Semi Skimmed Milk", products[0].Name)
	assert.InDelta(t, 1.45, products[0].Price, 0.001)
}

func TestParseNoProducts(t *testing.T) {
	products, strategy := parse(t, "<html><body><p>Nothing here</p></body></html>", "https://groceries.example.com/")
	assert.Empty(t, products)
	assert.Empty(t, strategy)
}

type fakePage struct {
	url    string
	source string
	err    error
}

func (p *fakePage) CurrentURL(context.Context) (string, error) { return p.url, nil }
func (p *fakePage) PageSource(context.Context) (string, error) { return p.source, p.err }

type fakeStore struct {
	saved []domain.Product
	err   error
}

func (s *fakeStore) SaveProducts(_ context.Context, products []domain.Product) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.saved = append(s.saved, products...)
	return len(products), nil
}

type fakeCache struct {
	extracted map[string]int
}

func (c *fakeCache) WasExtracted(_ context.Context, pageURL string) (bool, error) {
	_, ok := c.extracted[pageURL]
	return ok, nil
}

func (c *fakeCache) MarkExtracted(_ context.Context, pageURL string, products int) error {
	c.extracted[pageURL] = products
	return nil
}

func TestExtractFromCurrentPage(t *testing.T) {
	ctx := context.Background()
	page := &fakePage{url: "https://groceries.example.com/aisle/1234567890123", source: listingPage}
	store := &fakeStore{}
	cache := &fakeCache{extracted: map[string]int{}}
	e := New(page, store, cache, nil)

	n, err := e.ExtractFromCurrentPage(ctx, &domain.Category{URLCode: "1234567890123"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, p := range store.saved {
		assert.Equal(t, "1234567890123", p.CategoryCode)
	}
	assert.Equal(t, 2, cache.extracted[page.url])

	n, err = e.ExtractFromCurrentPage(ctx, &domain.Category{URLCode: "1234567890123"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, store.saved, 2)
}

func TestExtractFromPageAtURLUsesCodeFromURL(t *testing.T) {
	pageURL := "https://groceries.example.com/dept/1111111111111/2222222222222?page=2"
	page := &fakePage{url: pageURL, source: listingPage}
	store := &fakeStore{}
	e := New(page, store, nil, nil)

	n, err := e.ExtractFromPageAtURL(context.Background(), pageURL)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "2222222222222", store.saved[0].CategoryCode)
}

func TestExtractPropagatesStoreErrors(t *testing.T) {
	page := &fakePage{url: "https://groceries.example.com/aisle/1234567890123", source: listingPage}
	cache := &fakeCache{extracted: map[string]int{}}
	e := New(page, &fakeStore{err: errors.New("db down")}, cache, nil)

	_, err := e.ExtractFromCurrentPage(context.Background(), &domain.Category{URLCode: "1234567890123"})
	require.Error(t, err)
	assert.Empty(t, cache.extracted)
}
