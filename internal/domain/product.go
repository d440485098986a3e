package domain

// Product is one product listing extracted from a category or results page
type Product struct {
	ExternalID   string   `json:"external_id"`
	Name         string   `json:"name"`
	Price        float64  `json:"price"`
	WasPrice     *float64 `json:"was_price,omitempty"`
	Unit         string   `json:"unit"`
	ImageURL     string   `json:"image_url,omitempty"`
	ProductURL   string   `json:"product_url,omitempty"`
	InStock      bool     `json:"in_stock"`
	SpecialOffer bool     `json:"special_offer"`
	CategoryCode string   `json:"category_code,omitempty"`
}
