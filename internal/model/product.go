package model

import "time"

// Product is one catalog record, keyed by the feed's external ID.
// The ID is immutable once created; exactly one live record exists per ID.
type Product struct {
	ID          string `json:"id"`
	ItemGroupID string `json:"item_group_id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	// Prices are nil when the feed omits them entirely.
	Price     *float64 `json:"price,omitempty"`
	SalePrice *float64 `json:"sale_price,omitempty"`

	Brand            string `json:"brand,omitempty"`
	Condition        string `json:"condition,omitempty"`
	Availability     string `json:"availability,omitempty"`
	AvailabilityDate string `json:"availability_date,omitempty"`
	Color            string `json:"color,omitempty"`
	Material         string `json:"material,omitempty"`
	MPN              string `json:"mpn,omitempty"`

	GoogleProductCategory string `json:"google_product_category,omitempty"`
	ProductType           string `json:"product_type,omitempty"`

	Link                 string `json:"link,omitempty"`
	MobileLink           string `json:"mobile_link,omitempty"`
	ImageLink            string `json:"image_link,omitempty"`
	AdditionalImageLinks string `json:"additional_image_links,omitempty"`

	CustomLabel1 string `json:"custom_label_1,omitempty"`
	CustomLabel2 string `json:"custom_label_2,omitempty"`
	CustomLabel3 string `json:"custom_label_3,omitempty"`
	CustomLabel4 string `json:"custom_label_4,omitempty"`

	// RawData keeps the full normalized payload for fields not otherwise modeled.
	RawData map[string]any `json:"raw_data,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastSyncedAt time.Time `json:"last_synced_at"`
}

// ProductView is the projection returned by query execution. It carries the
// subset of fields the formatter and the assistant present to users.
type ProductView struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Price        *float64 `json:"price,omitempty"`
	SalePrice    *float64 `json:"sale_price,omitempty"`
	Brand        string   `json:"brand,omitempty"`
	Availability string   `json:"availability,omitempty"`
	Color        string   `json:"color,omitempty"`
	Material     string   `json:"material,omitempty"`
	Category     string   `json:"category,omitempty"`
	ImageURL     string   `json:"image_url,omitempty"`
}

// View projects a Product into its query-result shape. The category falls
// back to the Google taxonomy when the merchant taxonomy is empty.
func (p Product) View() ProductView {
	category := p.ProductType
	if category == "" {
		category = p.GoogleProductCategory
	}
	return ProductView{
		ID:           p.ID,
		Title:        p.Title,
		Description:  p.Description,
		Price:        p.Price,
		SalePrice:    p.SalePrice,
		Brand:        p.Brand,
		Availability: p.Availability,
		Color:        p.Color,
		Material:     p.Material,
		Category:     category,
		ImageURL:     p.ImageLink,
	}
}
