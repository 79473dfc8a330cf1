package domain

// PriceOption maps option values (e.g. "Small") to their price for one attribute.
type PriceOption struct {
	PriceType        string             `json:"priceType"`
	AvailableOptions map[string]float64 `json:"availableOptions"`
}

// Product is a catalog entry. PriceConfiguration is keyed by attribute name, e.g. "Size" or "Crust".
type Product struct {
	ID                 string                 `json:"_id"`
	Name               string                 `json:"name"`
	Description        string                 `json:"description"`
	Image              string                 `json:"image"`
	CategoryID         string                 `json:"categoryId"`
	TenantID           string                 `json:"tenantId"`
	IsPublished        bool                   `json:"isPublish"`
	PriceConfiguration map[string]PriceOption `json:"priceConfiguration"`
}

// Category groups products.
type Category struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// CatalogTopping is a topping as listed by the catalog service.
type CatalogTopping struct {
	ID          string  `json:"_id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Image       string  `json:"image"`
	TenantID    string  `json:"tenantId"`
	IsPublished bool    `json:"isPublish"`
}

// Topping converts the catalog record to the cart representation.
func (t CatalogTopping) Topping() Topping {
	return Topping{ID: t.ID, Name: t.Name, Price: t.Price, Image: t.Image}
}

// Page is one page of a listing.
type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}
