// Package catalog reads products, categories, toppings and restaurants from the
// catalog and auth services.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/KoushikPanda1729/client-ui/internal/domain"
	"github.com/KoushikPanda1729/client-ui/internal/platform/upstream"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
)

// ErrInvalidInput is returned for blank identifiers.
var ErrInvalidInput = errors.New("catalog: invalid input")

// ListParams filters a listing. Zero values select defaults.
type ListParams struct {
	Page       int
	Limit      int
	TenantID   string
	CategoryID string
	Search     string
}

func (p ListParams) query() url.Values {
	page, limit := p.Page, p.Limit
	if page < 1 {
		page = defaultPage
	}
	if limit < 1 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)
	q := url.Values{"page": {strconv.Itoa(page)}, "limit": {strconv.Itoa(limit)}}
	if v := strings.TrimSpace(p.TenantID); v != "" {
		q.Set("tenantId", v)
	}
	if v := strings.TrimSpace(p.CategoryID); v != "" {
		q.Set("categoryId", v)
	}
	if v := strings.TrimSpace(p.Search); v != "" {
		q.Set("q", v)
	}
	return q
}

// Client calls the catalog endpoints through the gateway.
type Client struct {
	api *upstream.Client
}

// NewClient wraps a gateway client.
func NewClient(api *upstream.Client) (*Client, error) {
	if api == nil {
		return nil, errors.New("catalog client: upstream client is required")
	}
	return &Client{api: api}, nil
}

type listPayload[T any] struct {
	Data       []T `json:"data"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

func (p listPayload[T]) toPage() domain.Page[T] {
	items := p.Data
	if items == nil {
		items = []T{}
	}
	return domain.Page[T]{Items: items, Total: p.Total, Page: p.Page, Limit: p.Limit, TotalPages: p.TotalPages}
}

// Products lists products.
func (c *Client) Products(ctx context.Context, params ListParams) (domain.Page[domain.Product], error) {
	var payload listPayload[domain.Product]
	if err := c.api.Get(ctx, "/catalog/products", params.query(), &payload); err != nil {
		return domain.Page[domain.Product]{}, fmt.Errorf("catalog: list products: %w", err)
	}
	return payload.toPage(), nil
}

// Product fetches one product.
func (c *Client) Product(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, ErrInvalidInput
	}
	var payload struct {
		Data domain.Product `json:"data"`
	}
	if err := c.api.Get(ctx, "/catalog/products/"+url.PathEscape(id), nil, &payload); err != nil {
		return domain.Product{}, fmt.Errorf("catalog: get product %s: %w", id, err)
	}
	return payload.Data, nil
}

// Categories lists categories.
func (c *Client) Categories(ctx context.Context, params ListParams) (domain.Page[domain.Category], error) {
	var payload listPayload[domain.Category]
	if err := c.api.Get(ctx, "/catalog/categories", params.query(), &payload); err != nil {
		return domain.Page[domain.Category]{}, fmt.Errorf("catalog: list categories: %w", err)
	}
	return payload.toPage(), nil
}

// Toppings lists toppings.
func (c *Client) Toppings(ctx context.Context, params ListParams) (domain.Page[domain.CatalogTopping], error) {
	var payload listPayload[domain.CatalogTopping]
	if err := c.api.Get(ctx, "/catalog/toppings", params.query(), &payload); err != nil {
		return domain.Page[domain.CatalogTopping]{}, fmt.Errorf("catalog: list toppings: %w", err)
	}
	return payload.toPage(), nil
}

type tenantPayload struct {
	ID      json.Number `json:"id"`
	Name    string      `json:"name"`
	Address string      `json:"address"`
}

// Tenants lists restaurants from the auth service.
func (c *Client) Tenants(ctx context.Context, page, limit int) (domain.Page[domain.Tenant], error) {
	var payload struct {
		Data       []tenantPayload `json:"data"`
		Pagination struct {
			Total       int `json:"total"`
			CurrentPage int `json:"currentPage"`
			PerPage     int `json:"perPage"`
			TotalPages  int `json:"totalPages"`
		} `json:"pagination"`
	}
	if err := c.api.Get(ctx, "/auth/tenants", ListParams{Page: page, Limit: limit}.query(), &payload); err != nil {
		return domain.Page[domain.Tenant]{}, fmt.Errorf("catalog: list tenants: %w", err)
	}
	out := domain.Page[domain.Tenant]{
		Items:      make([]domain.Tenant, 0, len(payload.Data)),
		Total:      payload.Pagination.Total,
		Page:       payload.Pagination.CurrentPage,
		Limit:      payload.Pagination.PerPage,
		TotalPages: payload.Pagination.TotalPages,
	}
	for _, t := range payload.Data {
		out.Items = append(out.Items, domain.Tenant{ID: t.ID.String(), Name: t.Name, Address: t.Address})
	}
	return out, nil
}

// Tenant finds a restaurant by id by scanning the tenant listing.
func (c *Client) Tenant(ctx context.Context, id string) (domain.Tenant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Tenant{}, ErrInvalidInput
	}
	for page := 1; ; page++ {
		tenants, err := c.Tenants(ctx, page, maxLimit)
		if err != nil {
			return domain.Tenant{}, err
		}
		for _, t := range tenants.Items {
			if t.ID == id {
				return t, nil
			}
		}
		if page >= tenants.TotalPages || len(tenants.Items) == 0 {
			return domain.Tenant{}, ErrTenantNotFound
		}
	}
}

// ErrTenantNotFound is returned when no restaurant has the requested id.
var ErrTenantNotFound = errors.New("catalog: tenant not found")
