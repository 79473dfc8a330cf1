package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/KoushikPanda1729/client-ui/internal/cart"
	"github.com/KoushikPanda1729/client-ui/internal/catalog"
	"github.com/KoushikPanda1729/client-ui/internal/session"
)

// CatalogHandlers serves restaurants, menus and restaurant selection.
type CatalogHandlers struct {
	catalog *catalog.Client
}

// NewCatalogHandlers constructs catalog routes.
func NewCatalogHandlers(c *catalog.Client) *CatalogHandlers {
	return &CatalogHandlers{catalog: c}
}

// Routes wires /tenants, /tenant and /catalog.
func (h *CatalogHandlers) Routes(r chi.Router) {
	r.Get("/tenants", h.listTenants)
	r.Put("/tenant", h.selectTenant)
	r.Route("/catalog", func(r chi.Router) {
		r.Get("/products", h.listProducts)
		r.Get("/products/{productID}", h.getProduct)
		r.Get("/categories", h.listCategories)
		r.Get("/toppings", h.listToppings)
	})
}

func (h *CatalogHandlers) listTenants(w http.ResponseWriter, r *http.Request) {
	page, err := h.catalog.Tenants(r.Context(), queryInt(r, "page"), queryInt(r, "limit"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, page)
}

type selectTenantRequest struct {
	TenantID string `json:"tenantId"`
}

func (h *CatalogHandlers) selectTenant(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	var in selectTenantRequest
	if !decodeBody(w, r, &in) {
		return
	}
	tenant, err := h.catalog.Tenant(r.Context(), in.TenantID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	state := sess.Cart().SelectTenant(tenant)
	writeJSONResponse(w, http.StatusOK, newCartView(state))
}

// listParams reads paging and filters. The tenant defaults to the session's
// selected restaurant; an explicit categoryId is remembered as the menu filter.
func listParams(r *http.Request, sess *session.Session) catalog.ListParams {
	q := r.URL.Query()
	params := catalog.ListParams{
		Page:     queryInt(r, "page"),
		Limit:    queryInt(r, "limit"),
		TenantID: strings.TrimSpace(q.Get("tenantId")),
		Search:   strings.TrimSpace(q.Get("q")),
	}
	state := sess.Cart().Snapshot()
	if params.TenantID == "" && state.Tenant != nil {
		params.TenantID = state.Tenant.ID
	}
	if _, set := q["categoryId"]; set {
		params.CategoryID = strings.TrimSpace(q.Get("categoryId"))
		_, _ = sess.Cart().Dispatch(cart.SetCategory(params.CategoryID))
	} else {
		params.CategoryID = state.Category
	}
	return params
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	page, err := h.catalog.Products(r.Context(), listParams(r, sess))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, page)
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.Product(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, product)
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	params := listParams(r, sess)
	params.CategoryID = ""
	page, err := h.catalog.Categories(r.Context(), params)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, page)
}

func (h *CatalogHandlers) listToppings(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	params := listParams(r, sess)
	params.CategoryID = ""
	page, err := h.catalog.Toppings(r.Context(), params)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, page)
}
