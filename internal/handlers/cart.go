package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/KoushikPanda1729/client-ui/internal/cart"
	"github.com/KoushikPanda1729/client-ui/internal/catalog"
	"github.com/KoushikPanda1729/client-ui/internal/domain"
	"github.com/KoushikPanda1729/client-ui/internal/platform/format"
	"github.com/KoushikPanda1729/client-ui/internal/platform/httpx"
)

const toppingPageLimit = 100

// CartHandlers edit the session cart. Items are priced here from the catalog so
// the browser never supplies prices.
type CartHandlers struct {
	catalog *catalog.Client
	money   format.Money
}

// NewCartHandlers constructs cart routes.
func NewCartHandlers(c *catalog.Client, money format.Money) *CartHandlers {
	return &CartHandlers{catalog: c, money: money}
}

// Routes wires /cart.
func (h *CartHandlers) Routes(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.getCart)
		r.Delete("/", h.clearCart)
		r.Post("/items", h.addItem)
		r.Patch("/items/{itemID}", h.updateItem)
		r.Delete("/items/{itemID}", h.removeItem)
	})
}

type cartView struct {
	Items           []domain.CartItem `json:"items"`
	Count           int               `json:"count"`
	Subtotal        float64           `json:"subtotal"`
	SubtotalDisplay string            `json:"subtotalDisplay,omitempty"`
	Tenant          *domain.Tenant    `json:"tenant,omitempty"`
	Category        string            `json:"category,omitempty"`
}

func newCartView(state cart.State) cartView {
	items := state.Items
	if items == nil {
		items = []domain.CartItem{}
	}
	return cartView{
		Items:    items,
		Count:    state.Count(),
		Subtotal: state.Subtotal,
		Tenant:   state.Tenant,
		Category: state.Category,
	}
}

func (h *CartHandlers) view(state cart.State) cartView {
	v := newCartView(state)
	v.SubtotalDisplay = h.money.Format(state.Subtotal)
	return v
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, h.view(sess.Cart().Snapshot()))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, h.view(sess.Cart().Clear()))
}

type addItemRequest struct {
	ProductID  string   `json:"productId"`
	Size       string   `json:"size"`
	Crust      string   `json:"crust"`
	ToppingIDs []string `json:"toppingIds"`
	Quantity   int      `json:"quantity"`
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	var in addItemRequest
	if !decodeBody(w, r, &in) {
		return
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	ctx := r.Context()
	product, err := h.catalog.Product(ctx, in.ProductID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	var toppings []domain.CatalogTopping
	if len(in.ToppingIDs) > 0 {
		tenantID := product.TenantID
		if tenant := sess.Cart().Snapshot().Tenant; tenantID == "" && tenant != nil {
			tenantID = tenant.ID
		}
		page, err := h.catalog.Toppings(ctx, catalog.ListParams{TenantID: tenantID, Limit: toppingPageLimit})
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		toppings = page.Items
	}

	item, err := catalog.ConfigureItem(product, toppings, catalog.Selection{
		Size:       in.Size,
		Crust:      in.Crust,
		ToppingIDs: in.ToppingIDs,
		Quantity:   in.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	line, err := sess.Cart().AddItem(item)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"item": line, "cart": h.view(sess.Cart().Snapshot())})
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func itemID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(strings.TrimSpace(chi.URLParam(r, "itemID")))
	if err != nil || id <= 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "item id must be a positive integer", http.StatusBadRequest))
		return 0, false
	}
	return id, true
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	var in updateItemRequest
	if !decodeBody(w, r, &in) {
		return
	}
	if _, found := sess.Cart().Snapshot().Item(id); !found {
		httpx.WriteError(r.Context(), w, httpx.NewError("item_not_found", "cart item not found", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, h.view(sess.Cart().UpdateQuantity(id, in.Quantity)))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, h.view(sess.Cart().RemoveItem(id)))
}
