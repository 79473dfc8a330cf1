// Package cart owns the shopping cart for one storefront session: the line items,
// the derived subtotal and the selected restaurant. Mutations are Actions applied
// by the pure Reduce function; Store serialises them and notifies subscribers.
package cart

import (
	"errors"
	"slices"
	"strings"

	"github.com/KoushikPanda1729/client-ui/internal/domain"
	"github.com/KoushikPanda1729/client-ui/internal/pricing"
)

// MaxQuantity bounds a single line's quantity.
const MaxQuantity = 10

// ErrInvalidItem is returned when an added item lacks a product, size or sane price/quantity.
var ErrInvalidItem = errors.New("cart: invalid item")

// ActionType names a cart mutation.
type ActionType string

const (
	ActionAdd            ActionType = "add"
	ActionUpdateQuantity ActionType = "update_quantity"
	ActionRemove         ActionType = "remove"
	ActionClear          ActionType = "clear"
	ActionSelectTenant   ActionType = "select_tenant"
	ActionSetCategory    ActionType = "set_category"
)

// Action is one cart mutation. Build it with the constructors below.
type Action struct {
	Type     ActionType
	Item     domain.CartItem
	ItemID   int
	Quantity int
	Tenant   *domain.Tenant
	Category string
}

// Add appends item, or merges it into the line with the same product, size, crust
// and toppings. A merged quantity above MaxQuantity is capped at MaxQuantity, so
// q1+q2 is kept only while it stays within the bound.
func Add(item domain.CartItem) Action { return Action{Type: ActionAdd, Item: item.Clone()} }

// UpdateQuantity sets line id to quantity, capped at MaxQuantity. Quantities below
// 1 and unknown ids leave the cart unchanged.
func UpdateQuantity(id, quantity int) Action {
	return Action{Type: ActionUpdateQuantity, ItemID: id, Quantity: quantity}
}

// Remove drops line id.
func Remove(id int) Action { return Action{Type: ActionRemove, ItemID: id} }

// Clear empties the cart. The selected tenant and the line id sequence survive.
func Clear() Action { return Action{Type: ActionClear} }

// SelectTenant switches restaurant; it resets the category filter.
func SelectTenant(t domain.Tenant) Action { return Action{Type: ActionSelectTenant, Tenant: &t} }

// SetCategory records the catalog category filter.
func SetCategory(categoryID string) Action {
	return Action{Type: ActionSetCategory, Category: strings.TrimSpace(categoryID)}
}

// State is the single source of truth for a session's cart.
type State struct {
	Items    []domain.CartItem `json:"items"`
	Subtotal float64           `json:"subtotal"`
	Tenant   *domain.Tenant    `json:"tenant,omitempty"`
	Category string            `json:"category,omitempty"`
	// LastID is the highest line id ever issued. It survives Clear so ids never repeat.
	LastID int `json:"-"`
}

// Count returns the total quantity across lines.
func (s State) Count() int {
	n := 0
	for _, item := range s.Items {
		n += item.Quantity
	}
	return n
}

// Item returns the line with the given id.
func (s State) Item(id int) (domain.CartItem, bool) {
	for _, item := range s.Items {
		if item.ID == id {
			return item.Clone(), true
		}
	}
	return domain.CartItem{}, false
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	if s.Items != nil {
		out.Items = make([]domain.CartItem, len(s.Items))
		for i, item := range s.Items {
			out.Items[i] = item.Clone()
		}
	}
	if s.Tenant != nil {
		t := *s.Tenant
		out.Tenant = &t
	}
	return out
}

// Reduce applies a to s and returns the next state and whether anything changed.
// s is never modified.
func Reduce(s State, a Action) (State, bool, error) {
	next := s.Clone()
	switch a.Type {
	case ActionAdd:
		item, err := normalizeItem(a.Item)
		if err != nil {
			return s, false, err
		}
		key := lineKey(item)
		if idx := slices.IndexFunc(next.Items, func(existing domain.CartItem) bool { return lineKey(existing) == key }); idx >= 0 {
			merged := min(next.Items[idx].Quantity+item.Quantity, MaxQuantity)
			if merged == next.Items[idx].Quantity {
				return s, false, nil
			}
			next.Items[idx].Quantity = merged
		} else {
			next.LastID++
			item.ID = next.LastID
			next.Items = append(next.Items, item)
		}

	case ActionUpdateQuantity:
		if a.Quantity < 1 {
			return s, false, nil
		}
		idx := slices.IndexFunc(next.Items, func(item domain.CartItem) bool { return item.ID == a.ItemID })
		qty := min(a.Quantity, MaxQuantity)
		if idx < 0 || next.Items[idx].Quantity == qty {
			return s, false, nil
		}
		next.Items[idx].Quantity = qty

	case ActionRemove:
		idx := slices.IndexFunc(next.Items, func(item domain.CartItem) bool { return item.ID == a.ItemID })
		if idx < 0 {
			return s, false, nil
		}
		next.Items = slices.Delete(next.Items, idx, idx+1)

	case ActionClear:
		if len(next.Items) == 0 && next.Subtotal == 0 {
			return s, false, nil
		}
		next.Items = nil

	case ActionSelectTenant:
		if a.Tenant == nil {
			return s, false, nil
		}
		if next.Tenant != nil && *next.Tenant == *a.Tenant {
			return s, false, nil
		}
		t := *a.Tenant
		next.Tenant = &t
		next.Category = ""

	case ActionSetCategory:
		if next.Category == a.Category {
			return s, false, nil
		}
		next.Category = a.Category

	default:
		return s, false, nil
	}

	next.Subtotal = pricing.Subtotal(next.Items)
	return next, true, nil
}

func normalizeItem(item domain.CartItem) (domain.CartItem, error) {
	item.ProductID = strings.TrimSpace(item.ProductID)
	item.Size = strings.TrimSpace(item.Size)
	item.Crust = strings.TrimSpace(item.Crust)
	if item.ProductID == "" || item.Size == "" || item.Price < 0 || item.Quantity < 1 || item.Quantity > MaxQuantity {
		return domain.CartItem{}, ErrInvalidItem
	}
	for _, topping := range item.Toppings {
		if strings.TrimSpace(topping.ID) == "" {
			return domain.CartItem{}, ErrInvalidItem
		}
	}
	return item.Clone(), nil
}

// lineKey identifies a line by product, size, crust and the topping id multiset.
func lineKey(item domain.CartItem) string {
	ids := make([]string, 0, len(item.Toppings))
	for _, topping := range item.Toppings {
		ids = append(ids, topping.ID)
	}
	slices.Sort(ids)
	return item.ProductID + "\x00" + item.Size + "\x00" + item.Crust + "\x00" + strings.Join(ids, ",")
}
