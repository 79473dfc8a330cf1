package domain

// Topping is an add-on selected for a cart line.
type Topping struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Image string  `json:"image,omitempty"`
}

// CartItem is one line in the cart. Price is the configured unit price, so the
// line total is Price * Quantity.
type CartItem struct {
	ID        int       `json:"id"`
	ProductID string    `json:"productId"`
	Name      string    `json:"name"`
	Image     string    `json:"image"`
	Size      string    `json:"size"`
	Crust     string    `json:"crust,omitempty"`
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity"`
	Toppings  []Topping `json:"toppings,omitempty"`
}

// LineTotal returns Price * Quantity.
func (i CartItem) LineTotal() float64 {
	return i.Price * float64(i.Quantity)
}

// Clone returns a copy that shares no slices with i.
func (i CartItem) Clone() CartItem {
	if i.Toppings != nil {
		i.Toppings = append([]Topping(nil), i.Toppings...)
	}
	return i
}

// Tenant is a restaurant scope for catalog, tax and delivery rules.
type Tenant struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}
