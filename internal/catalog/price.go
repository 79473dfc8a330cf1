package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/KoushikPanda1729/client-ui/internal/domain"
	"github.com/KoushikPanda1729/client-ui/internal/pricing"
)

// ErrUnknownOption is returned when a selected size or crust is not offered for a product.
var ErrUnknownOption = errors.New("catalog: unknown product option")

// Selection is a shopper's configuration of one product.
type Selection struct {
	Size       string
	Crust      string
	ToppingIDs []string
	Quantity   int
}

// ConfigureItem prices a selection against the product's price configuration and
// the tenant's toppings, returning a cart line ready to add.
func ConfigureItem(product domain.Product, toppings []domain.CatalogTopping, sel Selection) (domain.CartItem, error) {
	size, sizePrice, err := lookupOption(product.PriceConfiguration, sel.Size, "size")
	if err != nil {
		return domain.CartItem{}, err
	}
	price := sizePrice

	var crust string
	if strings.TrimSpace(sel.Crust) != "" {
		var crustPrice float64
		crust, crustPrice, err = lookupOption(product.PriceConfiguration, sel.Crust, "crust")
		if err != nil {
			return domain.CartItem{}, err
		}
		price += crustPrice
	}

	byID := make(map[string]domain.CatalogTopping, len(toppings))
	for _, t := range toppings {
		byID[t.ID] = t
	}
	picked := make([]domain.Topping, 0, len(sel.ToppingIDs))
	for _, id := range sel.ToppingIDs {
		t, ok := byID[strings.TrimSpace(id)]
		if !ok {
			return domain.CartItem{}, fmt.Errorf("%w: topping %q", ErrUnknownOption, id)
		}
		picked = append(picked, t.Topping())
		price += t.Price
	}

	return domain.CartItem{
		ProductID: product.ID,
		Name:      product.Name,
		Image:     product.Image,
		Size:      size,
		Crust:     crust,
		Price:     pricing.Round2(price),
		Quantity:  sel.Quantity,
		Toppings:  picked,
	}, nil
}

// lookupOption prefers the configuration entry named after the attribute and falls
// back to any entry offering the value. Matching is case-insensitive.
func lookupOption(config map[string]domain.PriceOption, value, attribute string) (string, float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", 0, fmt.Errorf("%w: %s is required", ErrUnknownOption, attribute)
	}
	match := func(opt domain.PriceOption) (string, float64, bool) {
		for name, price := range opt.AvailableOptions {
			if strings.EqualFold(name, value) {
				return name, price, true
			}
		}
		return "", 0, false
	}
	for key, opt := range config {
		if strings.EqualFold(key, attribute) {
			if name, price, ok := match(opt); ok {
				return name, price, nil
			}
		}
	}
	for _, opt := range config {
		if name, price, ok := match(opt); ok {
			return name, price, nil
		}
	}
	return "", 0, fmt.Errorf("%w: %s %q", ErrUnknownOption, attribute, value)
}
