package domain

import "errors"

// ErrInvalidQuantity is returned when a cart quantity is below one.
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// CartLine is one product in the cart. ID is the local identity and equals
// the recipe id; a cart holds at most one line per ID.
type CartLine struct {
	ID        string  `json:"id" validate:"required"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
	Quantity  int     `json:"quantity" validate:"gte=1"`
	Image     string  `json:"image,omitempty"`
	Time      string  `json:"time,omitempty"`
	Servings  int     `json:"servings,omitempty" validate:"gte=0"`
}

// Subtotal returns UnitPrice × Quantity.
func (l CartLine) Subtotal() float64 {
	return l.UnitPrice * float64(l.Quantity)
}

// Recipe is the minimal catalog card the storefront needs to put a recipe
// in the cart.
type Recipe struct {
	ID       ID     `json:"id"`
	Title    string `json:"title"`
	Price    Price  `json:"price"`
	Image    string `json:"image,omitempty"`
	Time     string `json:"time,omitempty"`
	Servings int    `json:"servings,omitempty"`
}

// Line converts the recipe into a cart line with the given quantity.
func (r Recipe) Line(quantity int) CartLine {
	return CartLine{
		ID:        r.ID.String(),
		Name:      r.Title,
		UnitPrice: float64(r.Price),
		Quantity:  quantity,
		Image:     r.Image,
		Time:      r.Time,
		Servings:  r.Servings,
	}
}

// ServerCartItem is one item of the server-side cart.
type ServerCartItem struct {
	ID       ID     `json:"id"`
	Recipe   Recipe `json:"recipe"`
	Quantity int    `json:"quantity"`
	// Price is the unit price captured when the item was added.
	Price Price `json:"price"`
}

// Line converts the server item into a local cart line. The captured price
// wins over the recipe's current price when the server reports one.
func (i ServerCartItem) Line() CartLine {
	line := i.Recipe.Line(i.Quantity)
	if i.Price > 0 {
		line.UnitPrice = float64(i.Price)
	}
	return line
}

// ServerCart is the authenticated user's cart as stored by the backend.
type ServerCart struct {
	ID         ID               `json:"id"`
	User       ID               `json:"user"`
	Items      []ServerCartItem `json:"items"`
	TotalPrice Price            `json:"total_price"`
}

// MergeLines folds lines that share an ID into one line (quantities summed,
// first occurrence keeps its position) and drops lines with quantity < 1.
func MergeLines(lines []CartLine) []CartLine {
	out := make([]CartLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			continue
		}
		if i, ok := index[l.ID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.ID] = len(out)
		out = append(out, l)
	}
	return out
}
