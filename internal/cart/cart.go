// Package cart holds the session-scoped shopping cart. A Cart does no I/O
// and is not safe for concurrent use; one session owns one Cart.
package cart

import (
	"errors"

	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
)

var ErrOutOfStock = errors.New("product is out of stock")

type Line struct {
	Product  models.Product `json:"product"`
	Quantity int            `json:"quantity"`
}

func (l Line) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart keeps at most one line per product id, in insertion order.
type Cart struct {
	lines []Line
}

func New() *Cart {
	return &Cart{}
}

// AddItem merges quantity into the product's line, appending one if needed.
// The result is capped at the product's stock. A product with no stock is
// refused with ErrOutOfStock and the cart is left unchanged.
func (c *Cart) AddItem(product models.Product, quantity int) error {
	if product.StockQuantity <= 0 {
		return ErrOutOfStock
	}
	if quantity < 1 {
		quantity = 1
	}

	if i := c.index(product.ID); i >= 0 {
		c.lines[i].Product = product
		c.lines[i].Quantity = clamp(addCapped(c.lines[i].Quantity, quantity, product.StockQuantity), product.StockQuantity)
		return nil
	}

	c.lines = append(c.lines, Line{
		Product:  product,
		Quantity: clamp(quantity, product.StockQuantity),
	})
	return nil
}

func (c *Cart) RemoveItem(productID int64) {
	if i := c.index(productID); i >= 0 {
		c.lines = append(c.lines[:i], c.lines[i+1:]...)
	}
}

// UpdateQuantity sets a line's quantity within [1, stock]. Zero or less
// removes the line. Unknown products are ignored.
func (c *Cart) UpdateQuantity(productID int64, quantity int) {
	i := c.index(productID)
	if i < 0 {
		return
	}
	if quantity <= 0 || c.lines[i].Product.StockQuantity <= 0 {
		c.RemoveItem(productID)
		return
	}
	c.lines[i].Quantity = clamp(quantity, c.lines[i].Product.StockQuantity)
}

// SyncProduct replaces the snapshot held for product and re-applies the
// stock cap. The line is dropped when the product has sold out.
func (c *Cart) SyncProduct(product models.Product) {
	i := c.index(product.ID)
	if i < 0 {
		return
	}
	if product.StockQuantity <= 0 {
		c.RemoveItem(product.ID)
		return
	}
	c.lines[i].Product = product
	c.lines[i].Quantity = clamp(c.lines[i].Quantity, product.StockQuantity)
}

// Total is recomputed from the lines on every call.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, line := range c.lines {
		n += line.Quantity
	}
	return n
}

// Lines returns a copy; mutating it does not change the cart.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Line(productID int64) (Line, bool) {
	if i := c.index(productID); i >= 0 {
		return c.lines[i], true
	}
	return Line{}, false
}

func (c *Cart) Len() int {
	return len(c.lines)
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

func (c *Cart) Clear() {
	c.lines = nil
}

func (c *Cart) index(productID int64) int {
	for i, line := range c.lines {
		if line.Product.ID == productID {
			return i
		}
	}
	return -1
}

// addCapped returns existing+quantity, saturating at stock instead of
// overflowing.
func addCapped(existing, quantity, stock int) int {
	if quantity >= stock-existing {
		return stock
	}
	return existing + quantity
}

func clamp(quantity, stock int) int {
	return max(1, min(quantity, stock))
}
