package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/safar/go-storefront/internal/cart"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
)

type cartLineView struct {
	Product  models.Product  `json:"product"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type cartView struct {
	Items     []cartLineView  `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

func viewCart(c *cart.Cart) cartView {
	v := cartView{
		Items:     []cartLineView{},
		Total:     c.Total(),
		ItemCount: c.ItemCount(),
	}
	for _, line := range c.Lines() {
		v.Items = append(v.Items, cartLineView{
			Product:  line.Product,
			Quantity: line.Quantity,
			Subtotal: line.Subtotal(),
		})
	}
	return v
}

// refresh re-reads every line's product so prices and stock reflect the
// catalog. Products that have been deleted drop out of the cart.
func (s *Server) refresh(ctx context.Context, c *cart.Cart) error {
	for _, line := range c.Lines() {
		product, err := s.store.GetProduct(ctx, line.Product.ID)
		switch {
		case errors.Is(err, database.ErrProductNotFound):
			c.RemoveItem(line.Product.ID)
		case err != nil:
			return err
		default:
			c.SyncProduct(*product)
		}
	}
	return nil
}

// withCart runs fn on the caller's session cart under the session lock and
// responds with the resulting cart.
func (s *Server) withCart(w http.ResponseWriter, r *http.Request, fn func(c *cart.Cart) error) {
	sess := s.sessions.Lookup(w, r)

	var view cartView
	err := sess.Do(func(c *cart.Cart) error {
		if err := s.refresh(r.Context(), c); err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		view = viewCart(c)
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	s.withCart(w, r, func(*cart.Cart) error { return nil })
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	s.withCart(w, r, func(c *cart.Cart) error {
		c.Clear()
		return nil
	})
}

type addItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decode(r, &req); err != nil || req.ProductID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	s.withCart(w, r, func(c *cart.Cart) error {
		product, err := s.store.GetProduct(r.Context(), req.ProductID)
		if err != nil {
			return err
		}
		return c.AddItem(*product, req.Quantity)
	})
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

var errNotInCart = errors.New("product is not in the cart")

func (s *Server) updateCartItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := idParam(r, "productID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid product ID")
		return
	}

	var req updateItemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	sess := s.sessions.Lookup(w, r)
	var view cartView
	err := sess.Do(func(c *cart.Cart) error {
		if err := s.refresh(r.Context(), c); err != nil {
			return err
		}
		if _, ok := c.Line(productID); !ok {
			return errNotInCart
		}
		c.UpdateQuantity(productID, req.Quantity)
		view = viewCart(c)
		return nil
	})
	switch {
	case errors.Is(err, errNotInCart):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case err != nil:
		s.fail(w, r, err)
	default:
		writeJSON(w, http.StatusOK, view)
	}
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := idParam(r, "productID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid product ID")
		return
	}

	s.withCart(w, r, func(c *cart.Cart) error {
		c.RemoveItem(productID)
		return nil
	})
}
