package api

import (
	"errors"
	"net/http"

	"github.com/safar/go-storefront/internal/auth"
	"github.com/safar/go-storefront/internal/cart"
	"github.com/safar/go-storefront/internal/lifecycle"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/store"
	"github.com/safar/go-storefront/internal/timeline"
)

func (s *Server) placeOrder(w http.ResponseWriter, r *http.Request) {
	var info models.ShippingInfo
	if err := decode(r, &info); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	sess := s.sessions.Lookup(w, r)
	var order *models.Order
	err := sess.Do(func(c *cart.Cart) error {
		if err := s.refresh(r.Context(), c); err != nil {
			return err
		}
		var err error
		order, err = s.checkout.Checkout(r.Context(), c, auth.FromContext(r.Context()), info)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	actor := auth.FromContext(r.Context())
	if err := auth.RequireAuthenticated(actor); err != nil {
		s.fail(w, r, err)
		return
	}

	page, err := s.store.ListOrdersForUser(r.Context(), actor.ID, r.URL.Query().Get("cursor"), intQuery(r, "limit"))
	if errors.Is(err, store.ErrInvalidCursor) {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid cursor")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// visibleOrder loads the order named by the id path parameter if the caller
// owns it or is an administrator.
func (s *Server) visibleOrder(w http.ResponseWriter, r *http.Request) (*models.Order, bool) {
	actor := auth.FromContext(r.Context())
	if err := auth.RequireAuthenticated(actor); err != nil {
		s.fail(w, r, err)
		return nil, false
	}

	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid order ID")
		return nil, false
	}

	order, err := s.store.GetOrder(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	if order.UserID != actor.ID && !actor.IsAdmin {
		s.fail(w, r, auth.ErrForbidden)
		return nil, false
	}
	return order, true
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := s.visibleOrder(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type timelineResponse struct {
	OrderID int64                `json:"order_id"`
	Status  models.OrderStatus   `json:"status"`
	Events  []models.StatusEvent `json:"events"`
	Stages  []timeline.Stage     `json:"stages"`
}

func (s *Server) getTimeline(w http.ResponseWriter, r *http.Request) {
	order, ok := s.visibleOrder(w, r)
	if !ok {
		return
	}

	events, err := s.timeline.Timeline(r.Context(), order.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, timelineResponse{
		OrderID: order.ID,
		Status:  order.Status,
		Events:  events,
		Stages:  timeline.StagesOf(events, s.now()),
	})
}

func (s *Server) listAllOrders(w http.ResponseWriter, r *http.Request) {
	page, err := s.store.ListAllOrders(r.Context(), intQuery(r, "page"), intQuery(r, "page_size"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type setStatusRequest struct {
	Status string `json:"status"`
}

type setStatusResponse struct {
	Order *models.Order       `json:"order"`
	Event *models.StatusEvent `json:"event"`
}

func (s *Server) setOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid order ID")
		return
	}

	var req setStatusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	next, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		s.fail(w, r, lifecycle.ErrUnknownStatus)
		return
	}

	order, event, err := s.lifecycle.SetStatus(r.Context(), id, next, auth.FromContext(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setStatusResponse{Order: order, Event: event})
}
