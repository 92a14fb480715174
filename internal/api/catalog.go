package api

import (
	"errors"
	"net/http"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/store"
)

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	page, err := s.store.ListProducts(r.Context(), intQuery(r, "page"), intQuery(r, "page_size"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid product ID")
		return
	}

	product, err := s.store.GetProduct(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var in store.ProductInput
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
		return
	}

	product, err := s.store.CreateProduct(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

type updateProductRequest struct {
	store.ProductInput
	Version int `json:"version"`
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid product ID")
		return
	}

	var req updateProductRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
		return
	}

	product, err := s.store.UpdateProduct(r.Context(), id, req.ProductInput, req.Version)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid product ID")
		return
	}

	if err := s.store.DeleteProduct(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrProductInUse) {
			writeError(w, http.StatusConflict, "product_in_use", "Product appears on existing orders")
			return
		}
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
