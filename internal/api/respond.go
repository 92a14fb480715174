package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/safar/go-storefront/internal/auth"
	"github.com/safar/go-storefront/internal/cart"
	"github.com/safar/go-storefront/internal/checkout"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/lifecycle"
)

type errorResponse struct {
	Error     string            `json:"error"`
	Message   string            `json:"message,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Retryable *bool             `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// fail maps a service or store error onto a status code and JSON body.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *checkout.ValidationError
		perr *database.PersistenceError
	)

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:   "validation_failed",
			Message: "Please correct the highlighted fields",
			Fields:  verr.Fields,
		})
	case errors.Is(err, checkout.ErrCartEmpty):
		writeError(w, http.StatusBadRequest, "cart_empty", "Your cart is empty")
	case errors.Is(err, cart.ErrOutOfStock):
		writeError(w, http.StatusConflict, "out_of_stock", "Product is out of stock")
	case errors.Is(err, auth.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not_authenticated", "Please sign in to continue")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, lifecycle.ErrUnknownStatus):
		writeError(w, http.StatusUnprocessableEntity, "unknown_status", err.Error())
	case lifecycle.IsRejection(err):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, database.ErrOptimisticLockFailed):
		writeError(w, http.StatusConflict, "version_conflict", "Resource was modified, reload and retry")
	case errors.Is(err, database.ErrProductInUse),
		errors.Is(err, database.ErrEmailTaken),
		errors.Is(err, database.ErrSKUTaken):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.As(err, &perr):
		retryable := perr.Retryable()
		s.logger.ErrorContext(r.Context(), "persistence failure", "op", perr.Op, "error", perr.Err, "retryable", retryable)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error:     "persistence_failed",
			Message:   "Could not save your request",
			Retryable: &retryable,
		})
	case errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Something went wrong")
	}
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func intQuery(r *http.Request, name string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(name))
	return v
}
