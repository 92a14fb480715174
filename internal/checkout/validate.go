package checkout

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/safar/go-storefront/internal/models"
)

var emailPattern = regexp.MustCompile(`(?i)^[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}$`)

// ValidationError maps shipping form fields to the message shown next to
// them.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, e.Fields[k])
	}
	return "invalid shipping info: " + strings.Join(parts, "; ")
}

// NormalizeShipping trims every field.
func NormalizeShipping(info models.ShippingInfo) models.ShippingInfo {
	return models.ShippingInfo{
		Email:      strings.TrimSpace(info.Email),
		Name:       strings.TrimSpace(info.Name),
		Address:    strings.TrimSpace(info.Address),
		City:       strings.TrimSpace(info.City),
		Country:    strings.TrimSpace(info.Country),
		PostalCode: strings.TrimSpace(info.PostalCode),
	}
}

// ValidateShipping returns a *ValidationError naming every missing or
// malformed field, or nil. info is trimmed first.
func ValidateShipping(info models.ShippingInfo) error {
	info = NormalizeShipping(info)
	fields := make(map[string]string)

	switch {
	case info.Email == "":
		fields["email"] = "Email is required"
	case !emailPattern.MatchString(info.Email):
		fields["email"] = "Invalid email address"
	}

	required := []struct {
		key, value, message string
	}{
		{"name", info.Name, "Name is required"},
		{"address", info.Address, "Address is required"},
		{"city", info.City, "City is required"},
		{"country", info.Country, "Country is required"},
		{"postal_code", info.PostalCode, "Postal code is required"},
	}
	for _, r := range required {
		if r.value == "" {
			fields[r.key] = r.message
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
