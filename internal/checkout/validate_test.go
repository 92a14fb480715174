package checkout

import (
	"testing"

	"github.com/safar/go-storefront/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateShipping(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.ShippingInfo)
		want   map[string]string
	}{
		{
			name:   "valid",
			mutate: func(*models.ShippingInfo) {},
		},
		{
			name:   "uppercase email",
			mutate: func(s *models.ShippingInfo) { s.Email = "ADA@EXAMPLE.ORG" },
		},
		{
			name:   "missing email",
			mutate: func(s *models.ShippingInfo) { s.Email = "  " },
			want:   map[string]string{"email": "Email is required"},
		},
		{
			name:   "malformed email",
			mutate: func(s *models.ShippingInfo) { s.Email = "ada@example" },
			want:   map[string]string{"email": "Invalid email address"},
		},
		{
			name: "missing address and postal code",
			mutate: func(s *models.ShippingInfo) {
				s.Address = ""
				s.PostalCode = "\t"
			},
			want: map[string]string{
				"address":     "Address is required",
				"postal_code": "Postal code is required",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := validShipping()
			tt.mutate(&info)

			err := ValidateShipping(info)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.want, verr.Fields)
		})
	}
}

func TestValidationErrorMessageIsStable(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{
		"name":  "Name is required",
		"email": "Email is required",
	}}
	assert.Equal(t, "invalid shipping info: email: Email is required; name: Name is required", err.Error())
}

func TestNormalizeShipping(t *testing.T) {
	got := NormalizeShipping(models.ShippingInfo{Email: " a@b.co ", City: " Oslo"})
	assert.Equal(t, "a@b.co", got.Email)
	assert.Equal(t, "Oslo", got.City)
}
