package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderStatus(t *testing.T) {
	status, err := ParseOrderStatus(" Shipped ")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusShipped, status)

	_, err = ParseOrderStatus("cancelled")
	assert.Error(t, err)
}

func TestOrderStatusRank(t *testing.T) {
	assert.Equal(t, 0, OrderStatusPending.Rank())
	assert.Equal(t, 1, OrderStatusShipped.Rank())
	assert.Equal(t, 2, OrderStatusDelivered.Rank())
	assert.Equal(t, -1, OrderStatus("lost").Rank())

	assert.True(t, OrderStatusDelivered.IsTerminal())
	assert.False(t, OrderStatusShipped.IsTerminal())
	assert.False(t, OrderStatus("").Valid())
}
