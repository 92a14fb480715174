package store

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	c := OrderCursor{CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), ID: 42}

	got, err := DecodeCursor(EncodeCursor(c))
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(c.CreatedAt))
	assert.Equal(t, c.ID, got.ID)
}

func TestDecodeCursorEmptyStartsAtTop(t *testing.T) {
	got, err := DecodeCursor("")
	require.NoError(t, err)
	assert.True(t, got.Before(time.Now().Add(100*365*24*time.Hour), 1))
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("!!!")
	assert.ErrorIs(t, err, ErrInvalidCursor)

	_, err = DecodeCursor(base64.URLEncoding.EncodeToString([]byte("not json")))
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestCursorBefore(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c := OrderCursor{CreatedAt: at, ID: 10}

	assert.True(t, c.Before(at.Add(-time.Second), 99))
	assert.True(t, c.Before(at, 9))
	assert.False(t, c.Before(at, 10))
	assert.False(t, c.Before(at.Add(time.Second), 1))
}

func TestNormalizePage(t *testing.T) {
	page, size := NormalizePage(0, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, DefaultPageSize, size)

	_, size = NormalizePage(2, MaxPageSize+1)
	assert.Equal(t, MaxPageSize, size)

	_, size = NormalizePage(2, -5)
	assert.Equal(t, DefaultPageSize, size)

	_, size = NormalizePage(2, 7)
	assert.Equal(t, 7, size)

	p := NewOffsetPage[int](nil, 41, 1, 20)
	assert.NotNil(t, p.Items)
	assert.Equal(t, 3, p.TotalPages)
}
