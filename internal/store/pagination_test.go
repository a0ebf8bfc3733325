package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	in := ShipmentCursor{
		CreatedAt: time.Date(2026, 3, 14, 9, 26, 53, 589000000, time.UTC),
		ID:        "0d8f5a52-1c7e-4a8e-9b3f-2f1d6c7e8a90",
	}

	out, err := DecodeCursor(EncodeCursor(in))
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestDecodeEmptyCursorStartsAtNewest(t *testing.T) {
	cursor, err := DecodeCursor("")
	require.NoError(t, err)
	assert.True(t, cursor.CreatedAt.After(time.Now()))
	assert.Equal(t, maxShipmentID, cursor.ID)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("not base64 at all!")
	assert.Error(t, err)
}

func TestNewOffsetPage(t *testing.T) {
	cases := []struct {
		total    int64
		pageSize int
		pages    int
	}{
		{0, 20, 0},
		{20, 20, 1},
		{21, 20, 2},
		{7, 3, 3},
	}

	for _, tc := range cases {
		p := newOffsetPage(nil, tc.total, 1, tc.pageSize)
		assert.Equal(t, tc.pages, p.TotalPages, "total=%d size=%d", tc.total, tc.pageSize)
	}
}
