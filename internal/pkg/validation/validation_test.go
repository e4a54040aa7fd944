package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Type     string   `json:"type" validate:"required,oneof=viewport refresh"`
	Lat      *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Window   string   `query:"window" validate:"omitempty,window"`
	Category string   `json:"category" validate:"omitempty,category"`
}

func ptr(f float64) *float64 { return &f }

func TestStruct_Valid(t *testing.T) {
	require.NoError(t, Struct(sample{Type: "viewport", Lat: ptr(0), Window: "7d", Category: "POLICE_HIDING"}))
	require.NoError(t, Struct(sample{Type: "refresh", Lat: ptr(-12.5)}))
}

func TestStruct_Messages(t *testing.T) {
	err := Struct(sample{Type: "zoom", Window: "1y", Category: "ACCIDENT"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "type must be one of [viewport refresh]")
	assert.Contains(t, err.Error(), "lat is required")
	assert.Contains(t, err.Error(), "window must be one of [24h 7d 30d]")
	assert.Contains(t, err.Error(), "category is not a known alert category")
}

func TestStruct_Range(t *testing.T) {
	err := Struct(sample{Type: "viewport", Lat: ptr(91)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lat must be <= 90")
}
