package billing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func items(amounts ...string) []LineItem {
	out := make([]LineItem, 0, len(amounts))
	for i, a := range amounts {
		out = append(out, LineItem{
			Description: "service " + string(rune('A'+i)),
			Amount:      decimal.RequireFromString(a),
		})
	}
	return out
}

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name       string
		services   []LineItem
		pct        string
		includeGST bool
		subtotal   string
		gst        string
		total      string
	}{
		{
			name:       "gst included",
			services:   items("6000"),
			pct:        "18",
			includeGST: true,
			subtotal:   "6000",
			gst:        "1080",
			total:      "7080",
		},
		{
			name:       "gst excluded",
			services:   items("2500.50", "499.50"),
			pct:        "18",
			includeGST: false,
			subtotal:   "3000",
			gst:        "0",
			total:      "3000",
		},
		{
			name:       "rounded once not per item",
			services:   items("0.333", "0.333", "0.333"),
			pct:        "0",
			includeGST: true,
			subtotal:   "1",
			gst:        "0",
			total:      "1",
		},
		{
			name:       "half up on tax",
			services:   items("10.25"),
			pct:        "18",
			includeGST: true,
			subtotal:   "10.25",
			gst:        "1.85", // 1.845
			total:      "12.10",
		},
		{
			name:       "fractional rate",
			services:   items("1000"),
			pct:        "12.5",
			includeGST: true,
			subtotal:   "1000",
			gst:        "125",
			total:      "1125",
		},
		{
			name:       "empty",
			services:   nil,
			pct:        "18",
			includeGST: true,
			subtotal:   "0",
			gst:        "0",
			total:      "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTotals(tt.services, decimal.RequireFromString(tt.pct), tt.includeGST)
			assert.True(t, got.Subtotal.Equal(decimal.RequireFromString(tt.subtotal)), "subtotal %s", got.Subtotal)
			assert.True(t, got.GSTAmount.Equal(decimal.RequireFromString(tt.gst)), "gst %s", got.GSTAmount)
			assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString(tt.total)), "total %s", got.TotalAmount)
		})
	}
}

func TestComputeTotals_Identity(t *testing.T) {
	amounts := [][]string{
		{"0.01"},
		{"1.005", "2.675"},
		{"99999.999", "0.001"},
		{"123.45", "678.90", "0.05"},
		{"333.33", "333.33", "333.34"},
	}
	rates := []string{"0", "5", "12", "18", "28", "7.25"}

	for _, set := range amounts {
		for _, rate := range rates {
			for _, include := range []bool{true, false} {
				got := ComputeTotals(items(set...), decimal.RequireFromString(rate), include)
				assert.True(t, got.Subtotal.Add(got.GSTAmount).Equal(got.TotalAmount),
					"subtotal+gst != total for %v @ %s", set, rate)
				if !include {
					assert.True(t, got.GSTAmount.IsZero(), "gst must be zero when excluded")
				}
			}
		}
	}
}

func TestCheckBudget(t *testing.T) {
	total := decimal.NewFromInt(10000)

	t.Run("fits", func(t *testing.T) {
		assert.NoError(t, CheckBudget(total, decimal.Zero, decimal.NewFromInt(6000)))
	})

	t.Run("exactly at ceiling", func(t *testing.T) {
		assert.NoError(t, CheckBudget(total, decimal.NewFromInt(6000), decimal.NewFromInt(4000)))
	})

	t.Run("exceeds", func(t *testing.T) {
		err := CheckBudget(total, decimal.NewFromInt(6000), decimal.NewFromInt(5000))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrBudgetExceeded))

		var be *Error
		require.True(t, errors.As(err, &be))
		assert.True(t, be.Remaining.Equal(decimal.NewFromInt(4000)))
		assert.False(t, be.Kind.Retryable())
	})

	t.Run("already overrun reports zero remaining", func(t *testing.T) {
		err := CheckBudget(total, decimal.NewFromInt(12000), decimal.NewFromInt(1))
		var be *Error
		require.True(t, errors.As(err, &be))
		assert.True(t, be.Remaining.IsZero())
	})
}

func TestValidateLineItems(t *testing.T) {
	neg := decimal.NewFromInt(-1)

	assert.NoError(t, ValidateLineItems(items("10")))
	assert.ErrorIs(t, ValidateLineItems(nil), ErrValidation)
	assert.ErrorIs(t, ValidateLineItems([]LineItem{{Description: " ", Amount: decimal.NewFromInt(1)}}), ErrValidation)
	assert.ErrorIs(t, ValidateLineItems(items("-5")), ErrValidation)
	assert.ErrorIs(t, ValidateLineItems([]LineItem{{Description: "x", Amount: decimal.NewFromInt(1), Hours: &neg}}), ErrValidation)
}

func TestValidateGSTPercentage(t *testing.T) {
	assert.NoError(t, ValidateGSTPercentage(decimal.Zero))
	assert.NoError(t, ValidateGSTPercentage(decimal.NewFromInt(100)))
	assert.ErrorIs(t, ValidateGSTPercentage(decimal.NewFromInt(-1)), ErrValidation)
	assert.ErrorIs(t, ValidateGSTPercentage(decimal.NewFromInt(101)), ErrValidation)
}
