package order

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCancelled, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusPending, StatusCompleted, false},
		{StatusProcessing, StatusCancelled, false},
		{StatusProcessing, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusCancelled, StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := Transition("o1", tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apperrors.IsInvalidState(err), "expected invalid state, got %v", err)
		})
	}
}

func TestTransitionUnknownTarget(t *testing.T) {
	err := Transition("o1", StatusPending, Status("shipped"))
	assert.True(t, apperrors.IsValidationError(err))
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
}

func TestSummarizeRevenueCountsCompletedOnly(t *testing.T) {
	orders := []Order{
		{Status: StatusCompleted, TotalAmount: decimal.NewFromInt(100)},
		{Status: StatusCompleted, TotalAmount: decimal.NewFromInt(50)},
		{Status: StatusPending, TotalAmount: decimal.NewFromInt(30)},
		{Status: StatusCancelled, TotalAmount: decimal.NewFromInt(999)},
		{Status: StatusProcessing, TotalAmount: decimal.NewFromInt(7)},
	}
	stats := Summarize(orders)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 2, stats.Completed)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Cancelled)
	assert.Equal(t, 1, stats.Processing)
	assert.True(t, stats.Revenue.Equal(decimal.NewFromInt(150)), "revenue = %s", stats.Revenue)
}

func TestStatsRevenueIsNumber(t *testing.T) {
	raw, err := json.Marshal(Stats{Total: 2, Completed: 1, Revenue: decimal.RequireFromString("150.50")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":2,"pending":0,"processing":0,"completed":1,"cancelled":0,"revenue":150.5}`, string(raw))

	raw, err = json.Marshal(Stats{})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"revenue":0`)

	var back Stats
	require.NoError(t, json.Unmarshal([]byte(`{"completed":1,"revenue":150.5}`), &back))
	assert.True(t, back.Revenue.Equal(decimal.RequireFromString("150.5")))
}

func TestCommission(t *testing.T) {
	assert.Equal(t, "60", Commission(decimal.NewFromInt(300)).String())
	assert.Equal(t, "2.47", Commission(decimal.RequireFromString("12.35")).String())
}
