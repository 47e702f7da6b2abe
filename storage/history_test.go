package storage

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/copybot/types"
)

func TestHistoryJSONRoundTrip(t *testing.T) {
	h := NewHistory()

	ts := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)
	h.Append(types.TradeRecord{
		OrderID:   "ORD_1",
		Token:     "WETH",
		Action:    types.OrderBuy,
		AmountIn:  decimal.RequireFromString("123.456789012345678901"),
		AmountOut: decimal.RequireFromString("0.000000000000000001"),
		PnL:       decimal.RequireFromString("-42.5"),
		TxHash:    "0xabc",
		Strategy:  "copy-trade",
		Success:   true,
		Timestamp: ts,
	})

	data, err := h.ExportJSON()
	require.NoError(t, err)

	restored := NewHistory()
	require.NoError(t, restored.ImportJSON(data))
	require.Equal(t, 1, restored.Len())

	got := restored.Records()[0]
	want := h.Records()[0]

	require.Equal(t, want.OrderID, got.OrderID)
	require.Equal(t, want.Action, got.Action)
	require.Equal(t, want.Success, got.Success)
	// Decimals serialize as strings: no precision loss on the round trip
	require.True(t, got.AmountIn.Equal(want.AmountIn), "got %s", got.AmountIn)
	require.True(t, got.AmountOut.Equal(want.AmountOut), "got %s", got.AmountOut)
	require.True(t, got.PnL.Equal(want.PnL))
	require.True(t, got.Timestamp.Equal(want.Timestamp))
}

func TestHistoryRecordsReturnsCopy(t *testing.T) {
	h := NewHistory()
	h.Append(types.TradeRecord{OrderID: "ORD_1"})

	records := h.Records()
	records[0].OrderID = "mutated"

	require.Equal(t, "ORD_1", h.Records()[0].OrderID)
}

func TestHistoryImportReplaces(t *testing.T) {
	h := NewHistory()
	h.Append(types.TradeRecord{OrderID: "old"})

	require.NoError(t, h.ImportJSON([]byte(`[{"order_id":"new"}]`)))
	require.Equal(t, 1, h.Len())
	require.Equal(t, "new", h.Records()[0].OrderID)

	require.Error(t, h.ImportJSON([]byte(`not json`)))
}

func TestHistoryWriteFile(t *testing.T) {
	h := NewHistory()
	h.Append(types.TradeRecord{OrderID: "ORD_1", AmountIn: decimal.NewFromInt(5)})

	path := t.TempDir() + "/nested/trades.json"
	require.NoError(t, h.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	restored := NewHistory()
	require.NoError(t, restored.ImportJSON(data))
	require.Equal(t, 1, restored.Len())
}
