package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/copybot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TRADE HISTORY - In-memory, JSON-exportable log of terminal orders
// ═══════════════════════════════════════════════════════════════════════════════
//
// The history is the only durable artifact the core promises: numeric
// fields survive an export/import round trip without precision loss
// because decimals serialize as strings.
//
// ═══════════════════════════════════════════════════════════════════════════════

// History accumulates trade records for the process lifetime
type History struct {
	mu      sync.RWMutex
	records []types.TradeRecord
}

// NewHistory creates an empty trade history
func NewHistory() *History {
	return &History{}
}

// Append adds a record
func (h *History) Append(rec types.TradeRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
}

// Records returns a copy of all records
func (h *History) Records() []types.TradeRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]types.TradeRecord, len(h.records))
	copy(out, h.records)
	return out
}

// Len returns the number of records
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// ExportJSON serializes the full history
func (h *History) ExportJSON() ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return json.MarshalIndent(h.records, "", "  ")
}

// ImportJSON replaces the history with parsed records
func (h *History) ImportJSON(data []byte) error {
	var records []types.TradeRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse history: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = records
	return nil
}

// WriteFile exports the history to disk, creating parent directories
func (h *History) WriteFile(path string) error {
	data, err := h.ExportJSON()
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	log.Debug().Str("path", path).Int("records", h.Len()).Msg("💾 Trade history exported")
	return nil
}
