package storage

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/copybot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DATABASE - Optional durable archive (trades + risk state)
// ═══════════════════════════════════════════════════════════════════════════════
//
// DSN empty → disabled, every method is a no-op. "postgres://..." picks
// the postgres driver, anything else is treated as a sqlite path.
//
// ═══════════════════════════════════════════════════════════════════════════════

// TradeRow archives one terminal order
type TradeRow struct {
	ID        uint            `gorm:"primaryKey;autoIncrement"`
	OrderID   string          `gorm:"index"`
	Token     string          `gorm:"index"`
	Action    string
	AmountIn  decimal.Decimal `gorm:"type:decimal(30,18)"`
	AmountOut decimal.Decimal `gorm:"type:decimal(30,18)"`
	PnL       decimal.Decimal `gorm:"type:decimal(30,18)"`
	TxHash    string
	Strategy  string
	Success   bool
	CreatedAt time.Time
}

// RiskStateRow snapshots daily risk counters for restart recovery
type RiskStateRow struct {
	Date        string          `gorm:"primaryKey"` // 2006-01-02
	Balance     decimal.Decimal `gorm:"type:decimal(30,18)"`
	RealizedPnL decimal.Decimal `gorm:"type:decimal(30,18)"`
	LossStreak  int
	Halted      bool
	StopReason  string
	UpdatedAt   time.Time
}

// Database wraps the optional gorm connection
type Database struct {
	db *gorm.DB
}

// New opens the archive; an empty DSN returns a disabled instance
func New(dsn string) (*Database, error) {
	if dsn == "" {
		log.Warn().Msg("DATABASE_DSN not set, running without durable archive")
		return &Database{}, nil
	}

	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&TradeRow{}, &RiskStateRow{}); err != nil {
		return nil, err
	}

	log.Info().Msg("💾 Trade archive connected")
	return &Database{db: db}, nil
}

// Enabled reports whether a connection is live
func (d *Database) Enabled() bool {
	return d != nil && d.db != nil
}

// SaveTrade archives a trade record
func (d *Database) SaveTrade(rec types.TradeRecord) error {
	if !d.Enabled() {
		return nil
	}
	return d.db.Create(&TradeRow{
		OrderID:   rec.OrderID,
		Token:     rec.Token,
		Action:    string(rec.Action),
		AmountIn:  rec.AmountIn,
		AmountOut: rec.AmountOut,
		PnL:       rec.PnL,
		TxHash:    rec.TxHash,
		Strategy:  rec.Strategy,
		Success:   rec.Success,
		CreatedAt: rec.Timestamp,
	}).Error
}

// RecentTrades returns the newest archived trades
func (d *Database) RecentTrades(limit int) ([]TradeRow, error) {
	if !d.Enabled() {
		return nil, nil
	}
	var rows []TradeRow
	err := d.db.Order("created_at desc").Limit(limit).Find(&rows).Error
	return rows, err
}

// SaveRiskState upserts today's risk snapshot
func (d *Database) SaveRiskState(row RiskStateRow) error {
	if !d.Enabled() {
		return nil
	}
	row.UpdatedAt = time.Now()
	return d.db.Save(&row).Error
}

// LoadRiskState fetches the snapshot for a date, nil when absent
func (d *Database) LoadRiskState(date string) (*RiskStateRow, error) {
	if !d.Enabled() {
		return nil, nil
	}
	var row RiskStateRow
	err := d.db.Where("date = ?", date).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
