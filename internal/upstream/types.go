package upstream

import (
	"time"

	"github.com/shopspring/decimal"
)

// Portfolio is the account-level summary.
type Portfolio struct {
	CashBalance    decimal.Decimal `json:"cash_balance"`
	PositionsValue decimal.Decimal `json:"positions_value"`
	TotalEquity    decimal.Decimal `json:"total_equity"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL  decimal.Decimal `json:"unrealized_pnl"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Position is one open position. StopLoss/TakeProfit are zero when
// not set.
type Position struct {
	ID            string          `json:"id"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"` // long or short
	Size          decimal.Decimal `json:"size"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	MarkPrice     decimal.Decimal `json:"mark_price"`
	StopLoss      decimal.Decimal `json:"stop_loss"`
	TakeProfit    decimal.Decimal `json:"take_profit"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	OpenedAt      time.Time       `json:"opened_at"`
}

// Decision is one record of the automated strategy's decision log.
type Decision struct {
	ID     string    `json:"id"`
	TS     time.Time `json:"ts"`
	Action string    `json:"action"` // open, close, hold, adjust
	Symbol string    `json:"symbol"`
	Reason string    `json:"reason"`
	Detail string    `json:"detail"`
}

// Protection carries a stop-loss/take-profit update. Nil fields are
// left unchanged upstream.
type Protection struct {
	StopLoss   *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit *decimal.Decimal `json:"take_profit,omitempty"`
}
