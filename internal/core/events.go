// =============================
// File: internal/core/events.go
// =============================
package core

import (
	"time"

	"github.com/google/uuid"
)

// Event is one append-only audit record. Emitted events double as the
// system's log of record; the journal persists them in order.
type Event struct {
	ID     string
	Type   string
	Block  uint64
	At     time.Time
	Fields map[string]interface{}
}

// Event types emitted by the engine.
const (
	EvTokenCreated        = "token.created"
	EvBuy                 = "pool.buy"
	EvSell                = "pool.sell"
	EvGraduated           = "pool.graduated"
	EvPoolPaused          = "pool.paused"
	EvFeeReceived         = "fee.received"
	EvFeeForwarded        = "fee.forwarded"
	EvAnomalousDeposit    = "fee.anomalous"
	EvBuybackExecuted     = "buyback.executed"
	EvBuybackFailed       = "buyback.failed"
	EvRouterTrade         = "router.trade"
	EvRouterRegister      = "router.registered"
	EvRouterBuyback       = "router.buyback"
	EvRouterBuybackFailed = "router.buyback_failed"
	EvAdminChange         = "admin.change"
)

// EventSink receives emitted events. Implementations must not call back into
// engine entry points.
type EventSink interface {
	Record(ev Event)
}

// NewEvent stamps a fresh event with id and wall time.
func NewEvent(evType string, block uint64, fields map[string]interface{}) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   evType,
		Block:  block,
		At:     time.Now(),
		Fields: fields,
	}
}

// NopSink drops events; used in tests.
type NopSink struct{}

func (NopSink) Record(Event) {}
