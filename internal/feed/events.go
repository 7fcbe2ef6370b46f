// Package feed consumes the launchpad event stream: new-token launches
// and bonding-curve migrations, delivered over a websocket.
package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pump-sniper-bot/internal/domain"
)

// Transaction types on the stream.
const (
	txTypeCreate  = "create"
	txTypeMigrate = "migrate"
)

// rawEvent is the wire shape of a stream message. Fields the bot does not
// act on are omitted.
type rawEvent struct {
	TxType       string          `json:"txType"`
	Mint         string          `json:"mint"`
	Name         string          `json:"name"`
	Symbol       string          `json:"symbol"`
	InitialBuy   decimal.Decimal `json:"initialBuy"`
	SolAmount    decimal.Decimal `json:"solAmount"`
	VSolInCurve  decimal.Decimal `json:"vSolInBondingCurve"`
	Pool         string          `json:"pool"`
	Signature    string          `json:"signature"`
	TraderPubkey string          `json:"traderPublicKey"`
}

// ParsedEvent is one decoded stream message. Exactly one of Token and
// Graduation is set; both nil means the message type is not interesting.
type ParsedEvent struct {
	Token      *domain.TokenSignal
	Graduation *domain.GraduationSignal
}

// ParseEvent decodes a stream message. Unknown transaction types are not
// errors; they decode to an empty event.
func ParseEvent(data []byte, category domain.SlotCategory, now time.Time) (*ParsedEvent, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode stream event: %w", err)
	}

	switch raw.TxType {
	case txTypeCreate:
		if raw.Mint == "" {
			return nil, fmt.Errorf("create event without mint")
		}
		return &ParsedEvent{Token: &domain.TokenSignal{
			Mint:          raw.Mint,
			Symbol:        raw.Symbol,
			Name:          raw.Name,
			Category:      category,
			SolInPool:     raw.VSolInCurve,
			InitialBuySol: raw.SolAmount,
			DetectedAt:    now,
		}}, nil

	case txTypeMigrate:
		if raw.Mint == "" {
			return nil, fmt.Errorf("migrate event without mint")
		}
		return &ParsedEvent{Graduation: &domain.GraduationSignal{
			Mint:       raw.Mint,
			DetectedAt: now,
		}}, nil

	default:
		return &ParsedEvent{}, nil
	}
}
