// Package events hands withdraw transfer instructions to the external
// funds-movement collaborator.
package events

import (
	"context"
	"log/slog"

	"github.com/davidterpay/transfer-contract/internal/ledger"
)

// Publisher delivers a transfer instruction to whatever moves the funds.
type Publisher interface {
	Publish(ctx context.Context, instr ledger.TransferInstruction) error
}

// LogPublisher records instructions to the structured log. Used when no broker
// is configured; the instruction ID still lets an operator replay by hand.
type LogPublisher struct {
	Logger *slog.Logger
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(ctx context.Context, instr ledger.TransferInstruction) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.InfoContext(ctx, "transfer_instruction",
		"id", instr.ID,
		"to", instr.To,
		"denom", instr.Denom,
		"amount", instr.Amount,
	)
	return nil
}

var _ Publisher = (*LogPublisher)(nil)
