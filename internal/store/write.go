package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
)

// RecordTransaction implements ledger.Recorder. It writes the transaction
// row and, for a committed transaction, its events in one SQL transaction.
//
// Uses ON CONFLICT DO NOTHING for idempotency: recording the same receipt
// twice leaves one copy.
func (s *Store) RecordTransaction(ctx context.Context, r ledger.Receipt) error {
	msg, code := errorText(r.Err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record transaction: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions
		(seq, id, sender, label, status, error, error_code)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		r.Seq,
		r.ID,
		r.Sender.String(),
		r.Label,
		r.Status(),
		msg,
		code,
	)
	if err != nil {
		return fmt.Errorf("record transaction %d: %w", r.Seq, err)
	}

	for i, ev := range r.Events {
		if err := writeEvent(ctx, tx, r.Seq, i, ev); err != nil {
			return fmt.Errorf("record transaction %d: %w", r.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record transaction %d: commit: %w", r.Seq, err)
	}
	return nil
}

func writeEvent(ctx context.Context, tx *sql.Tx, seq int64, idx int, ev ir.Event) error {
	id, err := ir.EventID(seq, idx, ev)
	if err != nil {
		return fmt.Errorf("event %d: %w", idx, err)
	}
	fieldsJSON, err := marshalFields(ev.Fields)
	if err != nil {
		return fmt.Errorf("event %d: %w", idx, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO events
		(id, tx_seq, idx, emitter, name, fields)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		id,
		seq,
		idx,
		ev.Emitter.String(),
		ev.Name,
		fieldsJSON,
	)
	if err != nil {
		return fmt.Errorf("event %d: %w", idx, err)
	}
	return nil
}
