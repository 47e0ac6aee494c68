package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/govkit/internal/ir"
)

// Transaction is a journaled transaction row.
type Transaction struct {
	Seq       int64
	ID        string
	Sender    string
	Label     string
	Status    string
	Error     string
	ErrorCode string
}

// Event is a journaled event row.
type Event struct {
	ID      string
	TxSeq   int64
	Index   int
	Emitter string
	Name    string
	Fields  ir.Fields
}

// EventFilter narrows ReadEvents. Zero values match everything.
type EventFilter struct {
	Emitter ir.Address
	Name    string
	FromSeq int64
}

// ReadTransactions returns every journaled transaction ordered by seq.
//
// Returns an empty slice (not nil) if the journal is empty.
func (s *Store) ReadTransactions(ctx context.Context) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, sender, label, status, error, error_code
		FROM transactions
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txs := []Transaction{}
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.Seq, &t.ID, &t.Sender, &t.Label, &t.Status, &t.Error, &t.ErrorCode); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

// ReadTransaction retrieves a single transaction by seq.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadTransaction(ctx context.Context, seq int64) (Transaction, error) {
	var t Transaction
	err := s.db.QueryRowContext(ctx, `
		SELECT seq, id, sender, label, status, error, error_code
		FROM transactions
		WHERE seq = ?
	`, seq).Scan(&t.Seq, &t.ID, &t.Sender, &t.Label, &t.Status, &t.Error, &t.ErrorCode)
	if err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// ReadEvents returns the journaled events matching f, ordered by
// seq ASC, idx ASC.
func (s *Store) ReadEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	var (
		where []string
		args  []any
	)
	if !f.Emitter.IsZero() {
		where = append(where, "emitter = ?")
		args = append(args, f.Emitter.String())
	}
	if f.Name != "" {
		where = append(where, "name = ?")
		args = append(args, f.Name)
	}
	if f.FromSeq > 0 {
		where = append(where, "tx_seq >= ?")
		args = append(args, f.FromSeq)
	}

	query := "SELECT id, tx_seq, idx, emitter, name, fields FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY tx_seq ASC, idx ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// LastSeq returns the highest journaled seq, or 0 for an empty journal.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(seq) FROM transactions").Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq.Int64, nil
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		ev         Event
		fieldsJSON string
	)
	if err := rows.Scan(&ev.ID, &ev.TxSeq, &ev.Index, &ev.Emitter, &ev.Name, &fieldsJSON); err != nil {
		return Event{}, fmt.Errorf("scan event: %w", err)
	}
	fields, err := unmarshalFields(fieldsJSON)
	if err != nil {
		return Event{}, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	ev.Fields = fields
	return ev, nil
}
