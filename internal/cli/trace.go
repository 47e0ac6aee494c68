package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Emitter  string // optional - filter events by emitter address
	Name     string // optional - filter events by name
	FromSeq  int64
}

// TraceEvent is one journaled event in the trace output.
type TraceEvent struct {
	ID      string         `json:"id"`
	Index   int            `json:"index"`
	Emitter string         `json:"emitter"`
	Name    string         `json:"name"`
	Fields  map[string]any `json:"fields"`
}

// TraceTransaction is one journaled transaction with its events.
type TraceTransaction struct {
	Seq       int64        `json:"seq"`
	ID        string       `json:"id"`
	Label     string       `json:"label"`
	Sender    string       `json:"sender"`
	Status    string       `json:"status"`
	Error     string       `json:"error,omitempty"`
	ErrorCode string       `json:"error_code,omitempty"`
	Events    []TraceEvent `json:"events"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Transactions int `json:"transactions"`
	Committed    int `json:"committed"`
	Reverted     int `json:"reverted"`
	Events       int `json:"events"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Transactions []TraceTransaction `json:"transactions"`
	Stats        TraceStats         `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journaled transactions and events",
		Long: `Show the transactions journaled in a database, in sequence order, with
the events each committed transaction emitted. Reverted transactions are
listed with their error code and carry no events.

With --emitter or --name only matching events are shown, and transactions
left without events are omitted.

Examples:
  govkit trace --db ./govkit.db
  govkit trace --db ./govkit.db --name Granted
  govkit trace --db ./govkit.db --emitter 0x... --from 10
  govkit trace --db ./govkit.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "journal database (default: db from config)")
	cmd.Flags().StringVar(&opts.Emitter, "emitter", "", "filter events by emitter address")
	cmd.Flags().StringVar(&opts.Name, "name", "", "filter events by name")
	cmd.Flags().Int64Var(&opts.FromSeq, "from", 0, "skip transactions before this seq")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	filter := store.EventFilter{Name: opts.Name, FromSeq: opts.FromSeq}
	if opts.Emitter != "" {
		addr, err := ir.ParseAddress(opts.Emitter)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --emitter", err)
		}
		filter.Emitter = addr
	}

	st, err := openExisting(databasePath(opts.RootOptions, opts.Database))
	if err != nil {
		return err
	}
	defer st.Close()

	txs, err := st.ReadTransactions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read transactions", err)
	}
	events, err := st.ReadEvents(ctx, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	result := buildTrace(txs, events, opts.FromSeq, opts.Emitter != "" || opts.Name != "")

	if opts.Format == "json" {
		return writeOK(cmd.OutOrStdout(), result)
	}
	return outputTraceText(cmd, result)
}

// buildTrace groups events under their transactions. When filtered is set
// transactions without a matching event are dropped.
func buildTrace(txs []store.Transaction, events []store.Event, fromSeq int64, filtered bool) TraceResult {
	bySeq := make(map[int64][]TraceEvent)
	for _, ev := range events {
		bySeq[ev.TxSeq] = append(bySeq[ev.TxSeq], TraceEvent{
			ID:      ev.ID,
			Index:   ev.Index,
			Emitter: ev.Emitter,
			Name:    ev.Name,
			Fields:  ev.Fields,
		})
	}

	result := TraceResult{Transactions: []TraceTransaction{}}
	for _, tx := range txs {
		if tx.Seq < fromSeq {
			continue
		}
		evs := bySeq[tx.Seq]
		if filtered && len(evs) == 0 {
			continue
		}
		if evs == nil {
			evs = []TraceEvent{}
		}
		result.Transactions = append(result.Transactions, TraceTransaction{
			Seq:       tx.Seq,
			ID:        tx.ID,
			Label:     tx.Label,
			Sender:    tx.Sender,
			Status:    tx.Status,
			Error:     tx.Error,
			ErrorCode: tx.ErrorCode,
			Events:    evs,
		})

		result.Stats.Transactions++
		result.Stats.Events += len(evs)
		if tx.Status == "reverted" {
			result.Stats.Reverted++
		} else {
			result.Stats.Committed++
		}
	}
	return result
}

func outputTraceText(cmd *cobra.Command, result TraceResult) error {
	w := cmd.OutOrStdout()
	if len(result.Transactions) == 0 {
		fmt.Fprintln(w, "No transactions found.")
		return nil
	}

	for _, tx := range result.Transactions {
		fmt.Fprintf(w, "[%d] %s %s from %s", tx.Seq, tx.Status, tx.Label, tx.Sender)
		if tx.ErrorCode != "" {
			fmt.Fprintf(w, " (%s)", tx.ErrorCode)
		}
		fmt.Fprintln(w)
		for _, ev := range tx.Events {
			fmt.Fprintf(w, "    %s.%s %s\n", ev.Emitter, ev.Name, formatFields(ev.Fields))
		}
	}
	fmt.Fprintf(w, "\n%d transactions (%d committed, %d reverted), %d events\n",
		result.Stats.Transactions, result.Stats.Committed, result.Stats.Reverted, result.Stats.Events)
	return nil
}

// formatFields renders fields as k=v pairs in key order.
func formatFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, fields[k])
	}
	return "{" + strings.Join(parts, " ") + "}"
}
