package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/store"
)

// PermissionsOptions holds flags for the permissions command.
type PermissionsOptions struct {
	*RootOptions
	Database string
	DAO      string
}

// PermissionRow is one live permission in the output.
type PermissionRow struct {
	Where      string `json:"where"`
	Who        string `json:"who"`
	Permission string `json:"permission"`
	Condition  string `json:"condition,omitempty"`
}

// FrozenRow is one frozen (where, permission) pair in the output.
type FrozenRow struct {
	Where      string `json:"where"`
	Permission string `json:"permission"`
}

// PermissionsResult is the output of the permissions command.
type PermissionsResult struct {
	DAO         string          `json:"dao"`
	LastSeq     int64           `json:"last_seq"`
	Permissions []PermissionRow `json:"permissions"`
	Frozen      []FrozenRow     `json:"frozen"`
}

// NewPermissionsCommand creates the permissions command.
func NewPermissionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PermissionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Rebuild a DAO's permission table from the journal",
		Long: `Rebuild the live permission table of a DAO by replaying the Granted,
Revoked and Frozen events it emitted. Reverted transactions never
contribute.

Examples:
  govkit permissions --dao 0x...
  govkit permissions --db ./govkit.db --dao 0x... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPermissions(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "journal database (default: db from config)")
	cmd.Flags().StringVar(&opts.DAO, "dao", "", "DAO address (required)")
	_ = cmd.MarkFlagRequired("dao")

	return cmd
}

func runPermissions(opts *PermissionsOptions, cmd *cobra.Command) error {
	daoAddr, err := ir.ParseAddress(opts.DAO)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --dao", err)
	}

	st, err := openExisting(databasePath(opts.RootOptions, opts.Database))
	if err != nil {
		return err
	}
	defer st.Close()

	state, err := st.ReplayPermissions(cmd.Context(), daoAddr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to replay permissions", err)
	}

	result := PermissionsResult{
		DAO:         daoAddr.String(),
		LastSeq:     state.LastSeq,
		Permissions: make([]PermissionRow, 0, len(state.Entries)),
		Frozen:      make([]FrozenRow, 0, len(state.Frozen)),
	}
	for _, e := range state.Entries {
		row := PermissionRow{
			Where:      addressLabel(e.Where),
			Who:        addressLabel(e.Who),
			Permission: e.PermissionID.Label(),
		}
		if !e.Condition.IsZero() {
			row.Condition = e.Condition.String()
		}
		result.Permissions = append(result.Permissions, row)
	}
	for _, f := range state.Frozen {
		result.Frozen = append(result.Frozen, FrozenRow{Where: addressLabel(f.Where), Permission: f.PermissionID.Label()})
	}

	if opts.Format == "json" {
		return writeOK(cmd.OutOrStdout(), result)
	}
	return outputPermissionsText(cmd, result)
}

func outputPermissionsText(cmd *cobra.Command, result PermissionsResult) error {
	w := cmd.OutOrStdout()
	if len(result.Permissions) == 0 && len(result.Frozen) == 0 {
		fmt.Fprintf(w, "No permissions recorded for %s\n", result.DAO)
		return nil
	}

	fmt.Fprintf(w, "Permissions of %s (as of seq %d)\n\n", result.DAO, result.LastSeq)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHERE\tWHO\tPERMISSION\tCONDITION")
	for _, p := range result.Permissions {
		cond := p.Condition
		if cond == "" {
			cond = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Where, p.Who, p.Permission, cond)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(result.Frozen) > 0 {
		fmt.Fprintln(w, "\nFrozen:")
		for _, f := range result.Frozen {
			fmt.Fprintf(w, "  %s on %s\n", f.Permission, f.Where)
		}
	}
	return nil
}

// addressLabel prints ir.Any as "any".
func addressLabel(a ir.Address) string {
	if a.IsAny() {
		return "any"
	}
	return a.String()
}

// openExisting opens a journal that must already exist. store.Open would
// create an empty one.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}
