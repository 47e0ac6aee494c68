package cli

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/govkit/internal/config"
	"github.com/roach88/govkit/internal/ledger"
	"github.com/roach88/govkit/internal/manifest"
	"github.com/roach88/govkit/internal/store"
)

// DeployOptions holds flags for the deploy command.
type DeployOptions struct {
	*RootOptions
	Database string
}

// DeployedName is one name bound by a deployment.
type DeployedName struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// DeployResult is the output of the deploy command.
type DeployResult struct {
	Database string         `json:"database"`
	FirstSeq int64          `json:"first_seq"`
	LastSeq  int64          `json:"last_seq"`
	Names    []DeployedName `json:"names"`
}

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeployOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deploy <manifest-dir>",
		Short: "Deploy a CUE manifest and journal it",
		Long: `Deploy the DAOs, plugin repositories, installations, conditions and
grants a CUE manifest declares, journaling every transaction to SQLite.

Deployments append to the journal: sequence numbers continue after the
last journaled transaction.

Examples:
  govkit deploy ./manifest
  govkit deploy ./manifest --db ./govkit.db
  govkit deploy ./manifest --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "journal database (default: db from config)")

	return cmd
}

func runDeploy(cmd *cobra.Command, opts *DeployOptions, dir string) error {
	ctx := cmd.Context()

	d, err := manifest.Load(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load manifest", err)
	}

	dbPath := databasePath(opts.RootOptions, opts.Database)
	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	last, err := st.LastSeq(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	l := ledger.New(append([]ledger.Option{
		ledger.WithClock(ledger.NewClockAt(uint64(last))),
		ledger.WithRecorder(st),
	}, opts.ledgerOptions()...)...)

	slog.Debug("deploying manifest", "dir", dir, "db", dbPath, "resume_seq", last)

	env, err := manifest.Deploy(ctx, l, d)
	if err != nil {
		return WrapExitError(ExitFailure, "deployment failed", err)
	}
	defer env.Close()

	result := DeployResult{
		Database: dbPath,
		FirstSeq: last + 1,
		LastSeq:  int64(l.Block()),
	}
	for _, name := range env.Names() {
		addr, err := env.Resolve(name)
		if err != nil {
			return err
		}
		result.Names = append(result.Names, DeployedName{Name: name, Address: addr.String()})
	}

	if opts.Format == "json" {
		return writeOK(cmd.OutOrStdout(), result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Deployed %s to %s (seq %d-%d)\n\n", dir, dbPath, result.FirstSeq, result.LastSeq)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS")
	for _, n := range result.Names {
		fmt.Fprintf(tw, "%s\t%s\n", n.Name, n.Address)
	}
	return tw.Flush()
}

// databasePath prefers the --db flag over the config file.
func databasePath(opts *RootOptions, flag string) string {
	if flag != "" {
		return flag
	}
	if opts.Config.DB != "" {
		return opts.Config.DB
	}
	return config.Default().DB
}
