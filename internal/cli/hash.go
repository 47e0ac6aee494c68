package cli

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/govkit/internal/ir"
)

// HashOptions holds flags shared by the hash subcommands.
type HashOptions struct {
	*RootOptions
	Version         string
	Repo            string
	PermissionsHash string
	HelpersHash     string
	Data            string
	Phase           string
}

// HashResult is the output of every hash subcommand.
type HashResult struct {
	Kind string `json:"kind"`
	Hash string `json:"hash"`
}

// NewHashCommand creates the hash command and its subcommands.
func NewHashCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HashOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Compute content-addressed setup identifiers",
		Long: `Compute the identifiers the plugin setup processor and the repositories
use to address prepared setups, applied setups and installations.

Examples:
  govkit hash helpers 0x1111111111111111111111111111111111111111
  govkit hash permissions ./permissions.yaml
  govkit hash prepared --version v1.2 --repo 0x... --permissions-hash 0x... --helpers-hash 0x... --phase update
  govkit hash applied --version v1.1 --repo 0x... --helpers-hash 0x...
  govkit hash installation <dao> <plugin>`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "helpers [address...]",
		Short:         "Hash an ordered helper list",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			helpers, err := parseAddresses(args)
			if err != nil {
				return err
			}
			return outputHash(cmd, opts.RootOptions, "helpers", ir.HashHelpers(helpers))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "permissions <file.yaml>",
		Short:         "Hash an ordered permission list read from YAML",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			perms, err := loadPermissions(args[0])
			if err != nil {
				return err
			}
			return outputHash(cmd, opts.RootOptions, "permissions", ir.HashPermissions(perms))
		},
	})

	prepared := &cobra.Command{
		Use:           "prepared",
		Short:         "Compute a prepared setup id",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHashPrepared(cmd, opts)
		},
	}
	prepared.Flags().StringVar(&opts.Version, "version", "", "version tag (v<release>.<build>)")
	prepared.Flags().StringVar(&opts.Repo, "repo", "", "plugin repo address")
	prepared.Flags().StringVar(&opts.PermissionsHash, "permissions-hash", "", "permissions hash")
	prepared.Flags().StringVar(&opts.HelpersHash, "helpers-hash", "", "helpers hash")
	prepared.Flags().StringVar(&opts.Data, "data", "", "0x-prefixed setup data")
	prepared.Flags().StringVar(&opts.Phase, "phase", "installation", "installation|update|uninstallation")
	cmd.AddCommand(prepared)

	applied := &cobra.Command{
		Use:           "applied",
		Short:         "Compute an applied setup id",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHashApplied(cmd, opts)
		},
	}
	applied.Flags().StringVar(&opts.Version, "version", "", "version tag (v<release>.<build>)")
	applied.Flags().StringVar(&opts.Repo, "repo", "", "plugin repo address")
	applied.Flags().StringVar(&opts.HelpersHash, "helpers-hash", "", "helpers hash")
	cmd.AddCommand(applied)

	cmd.AddCommand(&cobra.Command{
		Use:           "installation <dao> <plugin>",
		Short:         "Compute a plugin installation id",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			addrs, err := parseAddresses(args)
			if err != nil {
				return err
			}
			return outputHash(cmd, opts.RootOptions, "installation", ir.PluginInstallationID(addrs[0], addrs[1]))
		},
	})

	return cmd
}

func runHashPrepared(cmd *cobra.Command, opts *HashOptions) error {
	tag, repo, helpersHash, err := parseSetupFlags(opts)
	if err != nil {
		return err
	}
	permissionsHash, err := parseHashFlag("permissions-hash", opts.PermissionsHash)
	if err != nil {
		return err
	}
	phase, err := parsePhase(opts.Phase)
	if err != nil {
		return err
	}
	data, err := parseHexData(opts.Data)
	if err != nil {
		return err
	}
	id := ir.PreparedSetupID(tag, repo, permissionsHash, helpersHash, ir.HashData(data), phase)
	return outputHash(cmd, opts.RootOptions, "prepared", id)
}

func runHashApplied(cmd *cobra.Command, opts *HashOptions) error {
	tag, repo, helpersHash, err := parseSetupFlags(opts)
	if err != nil {
		return err
	}
	return outputHash(cmd, opts.RootOptions, "applied", ir.AppliedSetupID(tag, repo, helpersHash))
}

// parseSetupFlags parses the flags every setup id needs. A missing helpers
// hash means no helpers.
func parseSetupFlags(opts *HashOptions) (ir.VersionTag, ir.Address, ir.Hash, error) {
	if opts.Version == "" || opts.Repo == "" {
		return ir.VersionTag{}, ir.Zero, ir.Hash{}, NewExitError(ExitCommandError, "--version and --repo are required")
	}
	tag, err := ir.ParseVersionTag(opts.Version)
	if err != nil {
		return ir.VersionTag{}, ir.Zero, ir.Hash{}, WrapExitError(ExitCommandError, "invalid --version", err)
	}
	repo, err := ir.ParseAddress(opts.Repo)
	if err != nil {
		return ir.VersionTag{}, ir.Zero, ir.Hash{}, WrapExitError(ExitCommandError, "invalid --repo", err)
	}
	helpersHash := ir.HashHelpers(nil)
	if opts.HelpersHash != "" {
		if helpersHash, err = parseHashFlag("helpers-hash", opts.HelpersHash); err != nil {
			return ir.VersionTag{}, ir.Zero, ir.Hash{}, err
		}
	}
	return tag, repo, helpersHash, nil
}

func parseHashFlag(name, value string) (ir.Hash, error) {
	if value == "" {
		return ir.HashPermissions(nil), nil
	}
	h, err := ir.ParseHash(value)
	if err != nil {
		return ir.Hash{}, WrapExitError(ExitCommandError, "invalid --"+name, err)
	}
	return h, nil
}

func parsePhase(s string) (ir.PreparationType, error) {
	switch strings.ToLower(s) {
	case "installation":
		return ir.PreparationInstallation, nil
	case "update":
		return ir.PreparationUpdate, nil
	case "uninstallation":
		return ir.PreparationUninstallation, nil
	default:
		return ir.PreparationNone, NewExitError(ExitCommandError, fmt.Sprintf("invalid --phase %q", s))
	}
}

func parseHexData(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --data", err)
	}
	return b, nil
}

func parseAddresses(args []string) ([]ir.Address, error) {
	out := make([]ir.Address, 0, len(args))
	for _, arg := range args {
		addr, err := ir.ParseAddress(arg)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid address %q", arg), err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// permissionItem is the YAML form of one permission list entry.
type permissionItem struct {
	Operation  string `yaml:"operation"`
	Where      string `yaml:"where"`
	Who        string `yaml:"who"`
	Condition  string `yaml:"condition,omitempty"`
	Permission string `yaml:"permission"`
}

func loadPermissions(path string) ([]ir.MultiTargetPermission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read permissions file", err)
	}
	var items []permissionItem
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to parse permissions file", err)
	}

	perms := make([]ir.MultiTargetPermission, 0, len(items))
	for i, it := range items {
		p, err := it.toPermission()
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("permissions[%d]", i), err)
		}
		perms = append(perms, p)
	}
	return perms, nil
}

func (it permissionItem) toPermission() (ir.MultiTargetPermission, error) {
	var p ir.MultiTargetPermission
	var err error
	if p.Operation, err = ir.ParseOperation(it.Operation); err != nil {
		return p, err
	}
	if p.Where, err = ir.ParseAddress(it.Where); err != nil {
		return p, fmt.Errorf("where: %w", err)
	}
	if p.Who, err = ir.ParseAddress(it.Who); err != nil {
		return p, fmt.Errorf("who: %w", err)
	}
	if it.Condition != "" {
		if p.Condition, err = ir.ParseAddress(it.Condition); err != nil {
			return p, fmt.Errorf("condition: %w", err)
		}
	}
	if p.PermissionID, err = ir.ParsePermissionID(it.Permission); err != nil {
		return p, fmt.Errorf("permission: %w", err)
	}
	return p, nil
}

func outputHash(cmd *cobra.Command, opts *RootOptions, kind string, h ir.Hash) error {
	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		return writeOK(w, HashResult{Kind: kind, Hash: h.String()})
	}
	fmt.Fprintln(w, h.String())
	return nil
}
