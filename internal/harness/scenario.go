package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/govkit/internal/manifest"
)

// Scenario is a governance test: a deployment, a sequence of steps and the
// assertions that must hold afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Deployment is deployed before the first step.
	Deployment manifest.Deployment `yaml:"deployment"`

	// Steps run in order, one transaction each.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state and the trace.
	Assertions []Assertion `yaml:"assertions"`
}

// Step operations.
const (
	OpGrant                 = "grant"
	OpGrantWithCondition    = "grant_with_condition"
	OpRevoke                = "revoke"
	OpFreeze                = "freeze"
	OpSetMetadata           = "set_metadata"
	OpSetDaoURI             = "set_dao_uri"
	OpDeposit               = "deposit"
	OpFund                  = "fund"
	OpExecute               = "execute"
	OpCreateVersion         = "create_version"
	OpUpdateReleaseMetadata = "update_release_metadata"
	OpInstall               = "install"
	OpPrepareInstallation   = "prepare_installation"
	OpApplyInstallation     = "apply_installation"
	OpPrepareUpdate         = "prepare_update"
	OpApplyUpdate           = "apply_update"
	OpPrepareUninstallation = "prepare_uninstallation"
	OpApplyUninstallation   = "apply_uninstallation"
	OpAdminExecute          = "admin_execute"
)

// Step is one transaction. Which fields apply depends on Op.
type Step struct {
	Op string `yaml:"op"`

	// From sends the transaction. Apply steps default to the DAO itself.
	From string `yaml:"from,omitempty"`

	DAO        string `yaml:"dao,omitempty"`
	Where      string `yaml:"where,omitempty"`
	Who        string `yaml:"who,omitempty"`
	Permission string `yaml:"permission,omitempty"`
	Condition  string `yaml:"condition,omitempty"`

	Metadata  string `yaml:"metadata,omitempty"`
	URI       string `yaml:"uri,omitempty"`
	Amount    uint64 `yaml:"amount,omitempty"`
	Reference string `yaml:"reference,omitempty"`
	Account   string `yaml:"account,omitempty"`

	CallID       string       `yaml:"call_id,omitempty"`
	Actions      []ActionSpec `yaml:"actions,omitempty"`
	AllowFailure []int        `yaml:"allow_failure,omitempty"`

	Repo    string              `yaml:"repo,omitempty"`
	Release uint8               `yaml:"release,omitempty"`
	Version string              `yaml:"version,omitempty"`
	Build   *manifest.BuildSpec `yaml:"build,omitempty"`

	// Plugin names an installation or a stored preparation.
	Plugin string `yaml:"plugin,omitempty"`
	// As names the result of a prepare or install step.
	As    string `yaml:"as,omitempty"`
	Admin string `yaml:"admin,omitempty"`
	Data  string `yaml:"data,omitempty"`

	// ExpectError is the error code the transaction must revert with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// ActionSpec is one action of an execute or admin_execute step. Without
// Call it is a plain value transfer; otherwise Call names a DAO method.
type ActionSpec struct {
	To         string `yaml:"to"`
	Value      uint64 `yaml:"value,omitempty"`
	Call       string `yaml:"call,omitempty"`
	Where      string `yaml:"where,omitempty"`
	Who        string `yaml:"who,omitempty"`
	Permission string `yaml:"permission,omitempty"`
	Condition  string `yaml:"condition,omitempty"`
	Metadata   string `yaml:"metadata,omitempty"`
	URI        string `yaml:"uri,omitempty"`
	Reference  string `yaml:"reference,omitempty"`
}

// Assertion validates the final state or the trace.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	DAO        string `yaml:"dao,omitempty"`
	Where      string `yaml:"where,omitempty"`
	Who        string `yaml:"who,omitempty"`
	Permission string `yaml:"permission,omitempty"`

	// Event and Emitter select events (event_count).
	Event   string `yaml:"event,omitempty"`
	Emitter string `yaml:"emitter,omitempty"`
	Count   int    `yaml:"count,omitempty"`

	// Events is the expected event order (event_order).
	Events []string `yaml:"events,omitempty"`

	Plugin string `yaml:"plugin,omitempty"`
	Phase  string `yaml:"phase,omitempty"`

	Account  string `yaml:"account,omitempty"`
	Amount   uint64 `yaml:"amount,omitempty"`
	Metadata string `yaml:"metadata,omitempty"`
}

// Assertion type constants.
const (
	AssertGranted      = "granted"
	AssertNotGranted   = "not_granted"
	AssertFrozen       = "frozen"
	AssertEventCount   = "event_count"
	AssertEventOrder   = "event_order"
	AssertInstalled    = "installed"
	AssertNotInstalled = "not_installed"
	AssertPhase        = "phase"
	AssertBalance      = "balance"
	AssertMetadata     = "metadata"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every .yaml and .yml file in dir, ordered by file
// name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}
	var paths []string
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if !entry.IsDir() && (ext == ".yaml" || ext == ".yml") {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Deployment.DAOs) == 0 && len(s.Deployment.Repos) == 0 {
		return fmt.Errorf("deployment must declare at least one dao or repo")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateStep checks the fields each operation needs.
func validateStep(index int, s *Step) error {
	need := func(field, value string) error {
		if value == "" {
			return fmt.Errorf("steps[%d]: %s is required for %s", index, field, s.Op)
		}
		return nil
	}
	var errs []error
	switch s.Op {
	case OpGrant, OpRevoke:
		errs = append(errs, need("from", s.From), need("dao", s.DAO), need("where", s.Where), need("who", s.Who), need("permission", s.Permission))
	case OpGrantWithCondition:
		errs = append(errs, need("from", s.From), need("dao", s.DAO), need("where", s.Where), need("who", s.Who), need("permission", s.Permission), need("condition", s.Condition))
	case OpFreeze:
		errs = append(errs, need("from", s.From), need("dao", s.DAO), need("where", s.Where), need("permission", s.Permission))
	case OpSetMetadata:
		errs = append(errs, need("from", s.From), need("dao", s.DAO))
	case OpSetDaoURI:
		errs = append(errs, need("from", s.From), need("dao", s.DAO), need("uri", s.URI))
	case OpDeposit:
		errs = append(errs, need("from", s.From), need("dao", s.DAO))
	case OpFund:
		errs = append(errs, need("account", s.Account))
	case OpExecute:
		errs = append(errs, need("from", s.From), need("dao", s.DAO))
	case OpCreateVersion:
		errs = append(errs, need("from", s.From), need("repo", s.Repo))
		if s.Build == nil {
			errs = append(errs, fmt.Errorf("steps[%d]: build is required for %s", index, s.Op))
		}
	case OpUpdateReleaseMetadata:
		errs = append(errs, need("from", s.From), need("repo", s.Repo), need("metadata", s.Metadata))
	case OpInstall, OpPrepareInstallation:
		errs = append(errs, need("dao", s.DAO), need("repo", s.Repo), need("version", s.Version), need("as", s.As))
	case OpPrepareUpdate:
		errs = append(errs, need("dao", s.DAO), need("plugin", s.Plugin), need("version", s.Version))
	case OpApplyInstallation, OpApplyUpdate, OpPrepareUninstallation, OpApplyUninstallation:
		errs = append(errs, need("dao", s.DAO), need("plugin", s.Plugin))
	case OpAdminExecute:
		errs = append(errs, need("from", s.From), need("plugin", s.Plugin))
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, s.Op)
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertGranted, AssertNotGranted:
		if a.DAO == "" || a.Where == "" || a.Who == "" || a.Permission == "" {
			return fmt.Errorf("assertions[%d]: dao, where, who and permission are required for %s", index, a.Type)
		}
	case AssertFrozen:
		if a.DAO == "" || a.Where == "" || a.Permission == "" {
			return fmt.Errorf("assertions[%d]: dao, where and permission are required for frozen", index)
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	case AssertInstalled, AssertNotInstalled:
		if a.DAO == "" || a.Plugin == "" {
			return fmt.Errorf("assertions[%d]: dao and plugin are required for %s", index, a.Type)
		}
	case AssertPhase:
		if a.DAO == "" || a.Plugin == "" || a.Phase == "" {
			return fmt.Errorf("assertions[%d]: dao, plugin and phase are required for phase", index)
		}
	case AssertBalance:
		if a.Account == "" {
			return fmt.Errorf("assertions[%d]: account is required for balance", index)
		}
	case AssertMetadata:
		if a.DAO == "" {
			return fmt.Errorf("assertions[%d]: dao is required for metadata", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
