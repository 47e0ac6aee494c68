package manifest

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/plugin"
)

// CompileDeployment parses a built CUE value into a Deployment. The top
// level may declare dao, repo, install, grant and fund.
func CompileDeployment(v cue.Value) (*Deployment, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	d := &Deployment{}
	var err error
	if d.DAOs, err = compileDAOs(v); err != nil {
		return nil, err
	}
	if d.Repos, err = compileRepos(v); err != nil {
		return nil, err
	}
	if d.Installs, err = compileInstalls(v); err != nil {
		return nil, err
	}
	if d.Conditions, err = compileConditions(v); err != nil {
		return nil, err
	}
	if d.Grants, err = compileGrants(v); err != nil {
		return nil, err
	}
	if d.Funds, err = compileFunds(v); err != nil {
		return nil, err
	}
	if len(d.DAOs) == 0 && len(d.Repos) == 0 {
		return nil, &CompileError{Field: "dao", Message: "manifest declares no daos or repos", Pos: v.Pos()}
	}
	return d, nil
}

func compileDAOs(v cue.Value) ([]DAOSpec, error) {
	var out []DAOSpec
	err := eachField(v, "dao", func(name string, fv cue.Value) error {
		spec := DAOSpec{Name: name}
		var err error
		if spec.Owner, err = requiredString(fv, "owner"); err != nil {
			return err
		}
		if spec.Metadata, err = optionalString(fv, "metadata"); err != nil {
			return err
		}
		if spec.URI, err = optionalString(fv, "uri"); err != nil {
			return err
		}
		out = append(out, spec)
		return nil
	})
	return out, err
}

func compileRepos(v cue.Value) ([]RepoSpec, error) {
	var out []RepoSpec
	err := eachField(v, "repo", func(name string, fv cue.Value) error {
		spec := RepoSpec{Subdomain: name}
		var err error
		if spec.Maintainer, err = requiredString(fv, "maintainer"); err != nil {
			return err
		}
		buildsVal := fv.LookupPath(cue.ParsePath("builds"))
		if !buildsVal.Exists() {
			return &CompileError{Field: "builds", Message: "repo " + name + " has no builds", Pos: fv.Pos()}
		}
		if err := buildsVal.Decode(&spec.Builds); err != nil {
			return formatCUEError(err)
		}
		if len(spec.Builds) == 0 {
			return &CompileError{Field: "builds", Message: "repo " + name + " has no builds", Pos: buildsVal.Pos()}
		}
		for i, b := range spec.Builds {
			if err := validateBuild(b, i, len(spec.Builds)); err != nil {
				return &CompileError{Field: "builds", Message: fmt.Sprintf("repo %s build %d: %s", name, i+1, err), Pos: buildsVal.Pos()}
			}
		}
		out = append(out, spec)
		return nil
	})
	return out, err
}

func validateBuild(b BuildSpec, index, total int) error {
	if b.Release == 0 {
		return fmt.Errorf("release must be at least 1")
	}
	if b.Setup.Reuse != 0 {
		if b.Setup.Reuse < 1 || b.Setup.Reuse > index {
			return fmt.Errorf("reuse must name an earlier build (1..%d)", index)
		}
		return nil
	}
	switch b.Setup.Type {
	case SetupAdmin:
	case SetupFixed:
		if b.Setup.Logic == "" {
			return fmt.Errorf("fixed setup needs a logic name")
		}
		if _, err := ParseKind(b.Setup.Kind); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown setup type %q", b.Setup.Type)
	}
	return nil
}

func compileInstalls(v cue.Value) ([]InstallSpec, error) {
	var out []InstallSpec
	err := eachField(v, "install", func(name string, fv cue.Value) error {
		spec := InstallSpec{Name: name}
		var err error
		if spec.DAO, err = requiredString(fv, "dao"); err != nil {
			return err
		}
		if spec.Repo, err = requiredString(fv, "repo"); err != nil {
			return err
		}
		if spec.Version, err = requiredString(fv, "version"); err != nil {
			return err
		}
		if _, err := ir.ParseVersionTag(spec.Version); err != nil {
			return &CompileError{Field: "version", Message: err.Error(), Pos: fv.LookupPath(cue.ParsePath("version")).Pos()}
		}
		if spec.Admin, err = optionalString(fv, "admin"); err != nil {
			return err
		}
		if spec.Data, err = optionalString(fv, "data"); err != nil {
			return err
		}
		out = append(out, spec)
		return nil
	})
	return out, err
}

func compileConditions(v cue.Value) ([]ConditionSpec, error) {
	var out []ConditionSpec
	declared := make(map[string]bool)
	err := eachField(v, "condition", func(name string, fv cue.Value) error {
		var spec ConditionSpec
		if err := fv.Decode(&spec); err != nil {
			return formatCUEError(err)
		}
		spec.Name = name
		if err := ValidateCondition(spec, declared); err != nil {
			return &CompileError{Field: "condition", Message: err.Error(), Pos: fv.Pos()}
		}
		declared[name] = true
		out = append(out, spec)
		return nil
	})
	return out, err
}

// ValidateCondition checks that the entry sets exactly one evaluator and that its
// combinators only refer to declared conditions.
func ValidateCondition(spec ConditionSpec, declared map[string]bool) error {
	set := 0
	for _, ok := range []bool{spec.Lua != "", len(spec.Callers) > 0, len(spec.AllOf) > 0, len(spec.AnyOf) > 0, spec.Not != ""} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("condition %s must set exactly one of lua, callers, all_of, any_of, not", spec.Name)
	}
	refs := append(append([]string{}, spec.AllOf...), spec.AnyOf...)
	if spec.Not != "" {
		refs = append(refs, spec.Not)
	}
	for _, ref := range refs {
		if !declared[ref] {
			return fmt.Errorf("condition %s refers to undeclared condition %q", spec.Name, ref)
		}
	}
	return nil
}

func compileGrants(v cue.Value) ([]GrantSpec, error) {
	grantsVal := v.LookupPath(cue.ParsePath("grant"))
	if !grantsVal.Exists() {
		return nil, nil
	}
	var out []GrantSpec
	if err := grantsVal.Decode(&out); err != nil {
		return nil, formatCUEError(err)
	}
	for i, g := range out {
		if g.DAO == "" || g.Where == "" || g.Who == "" || g.Permission == "" {
			return nil, &CompileError{
				Field:   "grant",
				Message: fmt.Sprintf("grant %d needs dao, where, who and permission", i),
				Pos:     grantsVal.Pos(),
			}
		}
	}
	return out, nil
}

func compileFunds(v cue.Value) ([]FundSpec, error) {
	var out []FundSpec
	err := eachField(v, "fund", func(name string, fv cue.Value) error {
		amount, err := fv.Uint64()
		if err != nil {
			return formatCUEError(err)
		}
		out = append(out, FundSpec{Account: name, Amount: amount})
		return nil
	})
	return out, err
}

// eachField calls fn for every field of the struct at path, in declaration
// order. A missing path is not an error.
func eachField(v cue.Value, path string, fn func(name string, fv cue.Value) error) error {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return nil
	}
	iter, err := sv.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Label(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	if s == "" {
		return "", &CompileError{Field: field, Message: field + " must not be empty", Pos: fv.Pos()}
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// ParseKind maps a manifest kind to a plugin type. Empty means UUPS.
func ParseKind(s string) (plugin.Type, error) {
	switch s {
	case "", "uups":
		return plugin.UUPS, nil
	case "cloneable":
		return plugin.Cloneable, nil
	case "constructable":
		return plugin.Constructable, nil
	default:
		return 0, fmt.Errorf("unknown plugin kind %q", s)
	}
}

// CompileError is a manifest error with its CUE position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError keeps the first CUE error that carries a position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
