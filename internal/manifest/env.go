package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/govkit/internal/condition"
	"github.com/roach88/govkit/internal/dao"
	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
	"github.com/roach88/govkit/internal/processor"
	"github.com/roach88/govkit/internal/repo"
)

// Reserved names bound by every deployment.
const (
	NameDeployer  = "deployer"
	NameRegistry  = "registry"
	NameProcessor = "processor"
)

// Installation is a plugin installed by a deployment or a scenario step.
type Installation struct {
	DAO     ir.Address
	Plugin  ir.Address
	Ref     processor.PluginSetupRef
	Helpers []ir.Address
}

// Env is a deployed manifest: the live contracts plus the name table.
type Env struct {
	Ledger    *ledger.Ledger
	Registry  *repo.Registry
	Processor *processor.Processor
	Deployer  ir.Address

	daos       map[string]*dao.DAO
	repos      map[string]*repo.Repo
	installs   map[string]Installation
	setups     map[string][]ir.Address // published setups per repo, in build order
	conditions map[string]*condition.Account
	names      map[string]ir.Address
	labels     map[ir.Address]string
}

func newEnv(l *ledger.Ledger) *Env {
	e := &Env{
		Ledger:     l,
		Deployer:   ir.LabelAddress(NameDeployer),
		daos:       make(map[string]*dao.DAO),
		repos:      make(map[string]*repo.Repo),
		installs:   make(map[string]Installation),
		setups:     make(map[string][]ir.Address),
		conditions: make(map[string]*condition.Account),
		names:      make(map[string]ir.Address),
		labels:     make(map[ir.Address]string),
	}
	e.names[NameDeployer] = e.Deployer
	e.labels[e.Deployer] = NameDeployer
	return e
}

// Bind names addr. A name binds once.
func (e *Env) Bind(name string, addr ir.Address) error {
	if prev, ok := e.names[name]; ok && prev != addr {
		return fmt.Errorf("name %q already bound to %s", name, prev)
	}
	e.names[name] = addr
	if _, ok := e.labels[addr]; !ok {
		e.labels[addr] = name
	}
	return nil
}

// Resolve returns the address behind name. Hex addresses pass through;
// "any" is ir.Any; unknown names become external accounts.
func (e *Env) Resolve(name string) (ir.Address, error) {
	if name == "" {
		return ir.Zero, fmt.Errorf("empty account name")
	}
	if strings.HasPrefix(name, "0x") {
		return ir.ParseAddress(name)
	}
	if name == "any" {
		return ir.Any, nil
	}
	if addr, ok := e.names[name]; ok {
		return addr, nil
	}
	addr := ir.LabelAddress(name)
	if err := e.Bind(name, addr); err != nil {
		return ir.Zero, err
	}
	return addr, nil
}

// Name returns the name bound to addr, or its hex form.
func (e *Env) Name(addr ir.Address) string {
	if name, ok := e.labels[addr]; ok {
		return name
	}
	if addr == ir.Any {
		return "any"
	}
	return addr.String()
}

// Names returns every bound name, sorted.
func (e *Env) Names() []string {
	out := make([]string, 0, len(e.names))
	for name := range e.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Humanize replaces every bound hex address in s with its name. ir.Any
// becomes "any".
func (e *Env) Humanize(s string) string {
	for addr, name := range e.labels {
		s = strings.ReplaceAll(s, addr.String(), name)
	}
	return strings.ReplaceAll(s, ir.Any.String(), "any")
}

// DAO returns the DAO deployed under name.
func (e *Env) DAO(name string) (*dao.DAO, error) {
	d, ok := e.daos[name]
	if !ok {
		return nil, fmt.Errorf("unknown dao %q", name)
	}
	return d, nil
}

// DAOs returns every deployed DAO by name.
func (e *Env) DAOs() map[string]*dao.DAO {
	return e.daos
}

// Repo returns the repo registered under subdomain.
func (e *Env) Repo(subdomain string) (*repo.Repo, error) {
	r, ok := e.repos[subdomain]
	if !ok {
		return nil, fmt.Errorf("unknown repo %q", subdomain)
	}
	return r, nil
}

// Installation returns the plugin installed under name.
func (e *Env) Installation(name string) (Installation, bool) {
	inst, ok := e.installs[name]
	return inst, ok
}

// SetInstallation records or replaces the installation under name and binds
// the plugin address to it.
func (e *Env) SetInstallation(name string, inst Installation) error {
	if err := e.Bind(name, inst.Plugin); err != nil {
		return err
	}
	e.installs[name] = inst
	return nil
}

// RemoveInstallation forgets name's installation. The name stays bound.
func (e *Env) RemoveInstallation(name string) {
	delete(e.installs, name)
}

// Close releases the Lua states behind deployed conditions.
func (e *Env) Close() {
	for _, acct := range e.conditions {
		if l, ok := acct.Condition.(*condition.Lua); ok {
			l.Close()
		}
	}
}
