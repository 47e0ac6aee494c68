package processor

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"

	"github.com/roach88/govkit/internal/ir"
)

// Phase is where an installation stands in its lifecycle.
type Phase string

const (
	PhaseUninstalled       Phase = "uninstalled"
	PhaseInstallPrepared   Phase = "install_prepared"
	PhaseInstalled         Phase = "installed"
	PhaseUpdatePrepared    Phase = "update_prepared"
	PhaseUninstallPrepared Phase = "uninstall_prepared"
)

// Lifecycle events recorded for each installation.
const (
	EventPrepareInstall   = "PREPARE_INSTALL"
	EventApplyInstall     = "APPLY_INSTALL"
	EventPrepareUpdate    = "PREPARE_UPDATE"
	EventApplyUpdate      = "APPLY_UPDATE"
	EventPrepareUninstall = "PREPARE_UNINSTALL"
	EventApplyUninstall   = "APPLY_UNINSTALL"
)

// Lifecycle summarizes an installation's history.
type Lifecycle struct {
	Phase      Phase
	Installs   int
	Updates    int
	Uninstalls int
	Events     []string
}

type lifecycleContext struct{}

// buildLifecycle returns an interpreter for the installation lifecycle.
func buildLifecycle() (*statekit.Interpreter[lifecycleContext], error) {
	machine, err := statekit.NewMachine[lifecycleContext]("plugin-installation").
		WithInitial("uninstalled").
		WithContext(lifecycleContext{}).
		State("uninstalled").
		On(EventPrepareInstall).Target("install_prepared").Done().
		State("install_prepared").
		On(EventPrepareInstall).Target("install_prepared").
		On(EventApplyInstall).Target("installed").Done().
		State("installed").
		On(EventPrepareUpdate).Target("update_prepared").
		On(EventPrepareUninstall).Target("uninstall_prepared").Done().
		State("update_prepared").
		On(EventPrepareUpdate).Target("update_prepared").
		On(EventPrepareUninstall).Target("uninstall_prepared").
		On(EventApplyUpdate).Target("installed").
		On(EventApplyUninstall).Target("uninstalled").Done().
		State("uninstall_prepared").
		On(EventPrepareUninstall).Target("uninstall_prepared").
		On(EventPrepareUpdate).Target("update_prepared").
		On(EventApplyUpdate).Target("installed").
		On(EventApplyUninstall).Target("uninstalled").Done().
		Build()
	if err != nil {
		return nil, err
	}
	return statekit.NewInterpreter(machine), nil
}

// Lifecycle replays the recorded events of the installation of plugin in dao.
func (p *Processor) Lifecycle(dao, plugin ir.Address) (Lifecycle, error) {
	var out Lifecycle
	if s, ok := p.states[ir.PluginInstallationID(dao, plugin)]; ok {
		out.Events = append(out.Events, s.history...)
	}

	interp, err := buildLifecycle()
	if err != nil {
		return Lifecycle{}, fmt.Errorf("failed to build lifecycle machine: %w", err)
	}
	interp.Start()
	defer interp.Stop()

	for _, ev := range out.Events {
		interp.Send(statekit.Event{Type: statekit.EventType(ev)})
		switch ev {
		case EventApplyInstall:
			out.Installs++
		case EventApplyUpdate:
			out.Updates++
		case EventApplyUninstall:
			out.Uninstalls++
		}
	}
	out.Phase = Phase(interp.State().Value)
	return out, nil
}
