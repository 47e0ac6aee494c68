package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/govkit/internal/codec"
	"github.com/roach88/govkit/internal/dao"
	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
	"github.com/roach88/govkit/internal/manifest"
	"github.com/roach88/govkit/internal/plugin/admin"
	"github.com/roach88/govkit/internal/processor"
	"github.com/roach88/govkit/internal/setup"
	"github.com/roach88/govkit/internal/testutil"
)

// Run executes a scenario on a fresh deterministic ledger and returns its
// result. A step or assertion that does not hold fails the result; Run only
// returns an error when the scenario itself cannot be executed (a bad
// deployment, an unknown name, a missing preparation).
//
// opts are passed to the ledger after the deterministic defaults.
func Run(scenario *Scenario, opts ...ledger.Option) (*Result, error) {
	return RunContext(context.Background(), scenario, opts...)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario, opts ...ledger.Option) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	logger.Debug("running scenario", "name", scenario.Name)

	l, rec := testutil.NewLedger(opts...)
	env, err := manifest.Deploy(ctx, l, &scenario.Deployment)
	if err != nil {
		return nil, fmt.Errorf("deploy: %w", err)
	}
	defer env.Close()
	deployed := rec.Len()

	r := &runner{
		ctx:      ctx,
		env:      env,
		prepared: make(map[string]preparation),
		logger:   logger,
	}
	result := NewResult()

	for i, step := range scenario.Steps {
		err := r.step(step)
		var rev *revertError
		switch {
		case errors.As(err, &rev):
			code := string(ir.CodeOf(rev.err))
			if step.ExpectError == "" {
				result.AddError(fmt.Sprintf("steps[%d] %s: unexpected revert: %s", i, step.Op, env.Humanize(rev.err.Error())))
			} else if code != step.ExpectError {
				result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got %q: %s", i, step.Op, step.ExpectError, code, env.Humanize(rev.err.Error())))
			}
		case err != nil:
			return nil, fmt.Errorf("steps[%d] %s: %w", i, step.Op, err)
		case step.ExpectError != "":
			result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, transaction committed", i, step.Op, step.ExpectError))
		}
	}

	result.Trace = r.trace(rec.Since(deployed))

	for i, a := range scenario.Assertions {
		if err := r.assert(result, a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %s", i, err))
		}
	}

	logger.Debug("scenario finished", "name", scenario.Name, "pass", result.Pass, "transactions", len(result.Trace))
	return result, nil
}

// revertError marks a transaction that ran and reverted, as opposed to a
// step that could not be sent at all.
type revertError struct {
	err error
}

func (e *revertError) Error() string { return e.err.Error() }
func (e *revertError) Unwrap() error { return e.err }

// preparation is the stored result of a prepare step.
type preparation struct {
	inst        manifest.Installation
	permissions []ir.MultiTargetPermission
	initData    []byte
}

type runner struct {
	ctx      context.Context
	env      *manifest.Env
	prepared map[string]preparation
	logger   *slog.Logger
}

func (r *runner) submit(sender ir.Address, label string, fn func(ctx context.Context) error) error {
	if _, err := r.env.Ledger.Submit(r.ctx, sender, label, fn); err != nil {
		return &revertError{err: err}
	}
	return nil
}

// call sends one message as a transaction. An empty method sends value
// without data.
func (r *runner) call(label string, sender, to ir.Address, value uint64, method string, args any) error {
	var data []byte
	if method != "" {
		var err error
		if data, err = codec.Encode(method, args); err != nil {
			return err
		}
	}
	return r.submit(sender, label, func(ctx context.Context) error {
		_, err := r.env.Ledger.Call(ctx, ledger.Msg{From: sender, To: to, Value: value, Data: data})
		return err
	})
}

// sender resolves s.From, falling back to def.
func (r *runner) sender(s Step, def ir.Address) (ir.Address, error) {
	if s.From == "" {
		return def, nil
	}
	return r.env.Resolve(s.From)
}

func (r *runner) step(s Step) error {
	r.logger.Debug("step", "op", s.Op, "from", s.From)

	switch s.Op {
	case OpGrant, OpGrantWithCondition, OpRevoke, OpFreeze:
		return r.permission(s)
	case OpSetMetadata:
		return r.daoCall(s, 0, dao.MethodSetMetadata, dao.MetadataArgs{Metadata: []byte(s.Metadata)})
	case OpSetDaoURI:
		return r.daoCall(s, 0, dao.MethodSetDaoURI, dao.MetadataArgs{URI: s.URI})
	case OpDeposit:
		return r.daoCall(s, s.Amount, dao.MethodDeposit, dao.DepositArgs{Reference: s.Reference})
	case OpFund:
		return r.fund(s)
	case OpExecute:
		return r.execute(s)
	case OpCreateVersion:
		return r.createVersion(s)
	case OpUpdateReleaseMetadata:
		return r.updateReleaseMetadata(s)
	case OpInstall:
		return r.install(s)
	case OpPrepareInstallation:
		return r.prepareInstallation(s)
	case OpApplyInstallation:
		return r.applyInstallation(s)
	case OpPrepareUpdate:
		return r.prepareUpdate(s)
	case OpApplyUpdate:
		return r.applyUpdate(s)
	case OpPrepareUninstallation:
		return r.prepareUninstallation(s)
	case OpApplyUninstallation:
		return r.applyUninstallation(s)
	case OpAdminExecute:
		return r.adminExecute(s)
	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}
}

var permissionMethods = map[string]string{
	OpGrant:              dao.MethodGrant,
	OpGrantWithCondition: dao.MethodGrantWithCondition,
	OpRevoke:             dao.MethodRevoke,
	OpFreeze:             dao.MethodFreeze,
}

func (r *runner) permission(s Step) error {
	args, err := r.permissionArgs(s.Where, s.Who, s.Permission, s.Condition)
	if err != nil {
		return err
	}
	return r.daoCall(s, 0, permissionMethods[s.Op], args)
}

// permissionArgs resolves the names of a permission call. who and cond may
// be empty.
func (r *runner) permissionArgs(where, who, perm, cond string) (dao.PermissionArgs, error) {
	var args dao.PermissionArgs
	var err error
	if args.Where, err = r.env.Resolve(where); err != nil {
		return args, fmt.Errorf("where: %w", err)
	}
	if who != "" {
		if args.Who, err = r.env.Resolve(who); err != nil {
			return args, fmt.Errorf("who: %w", err)
		}
	}
	if cond != "" {
		if args.Condition, err = r.env.Resolve(cond); err != nil {
			return args, fmt.Errorf("condition: %w", err)
		}
	}
	if args.PermissionID, err = ir.ParsePermissionID(perm); err != nil {
		return args, fmt.Errorf("permission: %w", err)
	}
	return args, nil
}

func (r *runner) daoCall(s Step, value uint64, method string, args any) error {
	d, err := r.env.DAO(s.DAO)
	if err != nil {
		return err
	}
	from, err := r.env.Resolve(s.From)
	if err != nil {
		return err
	}
	return r.call(s.Op, from, d.Address(), value, method, args)
}

func (r *runner) fund(s Step) error {
	addr, err := r.env.Resolve(s.Account)
	if err != nil {
		return err
	}
	return r.submit(r.env.Deployer, s.Op, func(context.Context) error {
		r.env.Ledger.Mint(addr, s.Amount)
		return nil
	})
}

func (r *runner) execute(s Step) error {
	actions, err := r.actions(s.Actions)
	if err != nil {
		return err
	}
	var callID ir.Hash
	if s.CallID != "" {
		callID = ir.Keccak256([]byte(s.CallID))
	}
	return r.daoCall(s, 0, dao.MethodExecute, dao.ExecuteArgs{
		CallID:          callID,
		Actions:         actions,
		AllowFailureMap: ir.BitmapOf(s.AllowFailure...),
	})
}

// actions turns action specs into encoded actions.
func (r *runner) actions(specs []ActionSpec) ([]ir.Action, error) {
	out := make([]ir.Action, 0, len(specs))
	for i, spec := range specs {
		a, err := r.action(spec)
		if err != nil {
			return nil, fmt.Errorf("actions[%d]: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *runner) action(spec ActionSpec) (ir.Action, error) {
	to, err := r.env.Resolve(spec.To)
	if err != nil {
		return ir.Action{}, err
	}

	var args any
	switch spec.Call {
	case "":
		return ir.Action{To: to, Value: spec.Value}, nil
	case dao.MethodGrant, dao.MethodGrantWithCondition, dao.MethodRevoke, dao.MethodFreeze:
		pargs, err := r.permissionArgs(spec.Where, spec.Who, spec.Permission, spec.Condition)
		if err != nil {
			return ir.Action{}, err
		}
		a, err := dao.PermissionAction(to, spec.Call, pargs)
		if err != nil {
			return ir.Action{}, err
		}
		a.Value = spec.Value
		return a, nil
	case dao.MethodSetMetadata:
		args = dao.MetadataArgs{Metadata: []byte(spec.Metadata)}
	case dao.MethodSetDaoURI:
		args = dao.MetadataArgs{URI: spec.URI}
	case dao.MethodDeposit:
		args = dao.DepositArgs{Reference: spec.Reference}
	default:
		return ir.Action{}, fmt.Errorf("unsupported call %q", spec.Call)
	}

	data, err := codec.Encode(spec.Call, args)
	if err != nil {
		return ir.Action{}, err
	}
	return ir.Action{To: to, Value: spec.Value, Data: data}, nil
}

func (r *runner) createVersion(s Step) error {
	if _, err := r.env.Repo(s.Repo); err != nil {
		return err
	}
	from, err := r.env.Resolve(s.From)
	if err != nil {
		return err
	}
	build := *s.Build
	return r.submit(from, s.Op, func(ctx context.Context) error {
		_, err := r.env.CreateVersion(ctx, from, s.Repo, build)
		return err
	})
}

func (r *runner) updateReleaseMetadata(s Step) error {
	pr, err := r.env.Repo(s.Repo)
	if err != nil {
		return err
	}
	from, err := r.env.Resolve(s.From)
	if err != nil {
		return err
	}
	return r.submit(from, s.Op, func(context.Context) error {
		return pr.UpdateReleaseMetadata(from, s.Release, []byte(s.Metadata))
	})
}

func (r *runner) install(s Step) error {
	d, err := r.env.DAO(s.DAO)
	if err != nil {
		return err
	}
	if _, err := r.env.Repo(s.Repo); err != nil {
		return err
	}
	from, err := r.sender(s, d.Address())
	if err != nil {
		return err
	}
	spec := manifest.InstallSpec{
		Name:    s.As,
		DAO:     s.DAO,
		Repo:    s.Repo,
		Version: s.Version,
		Admin:   s.Admin,
		Data:    s.Data,
	}
	return r.submit(from, s.Op, func(ctx context.Context) error {
		_, err := r.env.Install(ctx, spec)
		return err
	})
}

// ref resolves a repo version.
func (r *runner) ref(repoName, version string) (processor.PluginSetupRef, error) {
	pr, err := r.env.Repo(repoName)
	if err != nil {
		return processor.PluginSetupRef{}, err
	}
	tag, err := ir.ParseVersionTag(version)
	if err != nil {
		return processor.PluginSetupRef{}, err
	}
	return processor.PluginSetupRef{VersionTag: tag, PluginSetupRepo: pr.Address()}, nil
}

func (r *runner) prepareInstallation(s Step) error {
	d, err := r.env.DAO(s.DAO)
	if err != nil {
		return err
	}
	ref, err := r.ref(s.Repo, s.Version)
	if err != nil {
		return err
	}
	data, err := r.env.InstallData(ref, manifest.InstallSpec{Admin: s.Admin, Data: s.Data})
	if err != nil {
		return err
	}
	daoAddr := d.Address()
	from, err := r.sender(s, daoAddr)
	if err != nil {
		return err
	}

	var p preparation
	err = r.submit(from, s.Op, func(ctx context.Context) error {
		pluginAddr, prepared, err := r.env.Processor.PrepareInstallation(ctx, from, daoAddr, processor.PrepareInstallationParams{Ref: ref, Data: data})
		if err != nil {
			return err
		}
		p = preparation{
			inst:        manifest.Installation{DAO: daoAddr, Plugin: pluginAddr, Ref: ref, Helpers: prepared.Helpers},
			permissions: prepared.Permissions,
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.prepared[preparedKey(OpPrepareInstallation, s.As)] = p
	return r.env.Bind(s.As, p.inst.Plugin)
}

func (r *runner) applyInstallation(s Step) error {
	p, daoAddr, from, err := r.preparedFor(s, OpPrepareInstallation)
	if err != nil {
		return err
	}
	err = r.submit(from, s.Op, func(ctx context.Context) error {
		return r.env.Processor.ApplyInstallation(ctx, from, daoAddr, processor.ApplyInstallationParams{
			Ref:         p.inst.Ref,
			Plugin:      p.inst.Plugin,
			Permissions: p.permissions,
			HelpersHash: ir.HashHelpers(p.inst.Helpers),
		})
	})
	if err != nil {
		return err
	}
	delete(r.prepared, preparedKey(OpPrepareInstallation, s.Plugin))
	return r.env.SetInstallation(s.Plugin, p.inst)
}

func (r *runner) prepareUpdate(s Step) error {
	inst, daoAddr, from, err := r.installation(s)
	if err != nil {
		return err
	}
	tag, err := ir.ParseVersionTag(s.Version)
	if err != nil {
		return err
	}

	var p preparation
	err = r.submit(from, s.Op, func(ctx context.Context) error {
		initData, prepared, err := r.env.Processor.PrepareUpdate(ctx, from, daoAddr, processor.PrepareUpdateParams{
			CurrentVersionTag: inst.Ref.VersionTag,
			NewVersionTag:     tag,
			PluginSetupRepo:   inst.Ref.PluginSetupRepo,
			Payload: setup.SetupPayload{
				Plugin:         inst.Plugin,
				CurrentHelpers: inst.Helpers,
				Data:           []byte(s.Data),
			},
		})
		if err != nil {
			return err
		}
		next := inst
		next.Ref.VersionTag = tag
		next.Helpers = prepared.Helpers
		p = preparation{inst: next, permissions: prepared.Permissions, initData: initData}
		return nil
	})
	if err != nil {
		return err
	}
	r.prepared[preparedKey(OpPrepareUpdate, s.Plugin)] = p
	return nil
}

func (r *runner) applyUpdate(s Step) error {
	p, daoAddr, from, err := r.preparedFor(s, OpPrepareUpdate)
	if err != nil {
		return err
	}
	err = r.submit(from, s.Op, func(ctx context.Context) error {
		return r.env.Processor.ApplyUpdate(ctx, from, daoAddr, processor.ApplyUpdateParams{
			Plugin:      p.inst.Plugin,
			Ref:         p.inst.Ref,
			InitData:    p.initData,
			Permissions: p.permissions,
			HelpersHash: ir.HashHelpers(p.inst.Helpers),
		})
	})
	if err != nil {
		return err
	}
	delete(r.prepared, preparedKey(OpPrepareUpdate, s.Plugin))
	return r.env.SetInstallation(s.Plugin, p.inst)
}

func (r *runner) prepareUninstallation(s Step) error {
	inst, daoAddr, from, err := r.installation(s)
	if err != nil {
		return err
	}

	var p preparation
	err = r.submit(from, s.Op, func(ctx context.Context) error {
		perms, err := r.env.Processor.PrepareUninstallation(ctx, from, daoAddr, processor.PrepareUninstallationParams{
			Ref: inst.Ref,
			Payload: setup.SetupPayload{
				Plugin:         inst.Plugin,
				CurrentHelpers: inst.Helpers,
				Data:           []byte(s.Data),
			},
		})
		if err != nil {
			return err
		}
		p = preparation{inst: inst, permissions: perms}
		return nil
	})
	if err != nil {
		return err
	}
	r.prepared[preparedKey(OpPrepareUninstallation, s.Plugin)] = p
	return nil
}

func (r *runner) applyUninstallation(s Step) error {
	p, daoAddr, from, err := r.preparedFor(s, OpPrepareUninstallation)
	if err != nil {
		return err
	}
	err = r.submit(from, s.Op, func(ctx context.Context) error {
		return r.env.Processor.ApplyUninstallation(ctx, from, daoAddr, processor.ApplyUninstallationParams{
			Plugin:      p.inst.Plugin,
			Ref:         p.inst.Ref,
			Permissions: p.permissions,
		})
	})
	if err != nil {
		return err
	}
	delete(r.prepared, preparedKey(OpPrepareUninstallation, s.Plugin))
	r.env.RemoveInstallation(s.Plugin)
	return nil
}

func (r *runner) adminExecute(s Step) error {
	pluginAddr, err := r.env.Resolve(s.Plugin)
	if err != nil {
		return err
	}
	from, err := r.env.Resolve(s.From)
	if err != nil {
		return err
	}
	actions, err := r.actions(s.Actions)
	if err != nil {
		return err
	}
	args := admin.ProposalArgs{
		Metadata:        []byte(s.Metadata),
		Actions:         actions,
		AllowFailureMap: ir.BitmapOf(s.AllowFailure...),
	}
	return r.submit(from, s.Op, func(ctx context.Context) error {
		_, err := admin.ExecuteProposal(ctx, r.env.Ledger, from, pluginAddr, args)
		return err
	})
}

// installation returns the live installation s.Plugin names, the DAO
// address and the sender.
func (r *runner) installation(s Step) (manifest.Installation, ir.Address, ir.Address, error) {
	d, err := r.env.DAO(s.DAO)
	if err != nil {
		return manifest.Installation{}, ir.Zero, ir.Zero, err
	}
	inst, ok := r.env.Installation(s.Plugin)
	if !ok {
		return manifest.Installation{}, ir.Zero, ir.Zero, fmt.Errorf("no installation named %q", s.Plugin)
	}
	from, err := r.sender(s, d.Address())
	if err != nil {
		return manifest.Installation{}, ir.Zero, ir.Zero, err
	}
	return inst, d.Address(), from, nil
}

// preparedFor returns the preparation stored by the prepare op for
// s.Plugin, the DAO address and the sender.
func (r *runner) preparedFor(s Step, op string) (preparation, ir.Address, ir.Address, error) {
	d, err := r.env.DAO(s.DAO)
	if err != nil {
		return preparation{}, ir.Zero, ir.Zero, err
	}
	p, ok := r.prepared[preparedKey(op, s.Plugin)]
	if !ok {
		return preparation{}, ir.Zero, ir.Zero, fmt.Errorf("no %s stored for %q", op, s.Plugin)
	}
	from, err := r.sender(s, d.Address())
	if err != nil {
		return preparation{}, ir.Zero, ir.Zero, err
	}
	return p, d.Address(), from, nil
}

func preparedKey(op, name string) string {
	return op + "/" + name
}

// trace renders receipts with every bound address replaced by its name.
func (r *runner) trace(receipts []ledger.Receipt) []TraceTx {
	out := make([]TraceTx, 0, len(receipts))
	for _, rc := range receipts {
		tx := TraceTx{
			Seq:       rc.Seq,
			ID:        rc.ID,
			Label:     rc.Label,
			Sender:    r.env.Name(rc.Sender),
			Status:    rc.Status(),
			ErrorCode: string(ir.CodeOf(rc.Err)),
			Events:    make([]TraceEvent, 0, len(rc.Events)),
		}
		for _, ev := range rc.Events {
			tx.Events = append(tx.Events, TraceEvent{
				Emitter: r.env.Name(ev.Emitter),
				Name:    ev.Name,
				Fields:  r.humanizeMap(ev.Fields),
			})
		}
		out = append(out, tx)
	}
	return out
}

func (r *runner) humanizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = r.humanize(v)
	}
	return out
}

func (r *runner) humanize(v any) any {
	switch val := v.(type) {
	case string:
		return r.env.Humanize(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = r.humanize(item)
		}
		return out
	case ir.Fields:
		return r.humanizeMap(val)
	case map[string]any:
		return r.humanizeMap(val)
	default:
		return v
	}
}
