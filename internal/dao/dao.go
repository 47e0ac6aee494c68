package dao

import (
	"encoding/hex"
	"maps"

	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
	"github.com/roach88/govkit/internal/permission"
)

// SignatureValidator validates signatures on behalf of a DAO.
type SignatureValidator interface {
	IsValidSignature(hash ir.Hash, signature []byte) ir.Selector
}

// DAO is the root account of an organization.
type DAO struct {
	*permission.Manager

	addr   ir.Address
	ledger *ledger.Ledger

	metadata  []byte
	daoURI    string
	callbacks map[ir.Selector]ir.Selector
	supported map[ir.Selector]bool
	validator ir.Address

	executing bool
}

// Option configures a DAO at construction.
type Option func(*DAO)

// WithMetadata sets the initial metadata without emitting an event.
func WithMetadata(metadata []byte) Option {
	return func(d *DAO) {
		d.metadata = metadata
	}
}

// WithDaoURI sets the initial URI.
func WithDaoURI(uri string) Option {
	return func(d *DAO) {
		d.daoURI = uri
	}
}

// New creates a DAO at addr on l and grants ROOT on it to initialOwner. The
// DAO is not registered on the ledger; use Deploy for that.
func New(l *ledger.Ledger, addr, initialOwner ir.Address, opts ...Option) *DAO {
	d := &DAO{
		addr:      addr,
		ledger:    l,
		callbacks: make(map[ir.Selector]ir.Selector),
		supported: make(map[ir.Selector]bool),
	}
	d.Manager = permission.New(addr, initialOwner,
		permission.WithEventSink(l),
		permission.WithConditionResolver(l),
		permission.WithRestrictedForAny(RestrictedForAny),
	)
	for _, opt := range opts {
		opt(d)
	}
	for _, id := range baseInterfaces {
		d.supported[id] = true
	}
	return d
}

// Deploy creates a DAO at the next address of deployer and registers it.
func Deploy(l *ledger.Ledger, deployer, initialOwner ir.Address, opts ...Option) (*DAO, error) {
	return ledger.Deploy(l, deployer, func(addr ir.Address) (*DAO, error) {
		return New(l, addr, initialOwner, opts...), nil
	})
}

// Address implements ledger.Account.
func (d *DAO) Address() ir.Address {
	return d.addr
}

// Metadata returns the current metadata.
func (d *DAO) Metadata() []byte {
	return d.metadata
}

// DaoURI returns the current URI.
func (d *DAO) DaoURI() string {
	return d.daoURI
}

// Balance returns the DAO's native balance.
func (d *DAO) Balance() uint64 {
	return d.ledger.Balance(d.addr)
}

// SignatureValidator returns the configured validator address, or zero.
func (d *DAO) SignatureValidator() ir.Address {
	return d.validator
}

// Snapshot implements ledger.Snapshotter.
func (d *DAO) Snapshot() func() {
	restorePerms := d.Manager.Snapshot()
	metadata := d.metadata
	uri := d.daoURI
	callbacks := maps.Clone(d.callbacks)
	supported := maps.Clone(d.supported)
	validator := d.validator
	return func() {
		restorePerms()
		d.metadata = metadata
		d.daoURI = uri
		d.callbacks = callbacks
		d.supported = supported
		d.validator = validator
	}
}

// requirePermission fails unless caller holds id on the DAO.
func (d *DAO) requirePermission(caller ir.Address, id ir.PermissionID, data []byte) error {
	if !d.IsGranted(d.addr, caller, id, data) {
		return permission.ErrUnauthorized(d.addr, caller, id)
	}
	return nil
}

// SetMetadata replaces the metadata. Requires SET_METADATA_PERMISSION.
func (d *DAO) SetMetadata(caller ir.Address, metadata []byte) error {
	if err := d.requirePermission(caller, SetMetadataPermissionID, nil); err != nil {
		return err
	}
	d.metadata = metadata
	d.emit("MetadataSet", ir.Fields{"metadata": "0x" + hex.EncodeToString(metadata)})
	return nil
}

// SetDaoURI replaces the URI. Requires SET_METADATA_PERMISSION.
func (d *DAO) SetDaoURI(caller ir.Address, uri string) error {
	if err := d.requirePermission(caller, SetMetadataPermissionID, nil); err != nil {
		return err
	}
	d.daoURI = uri
	d.emit("NewURI", ir.Fields{"dao_uri": uri})
	return nil
}

// SetSignatureValidator sets the account IsValidSignature delegates to.
// Requires SET_SIGNATURE_VALIDATOR_PERMISSION.
func (d *DAO) SetSignatureValidator(caller, validator ir.Address) error {
	if err := d.requirePermission(caller, SetSignatureValidatorPermissionID, nil); err != nil {
		return err
	}
	d.validator = validator
	d.emit("SignatureValidatorSet", ir.Fields{"signature_validator": validator.String()})
	return nil
}

// IsValidSignature asks the configured validator. Without a validator, or
// when the validator account is missing, it returns the zero selector.
func (d *DAO) IsValidSignature(hash ir.Hash, signature []byte) ir.Selector {
	if d.validator.IsZero() {
		return ir.Selector{}
	}
	acct, ok := d.ledger.Account(d.validator)
	if !ok {
		return ir.Selector{}
	}
	v, ok := acct.(SignatureValidator)
	if !ok {
		return ir.Selector{}
	}
	return v.IsValidSignature(hash, signature)
}

func (d *DAO) emit(name string, fields ir.Fields) {
	d.ledger.Emit(ir.Event{Emitter: d.addr, Name: name, Fields: fields})
}
