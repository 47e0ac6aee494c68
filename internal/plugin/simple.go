package plugin

import (
	"context"
	"fmt"

	"github.com/roach88/govkit/internal/codec"
	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
)

// Simple is a stateless Logic with a name and a build number. Its
// initializer stores the init data under "init/<build>" and its only method,
// "version", returns "<name>@<build>". Manifests and scenarios use it for
// plugins whose behavior does not matter.
type Simple struct {
	addr       ir.Address
	name       string
	build      uint16
	interfaces map[ir.Selector]bool
}

// NewSimple creates a Simple logic at addr.
func NewSimple(addr ir.Address, name string, build uint16, interfaces ...ir.Selector) *Simple {
	s := &Simple{
		addr:       addr,
		name:       name,
		build:      build,
		interfaces: make(map[ir.Selector]bool, len(interfaces)),
	}
	for _, id := range interfaces {
		s.interfaces[id] = true
	}
	return s
}

// DeploySimple creates a Simple logic at the next address of deployer and
// registers it.
func DeploySimple(l *ledger.Ledger, deployer ir.Address, name string, build uint16, interfaces ...ir.Selector) (*Simple, error) {
	return ledger.Deploy(l, deployer, func(addr ir.Address) (*Simple, error) {
		return NewSimple(addr, name, build, interfaces...), nil
	})
}

func (s *Simple) Address() ir.Address { return s.addr }

func (s *Simple) Build() uint16 { return s.build }

func (s *Simple) Name() string { return s.name }

func (s *Simple) SupportsInterface(id ir.Selector) bool {
	return s.interfaces[id]
}

func (s *Simple) Initialize(_ context.Context, p *Proxy, data []byte) error {
	p.Set(fmt.Sprintf("init/%d", s.build), data)
	return nil
}

func (s *Simple) Call(_ context.Context, p *Proxy, msg ledger.Msg) ([]byte, error) {
	c, err := codec.Decode(msg.Data)
	if err != nil {
		return nil, ir.NewError(ir.ErrCodeUnknownMethod, err.Error(), "plugin", p.Address().String())
	}
	if c.Method != "version" {
		return nil, ir.NewError(ir.ErrCodeUnknownMethod, "plugin does not implement method",
			"plugin", p.Address().String(),
			"method", c.Method,
		)
	}
	return []byte(fmt.Sprintf("%s@%d", s.name, s.build)), nil
}
