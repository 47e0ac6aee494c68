package condition

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/roach88/govkit/internal/ir"
)

// DefaultLuaTimeout bounds a single Lua evaluation.
const DefaultLuaTimeout = 100 * time.Millisecond

// Lua evaluates a script that defines a global function
//
//	check(where, who, permission, data) -> boolean
//
// Addresses and data are passed as 0x-prefixed hex strings and the permission
// as its registered name (or hex when unnamed). Any script error, timeout or
// non-boolean result denies.
//
// The script is compiled once and every evaluation runs it in a fresh state,
// so globals written by one check are gone by the next. The timeout is wall
// clock time: a script that runs close to it may pass on one machine and be
// denied on another.
type Lua struct {
	mu      sync.Mutex
	proto   *lua.FunctionProto
	timeout time.Duration
	closed  bool
}

// LuaOption configures a Lua condition.
type LuaOption func(*Lua)

// WithLuaTimeout sets the per-evaluation timeout.
func WithLuaTimeout(d time.Duration) LuaOption {
	return func(c *Lua) {
		c.timeout = d
	}
}

// NewLua compiles source for a sandboxed state. Only the base, table, string
// and math libraries are available.
func NewLua(source string, opts ...LuaOption) (*Lua, error) {
	c := &Lua{timeout: DefaultLuaTimeout}
	for _, opt := range opts {
		opt(c)
	}

	chunk, err := parse.Parse(strings.NewReader(source), "<condition>")
	if err != nil {
		return nil, fmt.Errorf("compile lua condition: %w", err)
	}
	proto, err := lua.Compile(chunk, "<condition>")
	if err != nil {
		return nil, fmt.Errorf("compile lua condition: %w", err)
	}
	c.proto = proto

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	L, err := c.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile lua condition: %w", err)
	}
	defer L.Close()
	if fn := L.GetGlobal("check"); fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("lua condition must define a global function check (got %s)", fn.Type())
	}
	return c, nil
}

// load opens a sandboxed state and runs the compiled chunk in it.
func (c *Lua) load(ctx context.Context) (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// The base library still exposes file loaders.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetContext(ctx)

	L.Push(L.NewFunctionFromProto(c.proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.Close()
		return nil, err
	}
	return L, nil
}

// Check implements permission.Condition.
func (c *Lua) Check(where, who ir.Address, id ir.PermissionID, data []byte) bool {
	ok, err := c.Eval(where, who, id, data)
	if err != nil {
		slog.Debug("lua condition denied",
			"where", where,
			"who", who,
			"permission_id", id.Label(),
			"error", err,
		)
		return false
	}
	return ok
}

// Eval runs check and reports script failures instead of folding them into a
// denial.
func (c *Lua) Eval(where, who ir.Address, id ir.PermissionID, data []byte) (bool, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return false, fmt.Errorf("lua condition is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	L, err := c.load(ctx)
	if err != nil {
		return false, fmt.Errorf("lua load: %w", err)
	}
	defer L.Close()

	err = L.CallByParam(lua.P{
		Fn:      L.GetGlobal("check"),
		NRet:    1,
		Protect: true,
	},
		lua.LString(where.String()),
		lua.LString(who.String()),
		lua.LString(id.Label()),
		lua.LString("0x"+hex.EncodeToString(data)),
	)
	if err != nil {
		return false, fmt.Errorf("lua check: %w", err)
	}

	ret := L.Get(-1)
	b, ok := ret.(lua.LBool)
	if !ok {
		return false, fmt.Errorf("lua check returned %s, want boolean", ret.Type())
	}
	return bool(b), nil
}

// Close marks the condition closed. Later evaluations deny.
func (c *Lua) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}
