package evm

import (
	"github.com/crytic/medusa-geth/common"

	"github.com/fuzzland/ityfuzz/state"
)

// OpContext exposes the live frame state a Middleware may inspect (but must not
// retain past the callback returning: stack and memory are reused between steps).
type OpContext struct {
	PC     uint64
	Op     OpCode
	Gas    uint64
	Cost   uint64
	Depth  int
	Stack  *Stack
	Memory *Memory
	Frame  *Frame
	World  *state.VMState
}

// CallInfo describes a call-family or create-family frame entry, passed to
// Middleware.OnEnter.
type CallInfo struct {
	Depth    int
	Kind     OpCode // CALL, STATICCALL, DELEGATECALL, CREATE, or CREATE2
	From     common.Address
	To       common.Address
	Input    []byte
	Gas      uint64
	Value    *common.Hash // 32-byte big-endian encoded value; nil if not applicable
	World    *state.VMState
}

// ExitInfo describes the result of a call-family or create-family frame, passed to
// Middleware.OnExit.
type ExitInfo struct {
	Depth    int
	Output   []byte
	GasUsed  uint64
	Err      error
	Reverted bool
}

// Middleware is the uniform hook interface every observer in the middleware bus
// implements, mirroring the teacher's tracer-router callback shape (OnOpcode /
// OnEnter / OnExit) plus transaction boundaries. A Middleware may mutate the frame it
// is given (e.g. the concolic shadow middleware annotating stack words with symbolic
// labels) but must never retain Stack/Memory pointers past the call.
type Middleware interface {
	// Name identifies the middleware for diagnostics and for selectively disabling
	// one at construction time (e.g. --concolic off).
	Name() string

	OnTxStart(frame *Frame)
	OnOpcode(ctx *OpContext)
	OnEnter(info *CallInfo)
	OnExit(info *ExitInfo)
	OnTxEnd(frame *Frame, outcome *TxOutcome)
}

// BaseMiddleware provides no-op implementations of every Middleware method, so a
// concrete middleware need only override the hooks it cares about — matching the
// teacher's style of embedding a zero-value base to avoid repeating empty methods
// across every tracer.
type BaseMiddleware struct{}

func (BaseMiddleware) OnTxStart(*Frame)                {}
func (BaseMiddleware) OnOpcode(*OpContext)             {}
func (BaseMiddleware) OnEnter(*CallInfo)               {}
func (BaseMiddleware) OnExit(*ExitInfo)                {}
func (BaseMiddleware) OnTxEnd(*Frame, *TxOutcome)      {}

// Bus routes every callback to each registered Middleware in registration order,
// generalizing the teacher's TestChainTracerRouter from a single native tracer to an
// arbitrarily long ordered chain of domain-specific observers.
type Bus struct {
	middlewares []Middleware
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Use appends middlewares to the bus, in dispatch order.
func (b *Bus) Use(m ...Middleware) {
	b.middlewares = append(b.middlewares, m...)
}

// Middlewares returns the registered middlewares in dispatch order.
func (b *Bus) Middlewares() []Middleware {
	return b.middlewares
}

func (b *Bus) OnTxStart(frame *Frame) {
	for _, m := range b.middlewares {
		m.OnTxStart(frame)
	}
}

func (b *Bus) OnOpcode(ctx *OpContext) {
	for _, m := range b.middlewares {
		m.OnOpcode(ctx)
	}
}

func (b *Bus) OnEnter(info *CallInfo) {
	for _, m := range b.middlewares {
		m.OnEnter(info)
	}
}

func (b *Bus) OnExit(info *ExitInfo) {
	for _, m := range b.middlewares {
		m.OnExit(info)
	}
}

func (b *Bus) OnTxEnd(frame *Frame, outcome *TxOutcome) {
	for _, m := range b.middlewares {
		m.OnTxEnd(frame, outcome)
	}
}
