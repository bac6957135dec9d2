package middleware

import (
	"context"

	"github.com/crytic/medusa-geth/common"
	"github.com/rs/zerolog"

	"github.com/fuzzland/ityfuzz/onchain"
	"github.com/fuzzland/ityfuzz/state"
	"github.com/fuzzland/ityfuzz/vm/evm"
)

// OnchainFetch pre-populates the working VMState from an onchain.Loader the first
// time an opcode touches an address or storage slot the fuzzer has not itself
// deployed or written, per spec §4.2's on-chain fetcher row: "Fetches
// code/storage/ABI for unknown addresses via the on-chain loader". It observes
// OnOpcode *before* the interpreter executes the opcode (interpreter.run dispatches
// the bus call first), so a successful fetch here is visible to the opcode's own
// handler running immediately after.
type OnchainFetch struct {
	evm.BaseMiddleware

	loader *onchain.Loader
	ctx    context.Context
	logger zerolog.Logger
}

// NewOnchainFetch returns an OnchainFetch middleware backed by loader. ctx bounds
// every fetch issued during the middleware's lifetime (typically the fuzzing run's
// root context); each individual fetch is further bounded by onchain.DefaultFetchTimeout.
func NewOnchainFetch(loader *onchain.Loader, ctx context.Context, logger zerolog.Logger) *OnchainFetch {
	return &OnchainFetch{loader: loader, ctx: ctx, logger: logger.With().Str("component", "onchain_fetch_middleware").Logger()}
}

func (f *OnchainFetch) Name() string { return "onchain_fetch" }

func (f *OnchainFetch) OnOpcode(opCtx *evm.OpContext) {
	switch {
	case opCtx.Op == evm.SLOAD:
		f.ensureStorage(opCtx.World, opCtx.Frame.Address, opCtx)
	case opCtx.Op == evm.BALANCE, opCtx.Op == evm.EXTCODESIZE:
		f.ensureCode(opCtx.World, f.peekAddress(opCtx, 0))
	case opCtx.Op.IsCall():
		n := 1 // gas is peek(0) for every call-family opcode
		f.ensureCode(opCtx.World, f.peekAddress(opCtx, n))
	}
}

func (f *OnchainFetch) peekAddress(opCtx *evm.OpContext, n int) common.Address {
	v, err := opCtx.Stack.Peek(n)
	if err != nil {
		return common.Address{}
	}
	return common.BytesToAddress(v.Bytes())
}

// ensureCode fetches and installs code for addr if the working state has no account
// for it yet. A fetch miss (including a blacklisted address) leaves the account
// absent, which the interpreter already treats as "no code" — consistent with the
// "tainted unknown" degrade-to-conservative-default spec §7 describes.
func (f *OnchainFetch) ensureCode(world *state.VMState, addr common.Address) {
	if world == nil || addr == (common.Address{}) {
		return
	}
	if acc := world.GetAccount(addr); acc != nil {
		return
	}
	code, err := f.loader.CodeAt(f.ctx, addr)
	if err != nil || len(code) == 0 {
		return
	}

	hash := evm.CodeHash(code)
	world.CodeTable().Install(hash, code)
	acc := state.NewAccount(addr)
	acc.CodeHash = hash
	world.SetAccount(acc)
}

// ensureStorage fetches a storage slot on demand. Unlike code, which is fetched
// whole on first touch, storage is fetched per-slot since most contracts have far
// more slots than any single execution trace visits.
func (f *OnchainFetch) ensureStorage(world *state.VMState, addr common.Address, opCtx *evm.OpContext) {
	if world == nil {
		return
	}
	keyWord, err := opCtx.Stack.Peek(0)
	if err != nil {
		return
	}
	key := common.Hash(keyWord.Bytes32())

	acc := world.GetAccount(addr)
	if acc != nil {
		if _, known := acc.GetStorage(key); known {
			return
		}
	}

	value, ok, err := f.loader.StorageAt(f.ctx, addr, key)
	if err != nil || !ok {
		return
	}

	if acc == nil {
		acc = state.NewAccount(addr)
	} else {
		acc = acc.Clone()
	}
	acc.SetStorage(key, value)
	world.SetAccount(acc)
}
