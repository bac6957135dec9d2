package evm

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/fuzzland/ityfuzz/mutation"
	"github.com/fuzzland/ityfuzz/state"
	"github.com/fuzzland/ityfuzz/vm"
)

// DefaultGasLimit is the per-transaction gas budget used when an EVMInput does not
// override it. It has no bearing on real network gas economics; it only needs to be
// large enough that a fuzzed sequence is never starved of gas before it exercises
// the logic under test.
const DefaultGasLimit = 30_000_000

// EVMHost implements vm.Host by interpreting EVM bytecode directly against a
// state.VMState snapshot, routing every opcode and call-frame transition through a
// Bus of Middleware. It is the concrete backend spec §4.1 calls out as the first of
// potentially several VM-agnostic capability implementations.
type EVMHost struct {
	bus    *Bus
	logger zerolog.Logger
}

// NewEVMHost returns an EVMHost dispatching through bus. A nil bus is treated as an
// empty one (useful for unit tests that don't need middleware observation).
func NewEVMHost(bus *Bus, logger zerolog.Logger) *EVMHost {
	if bus == nil {
		bus = NewBus()
	}
	return &EVMHost{bus: bus, logger: logger.With().Str("component", "evm_host").Logger()}
}

// Bus returns the host's middleware bus, so callers can Use() middlewares onto it
// after construction.
func (h *EVMHost) Bus() *Bus {
	return h.bus
}

// Deploy installs code at a fresh (or explicitly pinned) address and runs
// constructorArgs against it as the account's initcode, per vm.Host.
func (h *EVMHost) Deploy(s *state.VMState, code []byte, constructorArgs []byte, deployer common.Address, pinnedAddress *common.Address) (*state.VMState, common.Address, *vm.DeployFailure) {
	if len(code) == 0 {
		return nil, common.Address{}, &vm.DeployFailure{Kind: vm.FailureCodeInvalid}
	}

	working := s.Extend(s.Block())

	var addr common.Address
	if pinnedAddress != nil {
		addr = *pinnedAddress
	} else {
		deployerAcc := working.GetAccount(deployer)
		nonce := uint64(0)
		bumped := state.NewAccount(deployer)
		if deployerAcc != nil {
			nonce = deployerAcc.Nonce
			bumped = deployerAcc.Clone()
		}
		addr = deriveCreateAddress(deployer, nonce)
		bumped.Nonce = nonce + 1
		working.SetAccount(bumped)
	}

	frame := NewFrame(deployer, addr, uint256.NewInt(0), code, constructorArgs, DefaultGasLimit)
	ip := newInterpreter(h.bus, working, h)
	h.bus.OnTxStart(frame)
	outcome := ip.run(frame)
	h.bus.OnTxEnd(frame, outcome)

	if outcome.ControlLeak != nil {
		// A constructor that leaks control before finishing is treated as an invalid
		// deployment: there is no sensible "paused deployment" concept in this model.
		return nil, common.Address{}, &vm.DeployFailure{Kind: vm.FailureRevert, Data: nil}
	}
	if errors.Is(outcome.Err, ErrOutOfGas) {
		return nil, common.Address{}, &vm.DeployFailure{Kind: vm.FailureOutOfGas}
	}
	if !outcome.Success {
		return nil, common.Address{}, &vm.DeployFailure{Kind: vm.FailureRevert, Data: outcome.RevertData}
	}

	runtimeCode := outcome.ReturnData
	codeHash := keccak256Hash(runtimeCode)
	working.CodeTable().Install(codeHash, runtimeCode)

	acc := state.NewAccount(addr)
	acc.CodeHash = codeHash
	working.SetAccount(acc)

	return working, addr, nil
}

// Execute applies tx to s and returns the resulting outcome, per vm.Host. A
// resumption input (tx.IsResumption()) is routed to resume rather than
// starting a fresh top-level frame.
func (h *EVMHost) Execute(s *state.VMState, tx *mutation.EVMInput) (*vm.ExecOutcome, error) {
	if tx.IsResumption() {
		paused := s.PopPause(tx.Resume.PauseID)
		if paused == nil {
			return nil, errors.Wrapf(ErrPausedFrameOrphaned, "pause id %d", tx.Resume.PauseID)
		}
		return h.resume(s, paused, tx.Resume.ReplacementReturnData)
	}

	working := s.Extend(s.Block().Advance(tx.BlockDelayBlocks, tx.BlockDelaySeconds))

	value := tx.Value
	if value == nil {
		value = uint256.NewInt(0)
	}
	if !value.IsZero() {
		caller := working.GetAccount(tx.Caller)
		if caller == nil {
			caller = state.NewAccount(tx.Caller)
		}
		callerClone := caller.Clone()
		callerClone.Balance = new(uint256.Int).Add(callerClone.Balance, value)
		working.SetAccount(callerClone)
	}

	targetAcc := working.GetAccount(tx.Target)
	if targetAcc == nil {
		return nil, errors.Errorf("execute: target %s has no account", tx.Target.Hex())
	}
	code, _ := working.CodeTable().Get(targetAcc.CodeHash)

	frame := NewFrame(tx.Caller, tx.Target, value, code, tx.Calldata(), DefaultGasLimit)
	ip := newInterpreter(h.bus, working, h)
	h.bus.OnTxStart(frame)
	outcome := ip.run(frame)
	h.bus.OnTxEnd(frame, outcome)

	return h.translate(s, working, frame, outcome)
}

// Resume continues a previously captured PausedFrame, per vm.Host.
func (h *EVMHost) Resume(s *state.VMState, paused *state.PausedFrame, injectedReturn []byte) (*vm.ExecOutcome, error) {
	return h.resume(s, paused, injectedReturn)
}

func (h *EVMHost) resume(s *state.VMState, paused *state.PausedFrame, injectedReturn []byte) (*vm.ExecOutcome, error) {
	working := s.Extend(s.Block())

	frame, err := rebuildFrame(working, paused)
	if err != nil {
		return nil, err
	}

	frame.Memory.Set(0, injectedReturn) // conservative: surface the injected data at memory offset 0 for the resumed frame to re-read, mirroring how a CALL's return data is consulted via RETURNDATACOPY.
	frame.ReturnData = injectedReturn

	var success uint256.Int
	if len(injectedReturn) > 0 || paused.ExternalValue == nil {
		success.SetOne()
	}
	if err := frame.Stack.Push(&success); err != nil {
		return nil, err
	}

	ip := newInterpreter(h.bus, working, h)
	outcome := ip.run(frame)
	h.bus.OnTxEnd(frame, outcome)

	return h.translate(s, working, frame, outcome)
}

func rebuildFrame(working *state.VMState, paused *state.PausedFrame) (*Frame, error) {
	acc := working.GetAccount(paused.ExternalTarget)
	callCtx := CallContextFrame{Value: uint256.NewInt(0)}
	if len(paused.CallContext) > 0 {
		callCtx = CallContextFrame(paused.CallContext[len(paused.CallContext)-1])
	}
	code := []byte{}
	if acc != nil {
		if c, ok := working.CodeTable().Get(acc.CodeHash); ok {
			code = c
		}
	}
	frame := &Frame{
		Caller:   callCtx.Caller,
		Address:  callCtx.Callee,
		Value:    callCtx.Value,
		Code:     code,
		PC:       paused.PC,
		Gas:      paused.RemainingGas,
		GasLimit: paused.RemainingGas,
		Stack:    NewStack(),
		Memory:   NewMemory(),
	}
	frame.Stack.RestoreFrom(paused.Stack)
	frame.Memory.RestoreFrom(paused.Memory)
	return frame, nil
}

// CallContextFrame mirrors state.CallContextFrame; defined as a distinct type here
// only to give it a conversion target without importing state's field-for-field
// layout directly into interpreter logic.
type CallContextFrame state.CallContextFrame

func (h *EVMHost) translate(original, working *state.VMState, frame *Frame, outcome *TxOutcome) (*vm.ExecOutcome, error) {
	if outcome.ControlLeak != nil {
		pf := capturePausedFrame(outcome.ControlLeak, working.Hash())
		if !working.PushPause(pf) {
			// Pause stack already at MaxPauseDepth: the control leak is discarded and
			// the call is treated as though it reverted, per the bounded-depth
			// invariant — deeper reentrancy is simply not explored further.
			return &vm.ExecOutcome{Kind: vm.OutcomeRevert, RevertReason: []byte("pause stack exhausted")}, nil
		}
		var extValue common.Hash
		if outcome.ControlLeak.Value != nil {
			extValue = common.Hash(outcome.ControlLeak.Value.Bytes32())
		}
		return &vm.ExecOutcome{
			Kind:             vm.OutcomeControlLeak,
			PausedFrame:      pf,
			ExternalTarget:   outcome.ControlLeak.Target,
			ExternalCalldata: outcome.ControlLeak.Calldata,
			ExternalValue:    &extValue,
			// StateDelta carries every mutation the frame performed before control
			// leaked (e.g. SSTOREs preceding the CALL); a leak is not a revert, so
			// the caller must keep driving the sequence forward from this state
			// rather than the pre-transaction one, exactly as it would for Success.
			StateDelta: working,
		}, nil
	}

	if !outcome.Success {
		return &vm.ExecOutcome{Kind: vm.OutcomeRevert, RevertReason: outcome.RevertData, GasUsed: outcome.GasUsed}, nil
	}

	logs := make([]vm.Log, len(outcome.Logs))
	for i, l := range outcome.Logs {
		logs[i] = vm.Log{Address: l.Address, Topics: l.Topics, Data: l.Data}
	}

	return &vm.ExecOutcome{
		Kind:       vm.OutcomeSuccess,
		ReturnData: outcome.ReturnData,
		Logs:       logs,
		StateDelta: working,
		GasUsed:    outcome.GasUsed,
	}, nil
}

func capturePausedFrame(leak *ControlLeakInfo, parentHash state.Hash) *state.PausedFrame {
	var chain []state.CallContextFrame
	for f := leak.Frame; f != nil; f = f.parent {
		chain = append([]state.CallContextFrame{{
			Caller: f.Caller,
			Callee: f.Address,
			Value:  f.Value,
			Gas:    f.Gas,
		}}, chain...)
	}
	return &state.PausedFrame{
		PC:               leak.Frame.PC,
		Stack:            leak.Frame.Stack.Snapshot(),
		Memory:           leak.Frame.Memory.Snapshot(),
		RemainingGas:     leak.Frame.Gas,
		CallContext:      chain,
		ExternalTarget:   leak.Target,
		ExternalCalldata: leak.Calldata,
		ExternalValue:    leak.Value,
		ParentStateHash:  parentHash,
	}
}
