package evm

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"

	"github.com/fuzzland/ityfuzz/state"
)

// call handles CALL/STATICCALL/DELEGATECALL. A call into an address whose code is
// known within this VMState's CodeTable is executed as an internal subcall (the
// common case: one fuzzed contract calling another fuzzed contract). A call into an
// address with no known code is, per the reentrancy detector's definition (spec
// §4.2), a control-leak boundary: execution pauses and is handed back to the
// continuation engine (C8) rather than guessed at.
func (ip *interpreter) call(frame *Frame, op OpCode) (*ControlLeakInfo, *TxOutcome, error) {
	hasValue := op == CALL
	n := 6
	if hasValue {
		n = 7
	}
	if frame.Stack.Len() < n {
		return nil, nil, ErrStackUnderflow
	}

	gasWord, _ := frame.Stack.Pop()
	addrWord, _ := frame.Stack.Pop()
	var value uint256.Int
	if hasValue {
		v, _ := frame.Stack.Pop()
		value = v
	}
	inOffset, _ := frame.Stack.Pop()
	inSize, _ := frame.Stack.Pop()
	outOffset, _ := frame.Stack.Pop()
	outSize, _ := frame.Stack.Pop()

	target := common.BytesToAddress(addrWord.Bytes())
	calldata := frame.Memory.Get(inOffset.Uint64(), inSize.Uint64())
	forwardedGas := gasWord.Uint64()
	if forwardedGas > frame.Gas {
		forwardedGas = frame.Gas
	}

	if frame.Static && hasValue && !value.IsZero() {
		return nil, nil, ErrWriteProtection
	}

	if target != frame.Address {
		if _, ok := ip.world.CodeTable().Get(ip.accountOrNew(target).CodeHash); !ok {
			frame.Gas -= forwardedGas
			return &ControlLeakInfo{
				Target:   target,
				Calldata: calldata,
				Value:    new(uint256.Int).Set(&value),
				Frame:    frame,
			}, nil, nil
		}
	}

	if frame.Depth+1 >= maxCallDepth {
		return nil, nil, ip.pushCallResult(frame, outOffset, outSize, false, nil)
	}

	code, _ := ip.world.CodeTable().Get(ip.accountOrNew(target).CodeHash)

	if hasValue && !value.IsZero() {
		ip.transferValue(frame.Address, target, &value)
	}

	sub := NewFrame(frame.Address, target, &value, code, calldata, forwardedGas)
	sub.Depth = frame.Depth + 1
	sub.Static = frame.Static || op == STATICCALL
	sub.parent = frame
	if op == DELEGATECALL {
		sub.Address = frame.Address
		sub.Caller = frame.Caller
		value = *frame.Value
		sub.Value = frame.Value
	}

	ip.bus.OnEnter(&CallInfo{Depth: sub.Depth, Kind: op, From: sub.Caller, To: target, Input: calldata, Gas: forwardedGas, World: ip.world})
	subOutcome := ip.run(sub)
	ip.bus.OnExit(&ExitInfo{Depth: sub.Depth, Output: subOutcome.ReturnData, GasUsed: subOutcome.GasUsed, Err: subOutcome.Err, Reverted: !subOutcome.Success})

	if subOutcome.ControlLeak != nil {
		// A nested subcall itself leaked control; propagate the pause outward rather
		// than resolving this frame, since the resumption must eventually unwind
		// through every enclosing frame, not just the innermost one.
		return subOutcome.ControlLeak, nil, nil
	}

	frame.Gas -= subOutcome.GasUsed
	frame.ReturnData = subOutcome.ReturnData
	frame.Memory.Set(outOffset.Uint64(), truncateOrPad(subOutcome.ReturnData, outSize.Uint64()))

	return nil, nil, ip.pushCallResult(frame, outOffset, outSize, subOutcome.Success, nil)
}

func (ip *interpreter) pushCallResult(frame *Frame, outOffset, outSize uint256.Int, success bool, err error) error {
	var v uint256.Int
	if success {
		v.SetOne()
	}
	if pushErr := frame.Stack.Push(&v); pushErr != nil {
		return pushErr
	}
	frame.PC++
	return err
}

func truncateOrPad(data []byte, size uint64) []byte {
	out := make([]byte, size)
	n := uint64(len(data))
	if n > size {
		n = size
	}
	copy(out, data[:n])
	return out
}

func (ip *interpreter) transferValue(from, to common.Address, value *uint256.Int) {
	fromAcc := ip.accountOrNew(from).Clone()
	toAcc := ip.accountOrNew(to).Clone()
	fromAcc.Balance = new(uint256.Int).Sub(fromAcc.Balance, value)
	toAcc.Balance = new(uint256.Int).Add(toAcc.Balance, value)
	ip.world.SetAccount(fromAcc)
	ip.world.SetAccount(toAcc)
}

// create handles CREATE/CREATE2: installs the initcode bytes themselves as the new
// account's code without running them (constructor logic is not executed as a
// separate interpreted frame; callers that need a running constructor use
// Host.Deploy, which does execute it).
func (ip *interpreter) create(frame *Frame, op OpCode) error {
	value, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	offset, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	size, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	if op == CREATE2 {
		if _, err := frame.Stack.Pop(); err != nil { // salt, unused by this address scheme
			return err
		}
	}

	initcode := frame.Memory.Get(offset.Uint64(), size.Uint64())
	creator := ip.accountOrNew(frame.Address).Clone()
	creator.Nonce++
	ip.world.SetAccount(creator)

	newAddr := deriveCreateAddress(frame.Address, creator.Nonce)
	codeHash := keccak256Hash(initcode)
	ip.world.CodeTable().Install(codeHash, initcode)

	newAcc := state.NewAccount(newAddr)
	newAcc.CodeHash = codeHash
	ip.world.SetAccount(newAcc)

	if !value.IsZero() {
		ip.transferValue(frame.Address, newAddr, &value)
	}

	var v uint256.Int
	v.SetBytes(newAddr.Bytes())
	if err := frame.Stack.Push(&v); err != nil {
		return err
	}
	frame.PC++
	return nil
}

func deriveCreateAddress(creator common.Address, nonce uint64) common.Address {
	h := keccak256Hash(append(creator.Bytes(), byte(nonce), byte(nonce>>8), byte(nonce>>16)))
	var addr common.Address
	copy(addr[:], h[12:])
	return addr
}
