package evm

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"

	"github.com/fuzzland/ityfuzz/state"
)

// maxCallDepth bounds internal subcalls (a CALL into a contract whose code this VMState
// already knows), independent of state.MaxPauseDepth which bounds paused continuations
// specifically.
const maxCallDepth = 64

// gasCost returns the (simplified, non-EIP-2929-aware) gas cost of a single opcode
// step. Exact gas metering is not load-bearing for the fuzzer's feedback signals —
// what matters is that OutOfGas is reachable and folds into Revert, per the error
// taxonomy.
func gasCost(op OpCode) uint64 {
	switch {
	case op == SLOAD:
		return 100
	case op == SSTORE:
		return 100
	case op.IsCall():
		return 100
	case op == CREATE || op == CREATE2:
		return 200
	case op == SHA3:
		return 30
	default:
		if ok, _ := op.IsPush(); ok {
			return 3
		}
		return 3
	}
}

func analyzeJumpdests(code []byte) map[uint64]bool {
	dests := make(map[uint64]bool)
	for i := 0; i < len(code); {
		op := OpCode(code[i])
		if op == JUMPDEST {
			dests[uint64(i)] = true
		}
		if ok, n := op.IsPush(); ok {
			i += 1 + n
			continue
		}
		i++
	}
	return dests
}

// interpreter drives a single transaction's execution against a working VMState
// extension, threading every opcode and call-frame transition through the
// middleware bus.
type interpreter struct {
	bus     *Bus
	world   *state.VMState
	host    *EVMHost
	logs    []Log
	jumpDests map[string]map[uint64]bool
}

func newInterpreter(bus *Bus, world *state.VMState, host *EVMHost) *interpreter {
	return &interpreter{bus: bus, world: world, host: host, jumpDests: make(map[string]map[uint64]bool)}
}

func (ip *interpreter) jumpDestsFor(code []byte) map[uint64]bool {
	key := string(code)
	if d, ok := ip.jumpDests[key]; ok {
		return d
	}
	d := analyzeJumpdests(code)
	ip.jumpDests[key] = d
	return d
}

// run executes frame to completion (RETURN, REVERT, STOP, a hard error, or a control
// leak) and returns the resulting TxOutcome. frame.Depth == 0 signals the top-level
// transaction frame; run is also used recursively for internal subcalls into
// already-known contract code.
func (ip *interpreter) run(frame *Frame) *TxOutcome {
	dests := ip.jumpDestsFor(frame.Code)

	for {
		if frame.PC >= uint64(len(frame.Code)) {
			return ip.finish(frame, nil, false, nil)
		}

		op := OpCode(frame.Code[frame.PC])
		cost := gasCost(op)
		if frame.Gas < cost {
			return ip.finish(frame, nil, true, ErrOutOfGas)
		}

		ip.bus.OnOpcode(&OpContext{
			PC: frame.PC, Op: op, Gas: frame.Gas, Cost: cost,
			Depth: frame.Depth, Stack: frame.Stack, Memory: frame.Memory, Frame: frame,
			World: ip.world,
		})
		frame.Gas -= cost

		leak, outcome, err := ip.step(frame, op, dests)
		if leak != nil {
			return &TxOutcome{ControlLeak: leak}
		}
		if outcome != nil {
			return outcome
		}
		if err != nil {
			return ip.finish(frame, nil, true, err)
		}
	}
}

// step executes a single opcode, advancing frame.PC unless the opcode itself sets it
// (JUMP/JUMPI). It returns at most one of: a ControlLeakInfo (execution must pause),
// a terminal TxOutcome (STOP/RETURN/REVERT), or an error (folds to Revert by the
// caller), with the others nil; all three are nil when execution simply continues.
func (ip *interpreter) step(frame *Frame, op OpCode, dests map[uint64]bool) (*ControlLeakInfo, *TxOutcome, error) {
	switch {
	case op == STOP:
		return nil, ip.finish(frame, nil, false, nil), nil

	case op == ADD, op == MUL, op == SUB, op == DIV, op == MOD:
		return nil, nil, ip.binOp(frame, op)

	case op == LT, op == GT, op == EQ, op == AND, op == OR, op == XOR:
		return nil, nil, ip.boolOp(frame, op)

	case op == ISZERO, op == NOT:
		return nil, nil, ip.unOp(frame, op)

	case op == POP:
		_, err := frame.Stack.Pop()
		return nil, nil, advance(frame, err)

	case op == ADDRESS:
		return nil, nil, pushAddr(frame, frame.Address)
	case op == CALLER:
		return nil, nil, pushAddr(frame, frame.Caller)
	case op == CALLVALUE:
		return nil, nil, pushInt(frame, frame.Value)
	case op == CALLDATASIZE:
		return nil, nil, pushUint64(frame, uint64(len(frame.Input)))
	case op == CALLDATALOAD:
		return nil, nil, ip.calldataLoad(frame)
	case op == CODESIZE:
		return nil, nil, pushUint64(frame, uint64(len(frame.Code)))

	case op == TIMESTAMP:
		return nil, nil, pushUint64(frame, ip.world.Block().Timestamp)
	case op == NUMBER:
		return nil, nil, pushBig(frame, ip.world.Block().Number)
	case op == COINBASE:
		return nil, nil, pushAddr(frame, ip.world.Block().Coinbase)
	case op == CHAINID:
		return nil, nil, pushBig(frame, ip.world.Block().ChainID)
	case op == BASEFEE:
		return nil, nil, pushBig(frame, ip.world.Block().BaseFee)

	case op == BALANCE:
		return nil, nil, ip.balance(frame)
	case op == SELFBALANCE:
		return nil, nil, pushInt(frame, ip.accountOrNew(frame.Address).Balance)

	case op == MLOAD:
		return nil, nil, ip.mload(frame)
	case op == MSTORE:
		return nil, nil, ip.mstore(frame)
	case op == MSIZE:
		return nil, nil, pushUint64(frame, frame.Memory.Len())

	case op == SLOAD:
		return nil, nil, ip.sload(frame)
	case op == SSTORE:
		return nil, nil, ip.sstore(frame)

	case op == JUMP:
		return nil, nil, ip.jump(frame, dests)
	case op == JUMPI:
		return nil, nil, ip.jumpi(frame, dests)
	case op == JUMPDEST:
		frame.PC++
		return nil, nil, nil
	case op == PC:
		err := pushUint64(frame, frame.PC)
		frame.PC++
		return nil, nil, err
	case op == GAS:
		return nil, nil, pushUint64(frame, frame.Gas)

	case op == RETURN:
		data, err := ip.readMemRange(frame)
		if err != nil {
			return nil, nil, err
		}
		return nil, ip.finish(frame, data, false, nil), nil

	case op == REVERT:
		data, err := ip.readMemRange(frame)
		if err != nil {
			return nil, nil, err
		}
		return nil, ip.finish(frame, data, true, ErrExecutionReverted), nil

	case op.IsCall():
		return ip.call(frame, op)

	case op == CREATE || op == CREATE2:
		err := ip.create(frame, op)
		return nil, nil, err

	case op == SELFDESTRUCT:
		return nil, ip.selfdestruct(frame), nil

	default:
		if ok, n := op.IsPush(); ok {
			return nil, nil, ip.push(frame, n)
		}
		if ok, n := op.IsDup(); ok {
			err := frame.Stack.Dup(n)
			frame.PC++
			return nil, nil, err
		}
		if ok, n := op.IsSwap(); ok {
			err := frame.Stack.Swap(n)
			frame.PC++
			return nil, nil, err
		}
		if ok, n := op.IsLog(); ok {
			return nil, nil, ip.log(frame, n)
		}
		return nil, nil, ErrInvalidOpcode
	}
}

func advance(frame *Frame, err error) error {
	if err != nil {
		return err
	}
	frame.PC++
	return nil
}

func pushAddr(frame *Frame, a common.Address) error {
	var v uint256.Int
	v.SetBytes(a.Bytes())
	return advance(frame, frame.Stack.Push(&v))
}

func pushInt(frame *Frame, v *uint256.Int) error {
	return advance(frame, frame.Stack.Push(v))
}

func pushUint64(frame *Frame, v uint64) error {
	n := uint256.NewInt(v)
	return advance(frame, frame.Stack.Push(n))
}

func pushBig(frame *Frame, v interface{ Bytes() []byte }) error {
	var n uint256.Int
	if v != nil {
		n.SetBytes(v.Bytes())
	}
	return advance(frame, frame.Stack.Push(&n))
}

func (ip *interpreter) binOp(frame *Frame, op OpCode) error {
	b, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	a, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	var res uint256.Int
	switch op {
	case ADD:
		res.Add(&a, &b)
	case MUL:
		res.Mul(&a, &b)
	case SUB:
		res.Sub(&a, &b)
	case DIV:
		if b.IsZero() {
			res.Clear()
		} else {
			res.Div(&a, &b)
		}
	case MOD:
		if b.IsZero() {
			res.Clear()
		} else {
			res.Mod(&a, &b)
		}
	}
	return advance(frame, frame.Stack.Push(&res))
}

func (ip *interpreter) boolOp(frame *Frame, op OpCode) error {
	b, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	a, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	var res uint256.Int
	switch op {
	case LT:
		if a.Lt(&b) {
			res.SetOne()
		}
	case GT:
		if a.Gt(&b) {
			res.SetOne()
		}
	case EQ:
		if a.Eq(&b) {
			res.SetOne()
		}
	case AND:
		res.And(&a, &b)
	case OR:
		res.Or(&a, &b)
	case XOR:
		res.Xor(&a, &b)
	}
	return advance(frame, frame.Stack.Push(&res))
}

func (ip *interpreter) unOp(frame *Frame, op OpCode) error {
	a, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	var res uint256.Int
	switch op {
	case ISZERO:
		if a.IsZero() {
			res.SetOne()
		}
	case NOT:
		res.Not(&a)
	}
	return advance(frame, frame.Stack.Push(&res))
}

func (ip *interpreter) push(frame *Frame, n int) error {
	start := frame.PC + 1
	var buf [32]byte
	end := start + uint64(n)
	if end > uint64(len(frame.Code)) {
		end = uint64(len(frame.Code))
	}
	copy(buf[32-n:], frame.Code[start:end])
	var v uint256.Int
	v.SetBytes(buf[:])
	if err := frame.Stack.Push(&v); err != nil {
		return err
	}
	frame.PC += uint64(1 + n)
	return nil
}

func (ip *interpreter) calldataLoad(frame *Frame) error {
	offset, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	off := offset.Uint64()
	var buf [32]byte
	if off < uint64(len(frame.Input)) {
		end := off + 32
		if end > uint64(len(frame.Input)) {
			end = uint64(len(frame.Input))
		}
		copy(buf[:], frame.Input[off:end])
	}
	var v uint256.Int
	v.SetBytes(buf[:])
	return advance(frame, frame.Stack.Push(&v))
}

func (ip *interpreter) mload(frame *Frame) error {
	offset, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	data := frame.Memory.Get(offset.Uint64(), 32)
	var v uint256.Int
	v.SetBytes(data)
	return advance(frame, frame.Stack.Push(&v))
}

func (ip *interpreter) mstore(frame *Frame) error {
	offset, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	val, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	valBytes := val.Bytes32()
	frame.Memory.Set(offset.Uint64(), valBytes[:])
	frame.PC++
	return nil
}

func (ip *interpreter) accountOrNew(addr common.Address) *state.Account {
	if acc := ip.world.GetAccount(addr); acc != nil {
		return acc
	}
	return state.NewAccount(addr)
}

func (ip *interpreter) sload(frame *Frame) error {
	key, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	acc := ip.accountOrNew(frame.Address)
	keyHash := common.Hash(key.Bytes32())
	val, _ := acc.GetStorage(keyHash)
	var v uint256.Int
	v.SetBytes(val.Bytes())
	return advance(frame, frame.Stack.Push(&v))
}

func (ip *interpreter) sstore(frame *Frame) error {
	if frame.Static {
		return ErrWriteProtection
	}
	key, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	val, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	acc := ip.accountOrNew(frame.Address).Clone()
	keyBytes := key.Bytes32()
	valBytes := val.Bytes32()
	acc.SetStorage(common.Hash(keyBytes), common.Hash(valBytes))
	ip.world.SetAccount(acc)
	frame.PC++
	return nil
}

func (ip *interpreter) balance(frame *Frame) error {
	a, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	addr := common.BytesToAddress(a.Bytes())
	acc := ip.accountOrNew(addr)
	return advance(frame, frame.Stack.Push(acc.Balance))
}

func (ip *interpreter) jump(frame *Frame, dests map[uint64]bool) error {
	dest, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	d := dest.Uint64()
	if !dests[d] {
		return ErrInvalidJump
	}
	frame.PC = d
	return nil
}

func (ip *interpreter) jumpi(frame *Frame, dests map[uint64]bool) error {
	dest, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	cond, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	if cond.IsZero() {
		frame.PC++
		return nil
	}
	d := dest.Uint64()
	if !dests[d] {
		return ErrInvalidJump
	}
	frame.PC = d
	return nil
}

func (ip *interpreter) readMemRange(frame *Frame) ([]byte, error) {
	offset, err := frame.Stack.Pop()
	if err != nil {
		return nil, err
	}
	size, err := frame.Stack.Pop()
	if err != nil {
		return nil, err
	}
	return frame.Memory.Get(offset.Uint64(), size.Uint64()), nil
}

func (ip *interpreter) log(frame *Frame, topicCount int) error {
	if frame.Static {
		return ErrWriteProtection
	}
	data, err := ip.readMemRange(frame)
	if err != nil {
		return err
	}
	topics := make([]common.Hash, topicCount)
	for i := 0; i < topicCount; i++ {
		t, err := frame.Stack.Pop()
		if err != nil {
			return err
		}
		topics[i] = common.Hash(t.Bytes32())
	}
	ip.logs = append(ip.logs, Log{Address: frame.Address, Topics: topics, Data: data})
	frame.PC++
	return nil
}

func (ip *interpreter) selfdestruct(frame *Frame) *TxOutcome {
	if frame.Static {
		return ip.finish(frame, nil, true, ErrWriteProtection)
	}
	beneficiary, err := frame.Stack.Pop()
	if err != nil {
		return ip.finish(frame, nil, true, err)
	}
	acc := ip.accountOrNew(frame.Address)
	ben := ip.accountOrNew(common.BytesToAddress(beneficiary.Bytes())).Clone()
	ben.Balance = new(uint256.Int).Add(ben.Balance, acc.Balance)
	ip.world.SetAccount(ben)
	ip.world.DeleteAccount(frame.Address)
	return ip.finish(frame, nil, false, nil)
}

func (ip *interpreter) finish(frame *Frame, data []byte, reverted bool, err error) *TxOutcome {
	out := &TxOutcome{
		Success:    !reverted,
		ReturnData: data,
		GasUsed:    frame.GasLimit - frame.Gas,
		Logs:       ip.logs,
		Err:        err,
	}
	if reverted {
		out.RevertData = data
	}
	return out
}
