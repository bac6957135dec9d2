package middleware

import (
	"math/big"

	"github.com/crytic/medusa-geth/common"

	"github.com/fuzzland/ityfuzz/vm/evm"
)

// erc20 selectors this middleware recognizes, keccak256("transfer(address,uint256)")
// etc truncated to 4 bytes — the standard ABI selectors, hardcoded since they are a
// protocol constant, not something any contract under test can redefine.
var (
	selectorTransfer     = [4]byte{0xa9, 0x05, 0x9c, 0xbb}
	selectorTransferFrom = [4]byte{0x23, 0xb8, 0x72, 0xdd}
	selectorBalanceOf    = [4]byte{0x70, 0xa0, 0x82, 0x31}
)

// Flashloan debits and credits a state.FlashloanLedger when it observes a CALL whose
// calldata matches the ERC-20 transfer or transferFrom selector. The token is the
// call's target; the sender (the call's From address for transfer, the encoded from
// argument for transferFrom) is debited and the encoded recipient is credited.
// balanceOf calls are recognized but have no ledger effect.
type Flashloan struct {
	evm.BaseMiddleware
}

// NewFlashloan returns a Flashloan middleware. It carries no shared state of its own:
// every ledger it touches lives on the state.VMState passed through CallInfo.World,
// consistent with the snapshot model's "no process-global singleton" design note.
func NewFlashloan() *Flashloan {
	return &Flashloan{}
}

func (f *Flashloan) Name() string { return "flashloan" }

func (f *Flashloan) OnEnter(info *evm.CallInfo) {
	if len(info.Input) < 4 || info.World == nil {
		return
	}
	var sel [4]byte
	copy(sel[:], info.Input[:4])

	ledger := info.World.Flashloan()

	switch sel {
	case selectorTransfer:
		if len(info.Input) < 4+64 {
			return
		}
		to := common.BytesToAddress(info.Input[4+12 : 4+32])
		amount := new(big.Int).SetBytes(info.Input[4+32 : 4+64])
		ledger.Debit(info.To, info.From, amount)
		ledger.Credit(info.To, to, amount)

	case selectorTransferFrom:
		if len(info.Input) < 4+96 {
			return
		}
		from := common.BytesToAddress(info.Input[4+12 : 4+32])
		to := common.BytesToAddress(info.Input[4+44 : 4+64])
		amount := new(big.Int).SetBytes(info.Input[4+64 : 4+96])
		ledger.Debit(info.To, from, amount)
		ledger.Credit(info.To, to, amount)

	case selectorBalanceOf:
		// Read-only: no ledger effect.
	}
}
