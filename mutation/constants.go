package mutation

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// ConstantsPool harvests interesting 256-bit words from three sources named by spec
// §4.5: contract bytecode (PUSH immediates), previous comparison operands
// (feedback's ComparisonTracker favourites), and prior-seen storage values. A
// mutator draws replacement values from here in preference to pure randomness,
// grounded on the teacher's txGeneratorMutation.baseIntegers pool
// (fuzzing/tx_generator_mutation.go), generalized from *big.Int to *uint256.Int to
// match the EVM word width this fuzzer operates on directly.
type ConstantsPool struct {
	words     []uint256.Int
	addresses []common.Address
	seen      map[uint256.Int]bool
}

// NewConstantsPool returns an empty pool seeded with the handful of values every
// EVM contract's bytecode implicitly contains (0, 1, max uint256) regardless of what
// is harvested later.
func NewConstantsPool() *ConstantsPool {
	p := &ConstantsPool{seen: make(map[uint256.Int]bool)}
	p.AddWord(*uint256.NewInt(0))
	p.AddWord(*uint256.NewInt(1))
	p.AddWord(*new(uint256.Int).Not(uint256.NewInt(0)))
	return p
}

// AddWord records a 256-bit word if it has not already been seen.
func (p *ConstantsPool) AddWord(v uint256.Int) {
	if p.seen[v] {
		return
	}
	p.seen[v] = true
	p.words = append(p.words, v)
}

// AddAddress records an address observed as a caller, target, or ABI argument, so
// the caller-swap and target mutators have real seen-addresses to draw from beyond
// the statically configured attacker set.
func (p *ConstantsPool) AddAddress(addr common.Address) {
	for _, a := range p.addresses {
		if a == addr {
			return
		}
	}
	p.addresses = append(p.addresses, addr)
}

// HarvestBytecode scans code for PUSH1..PUSH32 immediates and records each as a
// constant, the same harvesting spec §4.5 names ("harvested from contract bytecode").
func (p *ConstantsPool) HarvestBytecode(code []byte) {
	const push1 = 0x60
	const push32 = 0x7f
	for i := 0; i < len(code); {
		op := code[i]
		if op >= push1 && op <= push32 {
			n := int(op-push1) + 1
			if i+1+n > len(code) {
				break
			}
			var v uint256.Int
			v.SetBytes(code[i+1 : i+1+n])
			p.AddWord(v)
			i += 1 + n
			continue
		}
		i++
	}
}

// Words returns every harvested word, including the seeded basic cases.
func (p *ConstantsPool) Words() []uint256.Int {
	return p.words
}

// Addresses returns every harvested address.
func (p *ConstantsPool) Addresses() []common.Address {
	return p.addresses
}
