package onchain

import (
	"context"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/crytic/medusa-geth/rpc"
	"github.com/pkg/errors"
)

// RPCAdapter is the concrete Adapter backed by a live JSON-RPC endpoint, grounded on
// the teacher's chain/state/rpc.ClientPool (a pooled *rpc.Client dialer retrying
// transient failures) narrowed here to a single client, since the Loader already
// serializes fetches per address through its own blacklist/cache bookkeeping and
// gains nothing from pool-level request coalescing.
type RPCAdapter struct {
	client *rpc.Client
}

// NewRPCAdapter dials endpoint (an HTTP or WebSocket JSON-RPC URL) and returns an
// Adapter issuing eth_getCode/eth_getStorageAt calls against it.
func NewRPCAdapter(ctx context.Context, endpoint string) (*RPCAdapter, error) {
	client, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "onchain: dialing rpc endpoint")
	}
	return &RPCAdapter{client: client}, nil
}

// CodeAt fetches a contract's deployed bytecode at blockNumber via eth_getCode.
func (a *RPCAdapter) CodeAt(ctx context.Context, address common.Address, blockNumber uint64) ([]byte, error) {
	var result hexutil.Bytes
	if err := a.client.CallContext(ctx, &result, "eth_getCode", address, hexutil.Uint64(blockNumber)); err != nil {
		return nil, errors.Wrap(err, "onchain: eth_getCode")
	}
	return result, nil
}

// StorageAt fetches a single storage slot at blockNumber via eth_getStorageAt.
func (a *RPCAdapter) StorageAt(ctx context.Context, address common.Address, slot common.Hash, blockNumber uint64) (common.Hash, error) {
	var result common.Hash
	if err := a.client.CallContext(ctx, &result, "eth_getStorageAt", address, slot, hexutil.Uint64(blockNumber)); err != nil {
		return common.Hash{}, errors.Wrap(err, "onchain: eth_getStorageAt")
	}
	return result, nil
}

// ABIAt has no standard JSON-RPC method (ABIs are off-chain metadata); it always
// returns an error, leaving the loader to blacklist the address for ABI purposes
// while code/storage fetches continue to work normally. A real deployment wanting
// ABI recovery from a live chain would plug in a block-explorer-backed Adapter
// instead, which is out of scope here (spec §1 excludes a network-facing
// compilation/verification pipeline).
func (a *RPCAdapter) ABIAt(ctx context.Context, address common.Address, blockNumber uint64) ([]byte, error) {
	return nil, errors.New("onchain: RPCAdapter does not support ABI recovery")
}

// Close releases the underlying RPC client connection.
func (a *RPCAdapter) Close() {
	a.client.Close()
}
