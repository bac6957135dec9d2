package onchain

import (
	"context"
	"encoding/binary"

	"github.com/crytic/medusa-geth/common"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

const (
	bucketCode    = "code"
	bucketStorage = "storage"
	bucketABI     = "abi"
)

// codeKey builds the disk cache key for a code fetch: (chainID, blockHeight,
// address), content-addressed by the fetch coordinates rather than the code itself
// so a re-fetch of the same address at the same pinned height is always a cache hit
// even before the code is known.
func (l *Loader) codeKey(address common.Address) []byte {
	return l.key(address, common.Hash{})
}

func (l *Loader) storageKey(address common.Address, slot common.Hash) []byte {
	return l.key(address, slot)
}

func (l *Loader) key(address common.Address, slot common.Hash) []byte {
	buf := make([]byte, 8+8+20+32)
	binary.BigEndian.PutUint64(buf[0:8], l.chainID)
	binary.BigEndian.PutUint64(buf[8:16], l.blockHeight)
	copy(buf[16:36], address.Bytes())
	copy(buf[36:68], slot.Bytes())
	return buf
}

// CodeAt returns the bytecode at address, fetching through the adapter and caching
// to disk on first access ("read-through" per spec §4.9).
func (l *Loader) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	if l.mode != FetchOneByOne {
		return nil, ErrFetchModeUnimplemented
	}
	if l.Blacklisted(address) {
		return nil, nil
	}

	key := l.codeKey(address)
	var cached []byte
	err := l.store.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(bucketCode)).Get(key); v != nil {
			cached = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "onchain: reading code cache")
	}
	if cached != nil {
		return cached, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, DefaultFetchTimeout)
	defer cancel()
	code, err := l.adapter.CodeAt(fetchCtx, address, l.blockHeight)
	if err != nil {
		l.logger.Debug().Err(err).Stringer("address", address).Msg("code fetch failed; blacklisting")
		l.blacklist[address] = true
		return nil, nil
	}

	if err := l.store.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketCode)).Put(key, code)
	}); err != nil {
		return nil, errors.Wrap(err, "onchain: writing code cache")
	}
	return code, nil
}

// StorageAt returns the storage slot's value, fetching and caching on first access.
func (l *Loader) StorageAt(ctx context.Context, address common.Address, slot common.Hash) (common.Hash, bool, error) {
	if l.mode != FetchOneByOne {
		return common.Hash{}, false, ErrFetchModeUnimplemented
	}
	if l.Blacklisted(address) {
		return common.Hash{}, false, nil
	}

	key := l.storageKey(address, slot)
	var cached []byte
	err := l.store.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(bucketStorage)).Get(key); v != nil {
			cached = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return common.Hash{}, false, errors.Wrap(err, "onchain: reading storage cache")
	}
	if cached != nil {
		return common.BytesToHash(cached), true, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, DefaultFetchTimeout)
	defer cancel()
	value, err := l.adapter.StorageAt(fetchCtx, address, slot, l.blockHeight)
	if err != nil {
		l.logger.Debug().Err(err).Stringer("address", address).Msg("storage fetch failed; leaving unknown")
		return common.Hash{}, false, nil
	}

	if err := l.store.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketStorage)).Put(key, value.Bytes())
	}); err != nil {
		return common.Hash{}, false, errors.Wrap(err, "onchain: writing storage cache")
	}
	return value, true, nil
}

// ABIAt returns the raw ABI JSON known for address, fetching and caching on first
// access. A permanent fetch failure blacklists the address.
func (l *Loader) ABIAt(ctx context.Context, address common.Address) ([]byte, error) {
	if l.mode != FetchOneByOne {
		return nil, ErrFetchModeUnimplemented
	}
	if l.Blacklisted(address) {
		return nil, nil
	}

	key := l.codeKey(address)
	var cached []byte
	err := l.store.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(bucketABI)).Get(key); v != nil {
			cached = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "onchain: reading abi cache")
	}
	if cached != nil {
		return cached, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, DefaultFetchTimeout)
	defer cancel()
	abi, err := l.adapter.ABIAt(fetchCtx, address, l.blockHeight)
	if err != nil {
		l.logger.Debug().Err(err).Stringer("address", address).Msg("abi fetch failed; blacklisting")
		l.blacklist[address] = true
		return nil, nil
	}

	if err := l.store.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketABI)).Put(key, abi)
	}); err != nil {
		return nil, errors.Wrap(err, "onchain: writing abi cache")
	}
	return abi, nil
}
