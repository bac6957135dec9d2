package utils

import (
	"encoding/hex"
	"strings"

	"github.com/crytic/medusa-geth/common"
)

// HexStringToAddress converts a hex string (with or without the "0x" prefix) to a common.Address. Returns the parsed
// address, or an error if one occurs during conversion.
func HexStringToAddress(s string) (*common.Address, error) {
	// Remove the 0x prefix and decode the hex string into a byte array
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, err
	}

	// Parse the bytes as an address and return them.
	address := common.Address{}
	address.SetBytes(b)
	return &address, nil
}

// HexStringsToAddresses converts a slice of hex strings to common.Address values,
// failing on the first malformed entry.
func HexStringsToAddresses(strs []string) ([]common.Address, error) {
	addresses := make([]common.Address, len(strs))
	for i, s := range strs {
		addr, err := HexStringToAddress(s)
		if err != nil {
			return nil, err
		}
		addresses[i] = *addr
	}
	return addresses, nil
}
