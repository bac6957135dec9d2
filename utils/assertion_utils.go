package utils

import (
	"bytes"
	"math/big"
)

// Solidity panic codes, per the language's ABI spec for the built-in
// Panic(uint256) error (selector 0x4e487b71).
const (
	PanicCodeAssertFailed                  uint64 = 0x01
	PanicCodeArithmeticUnderOverflow       uint64 = 0x11
	PanicCodeDivideByZero                  uint64 = 0x12
	PanicCodeEnumTypeConversionOutOfBounds uint64 = 0x21
	PanicCodeIncorrectStorageAccess        uint64 = 0x22
	PanicCodePopEmptyArray                 uint64 = 0x31
	PanicCodeOutOfBoundsArrayAccess        uint64 = 0x32
	PanicCodeAllocateTooMuchMemory         uint64 = 0x41
	PanicCodeCallUninitializedVariable     uint64 = 0x51
)

var panicSelector = []byte{0x4e, 0x48, 0x7b, 0x71}

// DecodeSolidityPanicCode recognizes Solidity's Panic(uint256) revert encoding
// (selector 0x4e487b71 followed by a 32-byte panic code) in raw revert return
// data. ok is false for any other revert shape (a require() message, a custom
// error, or a raw revert with no reason).
func DecodeSolidityPanicCode(revertData []byte) (code *big.Int, ok bool) {
	if len(revertData) != 36 || !bytes.Equal(revertData[:4], panicSelector) {
		return nil, false
	}
	return new(big.Int).SetBytes(revertData[4:]), true
}

// HasEncounteredAssertionFailure checks if the provided panic code corresponds to an assertion failure.
// It returns true if an assertion failure is encountered, and false otherwise.
func HasEncounteredAssertionFailure(panicCode *big.Int) bool {
	panicCodes := map[uint64]bool{
		PanicCodeAssertFailed:                  true,
		PanicCodeArithmeticUnderOverflow:       true,
		PanicCodeDivideByZero:                  true,
		PanicCodeEnumTypeConversionOutOfBounds: true,
		PanicCodeIncorrectStorageAccess:        true,
		PanicCodePopEmptyArray:                 true,
		PanicCodeOutOfBoundsArrayAccess:        true,
		PanicCodeAllocateTooMuchMemory:         true,
		PanicCodeCallUninitializedVariable:     true,
	}

	return panicCode != nil && panicCodes[panicCode.Uint64()]
}

// IsPanicCodeIncluded checks if the given panic code is included in the config byte array.
// It returns true if the panic code exists in the config, otherwise false.
func IsPanicCodeIncluded(panicCode byte, configBytes []byte) bool {
	for _, configPanicCode := range configBytes {
		if panicCode == configPanicCode {
			return true
		}
	}
	return false
}
