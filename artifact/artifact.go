// Package artifact loads offline compiled-contract artifacts — `<name>.bin`/
// `<name>.abi` pairs and optional combined-JSON — from a directory, per the
// artifact format spec §6 defines. It never invokes a compiler itself: unlike the
// teacher's compilation package (which wraps solc/crytic-compile), this package
// only ever reads pre-compiled output handed to it by the campaign operator.
package artifact

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/crytic/medusa-geth/accounts/abi"
	"github.com/crytic/medusa-geth/common"
	"github.com/pkg/errors"
)

// Contract is one deployable unit loaded from an artifact directory.
type Contract struct {
	Name string
	ABI  abi.ABI

	InitBytecode    []byte
	RuntimeBytecode []byte

	// SourceMapRuntime is populated only when the contract was read from
	// combined-JSON, enabling source-map-aware coverage reporting.
	SourceMapRuntime string

	// PinnedAddress is set when a sibling `<name>.address` file pinned a
	// deployment address; otherwise the deployer assigns one by deterministic
	// deployment order, per spec §6's artifact format.
	PinnedAddress *common.Address
}

// DeploymentBytecode returns the bytes to install for this contract's
// constructor: the init bytecode followed by the caller-supplied,
// already-ABI-encoded constructor argument bytes (the --constructor-args flag's
// payload is passed through verbatim, never re-encoded here).
func (c *Contract) DeploymentBytecode(constructorArgs []byte) []byte {
	out := make([]byte, 0, len(c.InitBytecode)+len(constructorArgs))
	out = append(out, c.InitBytecode...)
	out = append(out, constructorArgs...)
	return out
}

// LoadDirectory reads every `<name>.bin`/`<name>.abi` pair and any combined-JSON
// file found directly under dir, returning one Contract per artifact sorted by
// name for deterministic deployment order. compilerConstraint, if non-nil, is
// checked against combined-JSON's reported compiler version; a directory with no
// combined-JSON file is never constrained by it.
func LoadDirectory(dir string, compilerConstraint *semver.Constraints) ([]*Contract, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading artifact directory %s", dir)
	}

	names := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext == ".bin" {
			names[strings.TrimSuffix(e.Name(), ext)] = true
		}
	}

	var contracts []*Contract
	for name := range names {
		c, err := loadBinABIPair(dir, name)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}

	if combinedPath := findCombinedJSON(dir); combinedPath != "" {
		fromCombined, err := loadCombinedJSON(combinedPath, compilerConstraint)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, fromCombined...)
	}

	sort.Slice(contracts, func(i, j int) bool { return contracts[i].Name < contracts[j].Name })
	return contracts, nil
}

func loadBinABIPair(dir, name string) (*Contract, error) {
	binPath := filepath.Join(dir, name+".bin")
	abiPath := filepath.Join(dir, name+".abi")

	binHex, err := os.ReadFile(binPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", binPath)
	}
	abiBytes, err := os.ReadFile(abiPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", abiPath)
	}

	code, err := decodeHex(binHex)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding bytecode for %s", name)
	}

	parsedABI, err := abi.JSON(bytes.NewReader(abiBytes))
	if err != nil {
		return nil, errors.Wrapf(err, "parsing ABI for %s", name)
	}

	c := &Contract{Name: name, ABI: parsedABI, InitBytecode: code}

	if addrRaw, err := os.ReadFile(filepath.Join(dir, name+".address")); err == nil {
		addr := common.HexToAddress(strings.TrimSpace(string(addrRaw)))
		c.PinnedAddress = &addr
	}

	return c, nil
}

func decodeHex(b []byte) ([]byte, error) {
	s := strings.TrimSpace(string(b))
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

// combinedJSONDoc mirrors the subset of solc's `--combined-json bin-runtime,
// srcmap-runtime` output shape spec §6 names.
type combinedJSONDoc struct {
	Contracts map[string]struct {
		Bin           string          `json:"bin"`
		BinRuntime    string          `json:"bin-runtime"`
		ABI           json.RawMessage `json:"abi"`
		SrcMapRuntime string          `json:"srcmap-runtime"`
	} `json:"contracts"`
	Version string `json:"version"`
}

func findCombinedJSON(dir string) string {
	if _, err := os.Stat(filepath.Join(dir, "combined.json")); err == nil {
		return filepath.Join(dir, "combined.json")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			return filepath.Join(dir, e.Name())
		}
	}
	return ""
}

func loadCombinedJSON(path string, compilerConstraint *semver.Constraints) ([]*Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading combined-json %s", path)
	}

	var doc combinedJSONDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "parsing combined-json %s", path)
	}

	if compilerConstraint != nil && doc.Version != "" {
		version, err := parseSolcVersion(doc.Version)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing compiler version %q", doc.Version)
		}
		if !compilerConstraint.Check(version) {
			return nil, errors.Errorf("combined-json compiler version %s does not satisfy constraint %s", doc.Version, compilerConstraint)
		}
	}

	var contracts []*Contract
	for qualifiedName, entry := range doc.Contracts {
		name := qualifiedName
		if idx := strings.LastIndex(qualifiedName, ":"); idx >= 0 {
			name = qualifiedName[idx+1:]
		}

		initCode, err := decodeHex([]byte(entry.Bin))
		if err != nil {
			return nil, errors.Wrapf(err, "decoding bin for %s", name)
		}
		runtimeCode, err := decodeHex([]byte(entry.BinRuntime))
		if err != nil {
			return nil, errors.Wrapf(err, "decoding bin-runtime for %s", name)
		}

		parsedABI, err := abi.JSON(bytes.NewReader(unwrapABI(entry.ABI)))
		if err != nil {
			return nil, errors.Wrapf(err, "parsing abi for %s", name)
		}

		contracts = append(contracts, &Contract{
			Name:             name,
			ABI:              parsedABI,
			InitBytecode:     initCode,
			RuntimeBytecode:  runtimeCode,
			SourceMapRuntime: entry.SrcMapRuntime,
		})
	}
	return contracts, nil
}

// unwrapABI accepts either an inline JSON array (as the standalone `<name>.abi`
// files use) or solc combined-json's string-escaped encoding of the same array,
// returning raw array bytes either way.
func unwrapABI(raw json.RawMessage) []byte {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return []byte(asString)
	}
	return raw
}

// parseSolcVersion strips solc's trailing build-commit metadata (e.g.
// "0.8.19+commit.7dd6d404.Linux.g++") down to the leading dotted-numeric version
// semver.NewVersion accepts; solc's own metadata tag uses characters ("+", "g++")
// that are not valid semver build-metadata identifiers, so it cannot be parsed
// as-is.
func parseSolcVersion(raw string) (*semver.Version, error) {
	if idx := strings.Index(raw, "+"); idx >= 0 {
		raw = raw[:idx]
	}
	return semver.NewVersion(raw)
}
