package fuzzing

import (
	"strings"

	"github.com/crytic/medusa-geth/common"
	"github.com/pkg/errors"

	"github.com/fuzzland/ityfuzz/config"
	"github.com/fuzzland/ityfuzz/oracle"
	"github.com/fuzzland/ityfuzz/scheduler"
)

// resolveTargets expands cfg.Fuzzing.Targets — each entry either a hex contract
// address or a deployed contract's name, per a glob-or-CSV list — against the set
// of contracts actually deployed this run, and returns one scheduler.TargetSelector
// per non-view/pure exported method on each resolved contract. Targets naming
// addresses is the shape spec names directly ("glob-or-csv of addresses"); naming a
// contract instead is this campaign's extension to make offline/artifact-mode
// targeting practical, since an artifact directory has no addresses until this very
// deployment step assigns them.
func resolveTargets(cfg config.FuzzingConfig, deployed []DeployedContract) ([]scheduler.TargetSelector, []oracle.ContractInfo, error) {
	byAddress := make(map[common.Address]DeployedContract, len(deployed))
	byName := make(map[string]DeployedContract, len(deployed))
	for _, d := range deployed {
		byAddress[d.Address] = d
		byName[d.Contract.Name] = d
	}

	matches := func(entry string) []DeployedContract {
		entry = strings.TrimSpace(entry)
		if entry == "*" {
			return deployed
		}
		if strings.HasPrefix(entry, "0x") || strings.HasPrefix(entry, "0X") {
			if d, ok := byAddress[common.HexToAddress(entry)]; ok {
				return []DeployedContract{d}
			}
			return nil
		}
		if d, ok := byName[entry]; ok {
			return []DeployedContract{d}
		}
		return nil
	}

	seen := make(map[common.Address]bool)
	var resolved []DeployedContract
	for _, raw := range cfg.Targets {
		for _, entry := range strings.Split(raw, ",") {
			for _, d := range matches(entry) {
				if seen[d.Address] {
					continue
				}
				seen[d.Address] = true
				resolved = append(resolved, d)
			}
		}
	}
	if len(resolved) == 0 {
		return nil, nil, errors.Errorf("no configured target resolved to a deployed contract")
	}

	var selectors []scheduler.TargetSelector
	var infos []oracle.ContractInfo
	for _, d := range resolved {
		// Methods records every exported function (including view/pure ones, since
		// the invariant oracle's echidna_/invariant_-prefixed probes are themselves
		// view functions); only non-view/pure methods are added to the fuzzed
		// selector set below.
		methods := make(map[[4]byte]string)
		for _, m := range d.Contract.ABI.Methods {
			var sel [4]byte
			copy(sel[:], m.ID)
			methods[sel] = m.Name
			if m.StateMutability == "view" || m.StateMutability == "pure" {
				continue
			}
			selectors = append(selectors, scheduler.TargetSelector{Target: d.Address, Selector: sel})
		}
		infos = append(infos, oracle.ContractInfo{Address: d.Address, Name: d.Contract.Name, Methods: methods})
	}
	return selectors, infos, nil
}
