package fuzzing

import (
	"encoding/hex"
	"strings"

	"github.com/crytic/medusa-geth/common"
	"github.com/pkg/errors"

	"github.com/fuzzland/ityfuzz/artifact"
	"github.com/fuzzland/ityfuzz/config"
	"github.com/fuzzland/ityfuzz/state"
	"github.com/fuzzland/ityfuzz/vm"
)

// DeployedContract pairs a loaded artifact.Contract with the address it was
// installed at for this campaign, resolved once at startup.
type DeployedContract struct {
	Contract *artifact.Contract
	Address  common.Address
}

// deploymentOrder returns the order contracts should be deployed in: cfg.DeploymentOrder
// when given (by contract name; a contract carrying its own PinnedAddress is ordered
// like any other and still deployed at its pinned address), else every contract in the
// order LoadDirectory already returned them in (sorted by name).
func deploymentOrder(contracts []*artifact.Contract, cfg config.FuzzingConfig) ([]*artifact.Contract, error) {
	if len(cfg.DeploymentOrder) == 0 {
		return contracts, nil
	}

	byName := make(map[string]*artifact.Contract, len(contracts))
	for _, c := range contracts {
		byName[c.Name] = c
	}

	ordered := make([]*artifact.Contract, 0, len(cfg.DeploymentOrder))
	placed := make(map[string]bool, len(cfg.DeploymentOrder))
	for _, name := range cfg.DeploymentOrder {
		c, ok := byName[name]
		if !ok {
			return nil, errors.Errorf("deploymentOrder references unknown contract %q", name)
		}
		ordered = append(ordered, c)
		placed[name] = true
	}
	// Any contract not explicitly named still gets deployed, after the named ones,
	// in their original load order, so a partial deploymentOrder never silently
	// drops a contract from the campaign.
	for _, c := range contracts {
		if !placed[c.Name] {
			ordered = append(ordered, c)
		}
	}
	return ordered, nil
}

// constructorArgsFor decodes the raw ABI-encoded constructor argument hex blob
// configured for name, or returns nil if none was configured.
func constructorArgsFor(name string, cfg config.FuzzingConfig) ([]byte, error) {
	raw, ok := cfg.ConstructorArgs[name]
	if !ok || raw == "" {
		return nil, nil
	}
	raw = strings.TrimPrefix(raw, "0x")
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding constructor args for %s", name)
	}
	return decoded, nil
}

// deployAll installs every contract in order against genesis, advancing the state
// one extension per deployment, and returns the resulting state plus the resolved
// deployment addresses. A deployment failure is a configuration error (exit code 2):
// a campaign that cannot stand up its own contracts under test has nothing to fuzz.
func deployAll(host vm.Host, genesis *state.VMState, contracts []*artifact.Contract, cfg config.FuzzingConfig, deployer common.Address) (*state.VMState, []DeployedContract, error) {
	ordered, err := deploymentOrder(contracts, cfg)
	if err != nil {
		return nil, nil, err
	}

	current := genesis
	deployed := make([]DeployedContract, 0, len(ordered))
	for _, c := range ordered {
		args, err := constructorArgsFor(c.Name, cfg)
		if err != nil {
			return nil, nil, err
		}

		next, addr, failure := host.Deploy(current, c.InitBytecode, args, deployer, c.PinnedAddress)
		if failure != nil {
			return nil, nil, errors.Wrapf(failure, "deploying contract %s", c.Name)
		}
		current = next
		deployed = append(deployed, DeployedContract{Contract: c, Address: addr})
	}
	return current, deployed, nil
}
