package feedback

import (
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func TestPipeline_UnionAdmission(t *testing.T) {
	p := NewPipeline()
	codeHash := common.Hash{1}

	v1 := p.Evaluate(Observations{Edges: []EdgeObservation{{CodeHash: codeHash, From: 0, To: 5}}})
	assert.True(t, v1.Admit())
	assert.True(t, v1.EdgeNovelty)

	// Same edge again: no novelty from coverage, and nothing else fired either.
	v2 := p.Evaluate(Observations{Edges: []EdgeObservation{{CodeHash: codeHash, From: 0, To: 5}}})
	assert.False(t, v2.Admit())
}

func TestComparisonTracker_StrictImprovementOnly(t *testing.T) {
	c := NewComparisonTracker()
	codeHash := common.Hash{2}

	a := uint256.NewInt(0)
	far := uint256.NewInt(0xffffffff)
	assert.True(t, c.Record(codeHash, 10, a, far))

	closer := uint256.NewInt(1)
	assert.True(t, c.Record(codeHash, 10, a, closer))

	// Same distance again must not count as progress.
	assert.False(t, c.Record(codeHash, 10, a, closer))

	fav, ok := c.Favourite(codeHash, 10)
	assert.True(t, ok)
	assert.Equal(t, *closer, fav)
}

func TestDataflowTracker_NoveltyOncePerSlot(t *testing.T) {
	d := NewDataflowTracker()
	var addr common.Address
	addr[19] = 9
	slot := common.Hash{7}

	assert.True(t, d.RecordTaintedWrite(addr, slot))
	assert.False(t, d.RecordTaintedWrite(addr, slot))
}

func TestCoverageMap_MergeAcrossWorkers(t *testing.T) {
	shared := NewCoverageMap()
	local := NewCoverageMap()
	codeHash := common.Hash{3}

	local.RecordEdge(codeHash, 1, 2)
	local.RecordEdge(codeHash, 2, 3)

	changed := shared.Merge(local)
	assert.True(t, changed)
	assert.Equal(t, 2, shared.EdgeCount())

	// Merging again contributes nothing new.
	assert.False(t, shared.Merge(local))
}
