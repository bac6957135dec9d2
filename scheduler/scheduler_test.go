package scheduler

import (
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuzzland/ityfuzz/state"
)

func TestStateScheduler_SelectsAmongAdmittedStates(t *testing.T) {
	s := NewStateScheduler(1)
	h1 := state.Hash(common.HexToHash("0x1"))
	h2 := state.Hash(common.HexToHash("0x2"))
	s.Admit(h1, 1.0)
	s.Admit(h2, 1.0)

	selected, err := s.Select()
	require.NoError(t, err)
	assert.Contains(t, []state.Hash{h1, h2}, selected)
}

func TestStateScheduler_DecaysAfterConsecutiveNonNovelChildren(t *testing.T) {
	s := NewStateScheduler(2)
	s.DecayThreshold = 2
	h := state.Hash(common.HexToHash("0x1"))
	s.Admit(h, 1.0)

	before := s.weightLocked(s.records[h])
	for i := 0; i < 5; i++ {
		s.RecordChildOutcome(h, false)
	}
	after := s.weightLocked(s.records[h])

	assert.Less(t, after, before, "weight should decay after repeated non-novel children")
}

func TestStateScheduler_NovelChildResetsDecayCounter(t *testing.T) {
	s := NewStateScheduler(3)
	s.DecayThreshold = 2
	h := state.Hash(common.HexToHash("0x1"))
	s.Admit(h, 1.0)

	for i := 0; i < 5; i++ {
		s.RecordChildOutcome(h, false)
	}
	s.RecordChildOutcome(h, true)

	assert.Equal(t, 0, s.records[h].consecutiveNonNovel)
}

func TestStateScheduler_EmptySchedulerReturnsErrNoChoices(t *testing.T) {
	s := NewStateScheduler(4)
	_, err := s.Select()
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestInputScheduler_RecordRewardBiasesSelection(t *testing.T) {
	s := NewInputScheduler(5)
	hot := TargetSelector{Target: common.HexToAddress("0x1"), Selector: [4]byte{1, 1, 1, 1}}
	cold := TargetSelector{Target: common.HexToAddress("0x2"), Selector: [4]byte{2, 2, 2, 2}}

	s.RecordReward(hot, 50)
	s.RecordReward(cold, 0)

	counts := map[TargetSelector]int{}
	for i := 0; i < 200; i++ {
		pick, err := s.Select()
		require.NoError(t, err)
		counts[pick]++
	}
	assert.Greater(t, counts[hot], counts[cold])
}

func TestInputScheduler_FavouritesAccumulatePerArm(t *testing.T) {
	s := NewInputScheduler(6)
	ts := TargetSelector{Target: common.HexToAddress("0x1"), Selector: [4]byte{1, 2, 3, 4}}

	s.RecordFavourite(ts, *uint256.NewInt(1))
	s.RecordFavourite(ts, *uint256.NewInt(2))

	favourites := s.Favourites(ts)
	require.Len(t, favourites, 2)
}

func TestResumeCandidates_FiltersByExternalTarget(t *testing.T) {
	block := state.DefaultBlockEnv()
	root := state.NewGenesisState(block)

	target := common.HexToAddress("0xdead")
	other := common.HexToAddress("0xbeef")

	s := root.Extend(block)
	require.True(t, s.PushPause(&state.PausedFrame{ID: 1, ExternalTarget: target}))
	require.True(t, s.PushPause(&state.PausedFrame{ID: 2, ExternalTarget: other}))

	candidates := ResumeCandidates(s, target)
	require.Len(t, candidates, 1)
	assert.Equal(t, uint64(1), candidates[0].ID)
}
