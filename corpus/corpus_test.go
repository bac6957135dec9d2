package corpus

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fuzzland/ityfuzz/mutation"
	"github.com/fuzzland/ityfuzz/state"
)

func newTestCorpus(t *testing.T) *Corpus {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "corpus.db")
	c, err := Open(dbPath, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCorpus_AddAndEntries(t *testing.T) {
	c := newTestCorpus(t)

	input := &mutation.EVMInput{Selector: [4]byte{1, 2, 3, 4}}
	entry := NewEntry(state.Hash{}, input, Provenance{}, Scores{EdgeNovelty: true})

	require.NoError(t, c.Add(entry))
	require.Equal(t, 1, c.Len())
	require.Equal(t, entry.ID, c.Entries()[0].ID)
	require.Equal(t, entry.ID, c.Get(entry.ID).ID)
}

func TestCorpus_SameSelectorGroupsBySelector(t *testing.T) {
	c := newTestCorpus(t)

	selector := [4]byte{0xaa, 0xbb, 0xcc, 0xdd}
	first := NewEntry(state.Hash{}, &mutation.EVMInput{Selector: selector, Args: []byte{1}}, Provenance{}, Scores{})
	second := NewEntry(state.Hash{}, &mutation.EVMInput{Selector: selector, Args: []byte{2}}, Provenance{}, Scores{})
	other := NewEntry(state.Hash{}, &mutation.EVMInput{Selector: [4]byte{1, 1, 1, 1}}, Provenance{}, Scores{})

	require.NoError(t, c.Add(first))
	require.NoError(t, c.Add(second))
	require.NoError(t, c.Add(other))

	matches := c.SameSelector(selector)
	require.Len(t, matches, 2)
}

func TestCorpus_ReopenReloadsPersistedEntries(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "corpus.db")
	c, err := Open(dbPath, zerolog.Nop())
	require.NoError(t, err)

	entry := NewEntry(state.Hash{}, &mutation.EVMInput{Selector: [4]byte{9, 9, 9, 9}}, Provenance{}, Scores{})
	require.NoError(t, c.Add(entry))
	require.NoError(t, c.Close())

	reopened, err := Open(dbPath, zerolog.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, 1, reopened.Len())
	require.NotNil(t, reopened.Get(entry.ID))
}

func TestScores_AdmittedRequiresAtLeastOneSignal(t *testing.T) {
	require.False(t, Scores{}.Admitted())
	require.True(t, Scores{DataflowNovelty: true}.Admitted())
}
