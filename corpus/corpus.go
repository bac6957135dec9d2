package corpus

import (
	"sync"

	"github.com/fxamacker/cbor"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/fuzzland/ityfuzz/mutation"
)

const entriesBucket = "entries"

// Corpus is the process-local, disk-memoised store of admitted inputs, grounded on
// the teacher's SimpleCorpus (fuzzing/corpus/simple_corpus/simple_corpus.go) — a
// mutex-protected in-memory index with a disk-persistence side channel — but
// generalized from one-JSON-file-per-coverage-hash to a single bbolt database of
// cbor-encoded entries (spec §4 names cbor+bbolt as the ambient persistence choice;
// medusa's JSON-per-file layout predates that choice and is not reused directly).
type Corpus struct {
	mu sync.Mutex

	entries map[uuid.UUID]*Entry
	// bySelector indexes entries by their Input's 4-byte selector, serving the
	// splice-calldata mutation operator's "same selector" requirement (spec §4.5)
	// without a linear scan over the whole corpus on every mutation.
	bySelector map[[4]byte][]*Entry

	store  *bolt.DB
	logger zerolog.Logger
}

// Open returns a Corpus backed by a bbolt database at dbPath, loading any
// previously-persisted entries into memory.
func Open(dbPath string, logger zerolog.Logger) (*Corpus, error) {
	store, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "corpus: opening store")
	}
	if err := store.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(entriesBucket))
		return err
	}); err != nil {
		return nil, errors.Wrap(err, "corpus: initializing bucket")
	}

	c := &Corpus{
		entries:    make(map[uuid.UUID]*Entry),
		bySelector: make(map[[4]byte][]*Entry),
		store:      store,
		logger:     logger.With().Str("component", "corpus").Logger(),
	}
	if err := c.loadAll(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Corpus) loadAll() error {
	return c.store.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(entriesBucket))
		return bucket.ForEach(func(_, v []byte) error {
			var entry Entry
			if err := cbor.Unmarshal(v, &entry); err != nil {
				return errors.Wrap(err, "corpus: decoding entry")
			}
			c.indexLocked(&entry)
			return nil
		})
	})
}

func (c *Corpus) indexLocked(entry *Entry) {
	c.entries[entry.ID] = entry
	if entry.Input != nil {
		c.bySelector[entry.Input.Selector] = append(c.bySelector[entry.Input.Selector], entry)
	}
}

// Add admits entry into the corpus: indexed in memory immediately and persisted to
// disk before returning, so a crash never loses an admitted entry that Add returned
// successfully for.
func (c *Corpus) Add(entry *Entry) error {
	encoded, err := cbor.Marshal(entry, cbor.EncOptions{})
	if err != nil {
		return errors.Wrap(err, "corpus: encoding entry")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(entriesBucket)).Put(entry.ID[:], encoded)
	}); err != nil {
		return errors.Wrap(err, "corpus: persisting entry")
	}

	c.indexLocked(entry)
	c.logger.Debug().Str("entry_id", entry.ID.String()).Int("coverage_delta", entry.Scores.CoverageDelta).Msg("admitted corpus entry")
	return nil
}

// Entries returns every admitted entry, in no particular order.
func (c *Corpus) Entries() []*Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out
}

// Get returns the entry with the given ID, or nil if absent.
func (c *Corpus) Get(id uuid.UUID) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[id]
}

// SameSelector implements mutation.Corpus: it returns every admitted Input sharing
// selector, for the splice-calldata mutation operator.
func (c *Corpus) SameSelector(selector [4]byte) []*mutation.EVMInput {
	c.mu.Lock()
	defer c.mu.Unlock()

	matches := c.bySelector[selector]
	out := make([]*mutation.EVMInput, 0, len(matches))
	for _, e := range matches {
		out = append(out, e.Input)
	}
	return out
}

// Len returns the number of admitted entries.
func (c *Corpus) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close releases the underlying bbolt database.
func (c *Corpus) Close() error {
	return c.store.Close()
}
