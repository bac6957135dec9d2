package fuzzing

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_AggregatesAcrossWorkers(t *testing.T) {
	m := NewMetrics(3)

	m.workers[0].addSequence()
	m.workers[0].addTransactions(5)
	m.workers[1].addSequence()
	m.workers[1].addTransactions(2)
	m.workers[1].addReset()
	m.workers[2].addBugsFound(1)

	assert.Equal(t, uint64(2), m.SequencesTested())
	assert.Equal(t, uint64(7), m.TransactionsTested())
	assert.Equal(t, uint64(1), m.WorkerResets())
	assert.Equal(t, uint64(1), m.BugsFound())
}

func TestMetrics_ConcurrentUpdatesAreSafe(t *testing.T) {
	m := NewMetrics(4)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.workers[idx].addSequence()
				m.workers[idx].addTransactions(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, uint64(400), m.SequencesTested())
	assert.Equal(t, uint64(400), m.TransactionsTested())
}
