package fuzzing

import (
	"github.com/fuzzland/ityfuzz/events"
	"github.com/fuzzland/ityfuzz/oracle"
)

// Events defines the event emitters a Fuzzer publishes over the course of a
// campaign, grounded on the teacher's FuzzerEvents (fuzzing/fuzzer_events.go),
// extended with a BugFound emitter since this fuzzer's result set is bug reports
// rather than pass/fail property tests.
type Events struct {
	// Starting emits once a Fuzzer has finished initializing and is about to spawn
	// its workers.
	Starting events.EventEmitter[StartingEvent]

	// Stopping emits once a Fuzzer's main loop is exiting, successfully or not.
	Stopping events.EventEmitter[StoppingEvent]

	// WorkerCreated emits whenever a Worker is spun up, including worker resets.
	WorkerCreated events.EventEmitter[WorkerCreatedEvent]

	// WorkerDestroyed emits whenever a Worker is torn down, including worker resets.
	WorkerDestroyed events.EventEmitter[WorkerDestroyedEvent]

	// BugFound emits every time an oracle confirms a new finding.
	BugFound events.EventEmitter[BugFoundEvent]
}

// StartingEvent describes a Fuzzer about to begin its main campaign loop.
type StartingEvent struct {
	Fuzzer *Fuzzer
}

// StoppingEvent describes a Fuzzer exiting its main campaign loop.
type StoppingEvent struct {
	Fuzzer *Fuzzer
	Err    error
}

// WorkerCreatedEvent describes a Worker spun up by a Fuzzer.
type WorkerCreatedEvent struct {
	Worker *Worker
}

// WorkerDestroyedEvent describes a Worker torn down by a Fuzzer.
type WorkerDestroyedEvent struct {
	Worker *Worker
}

// BugFoundEvent describes a single confirmed bug finding surfacing from any worker.
type BugFoundEvent struct {
	Report *oracle.BugReport
}
