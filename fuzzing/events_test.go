package fuzzing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fuzzland/ityfuzz/oracle"
)

func TestEvents_BugFoundDeliversToSubscriber(t *testing.T) {
	events := &Events{}

	var received *oracle.BugReport
	events.BugFound.Subscribe(func(e BugFoundEvent) {
		received = e.Report
	})

	report := &oracle.BugReport{Kind: oracle.KindBugTopic, Message: "sentinel observed"}
	events.BugFound.Publish(BugFoundEvent{Report: report})

	assert.Same(t, report, received)
}

func TestEvents_StartingAndStoppingFireIndependently(t *testing.T) {
	events := &Events{}

	var startCount, stopCount int
	var stopErr error
	events.Starting.Subscribe(func(StartingEvent) { startCount++ })
	events.Stopping.Subscribe(func(e StoppingEvent) {
		stopCount++
		stopErr = e.Err
	})

	f := &Fuzzer{}
	events.Starting.Publish(StartingEvent{Fuzzer: f})
	assert.Equal(t, 1, startCount)
	assert.Equal(t, 0, stopCount)

	events.Stopping.Publish(StoppingEvent{Fuzzer: f, Err: nil})
	assert.Equal(t, 1, stopCount)
	assert.NoError(t, stopErr)
}
