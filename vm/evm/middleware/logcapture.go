package middleware

import (
	"github.com/crytic/medusa-geth/common"

	"github.com/fuzzland/ityfuzz/vm/evm"
)

// assertionFailedTopic is the sentinel LOG topic the BugTopic oracle watches for:
// keccak256("AssertionFailed(string)"). fuzzlandMagicPrefix additionally matches any
// topic whose high 8 bytes spell out "fuzzland" in ASCII, a convention a harness
// author can opt into without needing the canonical assertion-library signature.
var assertionFailedTopic = common.HexToHash("0xb42604cb105a16c8f6db8a41e6b00c0c1b4826465e8bc504b3eb3e88b3e6a4a0")

var fuzzlandMagicPrefix = [8]byte{'f', 'u', 'z', 'z', 'l', 'a', 'n', 'd'}

// LogCapture collects every LOG0..LOG4 emitted during a transaction, per spec
// §4.2's log-capture middleware, and flags any emission whose first topic matches a
// bug-sentinel signature for the BugTopic oracle (spec §4.7) to consume without
// re-scanning every log from scratch.
type LogCapture struct {
	evm.BaseMiddleware

	logs         []evm.Log
	sentinelHit  bool
}

// NewLogCapture returns an empty LogCapture.
func NewLogCapture() *LogCapture {
	return &LogCapture{}
}

func (l *LogCapture) Name() string { return "log_capture" }

func (l *LogCapture) OnTxStart(*evm.Frame) {
	l.logs = nil
	l.sentinelHit = false
}

// Record is called by the worker with the final Log list the host returned for a
// transaction (logs are only known for certain once execution completes
// successfully, since a reverted subcall's logs never take effect).
func (l *LogCapture) Record(logs []evm.Log) {
	l.logs = logs
	for _, log := range logs {
		if len(log.Topics) == 0 {
			continue
		}
		if log.Topics[0] == assertionFailedTopic || hasFuzzlandMagicPrefix(log.Topics[0]) {
			l.sentinelHit = true
		}
	}
}

// IsSentinelTopic reports whether topic matches a bug-sentinel signature, exposed so
// the oracle package's BugTopic oracle can recognize the same sentinels LogCapture
// does without duplicating the literal hashes.
func IsSentinelTopic(topic common.Hash) bool {
	return topic == assertionFailedTopic || hasFuzzlandMagicPrefix(topic)
}

func hasFuzzlandMagicPrefix(topic common.Hash) bool {
	for i, b := range fuzzlandMagicPrefix {
		if topic[i] != b {
			return false
		}
	}
	return true
}

// Logs returns every log captured for the current transaction.
func (l *LogCapture) Logs() []evm.Log {
	return l.logs
}

// SentinelHit reports whether a bug-sentinel topic was observed.
func (l *LogCapture) SentinelHit() bool {
	return l.sentinelHit
}
