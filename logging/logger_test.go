package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/fuzzland/ityfuzz/logging/colors"
)

func TestAddAndRemoveWriter(t *testing.T) {
	logger := NewLogger(zerolog.InfoLevel, false)

	var buf1, buf2 bytes.Buffer
	logger.AddWriter(&buf1, UNSTRUCTURED)
	logger.AddWriter(&buf2, STRUCTURED)
	assert.Len(t, logger.writers, 2)

	// adding the same writer again must not duplicate it
	logger.AddWriter(&buf1, UNSTRUCTURED)
	assert.Len(t, logger.writers, 2)

	logger.RemoveWriter(&buf1)
	assert.Len(t, logger.writers, 1)
}

func TestSetLevel(t *testing.T) {
	logger := NewLogger(zerolog.InfoLevel, false)
	assert.Equal(t, zerolog.InfoLevel, logger.Level())

	logger.SetLevel(zerolog.WarnLevel)
	assert.Equal(t, zerolog.WarnLevel, logger.Level())
}

func TestLoggerWritesMessageToWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.InfoLevel, false, &buf)
	logger.Info("foo")
	assert.Contains(t, buf.String(), "foo")
}

func TestColorizeWrapsANSIEscapeCode(t *testing.T) {
	colorized := colors.GreenBold("foo")
	assert.Contains(t, colorized, "foo")
	assert.Contains(t, colorized, "\x1b[")
}
