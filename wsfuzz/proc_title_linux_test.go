//go:build linux

package wsfuzz

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSetProcessTitleLogsThroughInjectedLogger(t *testing.T) {
	logger, buf := newCaptureLogger(zerolog.DebugLevel)

	setProcessTitle("wsfuzz", logger)
	assert.Empty(t, buf.recordsWithMessage(t, "Failed to set process title"))

	setProcessTitle("bad\x00title", logger)
	assert.Len(t, buf.recordsWithMessage(t, "Failed to set process title"), 1)
}
