//go:build windows

package wsfuzz

import "github.com/rs/zerolog"

func setProcessTitle(title string, logger zerolog.Logger) {
	logger.Debug().Msg("Process title setting is not supported on Windows")
}
