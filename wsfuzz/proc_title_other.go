//go:build !linux && !windows

package wsfuzz

import "github.com/rs/zerolog"

func setProcessTitle(title string, logger zerolog.Logger) {}
