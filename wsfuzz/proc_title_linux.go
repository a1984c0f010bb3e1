//go:build linux

package wsfuzz

import (
	"unsafe"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// setProcessTitle renames the main thread so the fuzzer is easy to find in ps and top.
// The kernel truncates names to 15 bytes.
func setProcessTitle(title string, logger zerolog.Logger) {
	name, err := unix.BytePtrFromString(title)
	if err != nil {
		logger.Debug().Err(err).Msg("Failed to set process title")
		return
	}
	if err := unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(name)), 0, 0, 0); err != nil {
		logger.Debug().Err(err).Msg("Failed to set process title")
	}
}
