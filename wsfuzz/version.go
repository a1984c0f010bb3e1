package wsfuzz

import (
	"fmt"
	"runtime"
)

// Version is overridden at build time with -ldflags "-X github.com/wsfuzz/wsfuzz/wsfuzz.Version=..."
var Version = "v0.1.0"

// Platform describes the build target
var Platform = fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
