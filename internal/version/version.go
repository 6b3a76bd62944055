package version

import (
	"runtime"
	"time"
)

// Set via -ldflags at release time; defaults identify dev builds.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = time.Now().Format(time.RFC3339)
	GoVersion = runtime.Version()
)
