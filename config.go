package reposdk

import (
	"github.com/omegaup/go-base/v3/logging"
)

// SdkConfig configures a Sdk. The zero value is a usable default
// (default-sized pool, no cap on concurrent opens), mirroring
// KeyedPoolOptions, where zero fields mean "use the default".
type SdkConfig struct {
	// MaxOpenRepos bounds the number of cached repository handles kept by
	// the pool. Zero means the pool's built-in default (256, matching
	// KeyedPool's own default).
	MaxOpenRepos int

	// OpenPermits optionally bounds the number of concurrent
	// git.OpenRepository calls in flight. Zero means unbounded.
	OpenPermits int

	// Log receives structured log output for pool and engine operations.
	// A nil Log is fine; log calls become no-ops.
	Log logging.Logger
}

func (c SdkConfig) maxOpenRepos() int {
	if c.MaxOpenRepos <= 0 {
		return 256
	}
	return c.MaxOpenRepos
}

func logInfo(log logging.Logger, message string, fields map[string]any) {
	if log == nil {
		return
	}
	log.Info(message, fields)
}

func logError(log logging.Logger, message string, fields map[string]any) {
	if log == nil {
		return
	}
	log.Error(message, fields)
}

func logDebug(log logging.Logger, message string, fields map[string]any) {
	if log == nil {
		return
	}
	log.Debug(message, fields)
}
