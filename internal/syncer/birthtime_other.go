//go:build !linux && !darwin

package syncer

import (
	"os"
	"time"
)

// birthTime has no portable source on this platform; returning the zero
// time routes through the same mtime fallback as an unsupported
// filesystem would on Linux or macOS.
func birthTime(path string, info os.FileInfo) time.Time {
	return time.Time{}
}
