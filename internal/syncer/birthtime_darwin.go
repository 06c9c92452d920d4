//go:build darwin

package syncer

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// birthTime reads the BSD-style Birthtimespec macOS exposes on stat(2).
func birthTime(path string, info os.FileInfo) time.Time {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return time.Time{}
	}
	return time.Unix(st.Birthtimespec.Sec, st.Birthtimespec.Nsec)
}
