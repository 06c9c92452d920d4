//go:build linux

package syncer

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// birthTime best-effort extracts filesystem creation time via statx's
// STATX_BTIME, which most Linux filesystems (ext4, xfs, btrfs) report but
// the classic stat(2) struct never carried. When the filesystem doesn't
// support it, this returns the zero time, which the origin-timestamp
// fallback chain in spec.md §4.6 treats the same as an epoch birthtime:
// fall back to mtime.
func birthTime(path string, info os.FileInfo) time.Time {
	var stx unix.Statx_t
	if err := unix.Statx(unix.AT_FDCWD, path, 0, unix.STATX_BTIME, &stx); err != nil {
		return time.Time{}
	}
	if stx.Mask&unix.STATX_BTIME == 0 {
		return time.Time{}
	}
	return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
}
