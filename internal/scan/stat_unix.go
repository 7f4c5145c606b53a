//go:build unix

package scan

import (
	"io/fs"
	"syscall"
)

// platformStat extracts the device, inode, and hard-link count backing
// info. Non-UNIX platforms are out of scope (spec.md §1's Non-goals);
// on any other build this file is simply not compiled, and scan falls
// back to the always-false stub in stat_other.go.
func platformStat(info fs.FileInfo) (device, inode, nlink uint64, ok bool) {
	st, isStatT := info.Sys().(*syscall.Stat_t)
	if !isStatT {
		return 0, 0, 0, false
	}
	return uint64(st.Dev), uint64(st.Ino), uint64(st.Nlink), true
}
