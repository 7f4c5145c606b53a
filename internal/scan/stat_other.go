//go:build !unix

package scan

import "io/fs"

// platformStat has no portable implementation: hard links and device/
// inode identity are a UNIX-only concept, and non-UNIX platforms are an
// explicit Non-goal of this tool (spec.md §1).
func platformStat(info fs.FileInfo) (device, inode, nlink uint64, ok bool) {
	return 0, 0, 0, false
}
