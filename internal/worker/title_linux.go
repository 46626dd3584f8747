//go:build linux

package worker

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// setProcessTitle sets the command name shown by ps and top. The kernel
// keeps at most 15 bytes.
//
// /proc/self/comm names the thread group leader, which is what ps shows.
// prctl only renames the calling OS thread, which under the Go scheduler may
// not be the leader, so it is the fallback when /proc is unavailable.
func setProcessTitle(title string) error {
	if err := os.WriteFile("/proc/self/comm", []byte(title), 0); err == nil {
		return nil
	}
	p, err := unix.BytePtrFromString(title)
	if err != nil {
		return err
	}
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(p)), 0, 0, 0)
}
