//go:build linux || darwin || netbsd || freebsd || openbsd || solaris || dragonfly || aix
// +build linux darwin netbsd freebsd openbsd solaris dragonfly aix

package base

import (
	"syscall"

	"github.com/sirupsen/logrus"
)

// Every open websocket to the feed API holds a file descriptor on top of the
// database and homeserver connections.
const minFileDescriptors = 4096

func platformSanityChecks() {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err == nil && rLimit.Cur < minFileDescriptors {
		logrus.Warnf("Process file descriptor limit is currently %d, consider raising it to at least %d", rLimit.Cur, minFileDescriptors)
	}
}
