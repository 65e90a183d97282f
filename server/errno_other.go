//go:build !(aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris)

package server

import "syscall"

func errnoName(errno syscall.Errno) string {
	return ""
}
