//go:build !linux

package runtime

import "syscall"

// Non-Linux builds run chores without credential switching, session
// isolation or CPU pinning; the thread-cap environment still applies.

func sysProcAttr(identity) *syscall.SysProcAttr { return nil }

func setAffinity(int, int) error { return nil }

func signalGroup(int, syscall.Signal) {}
