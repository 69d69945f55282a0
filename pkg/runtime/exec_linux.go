//go:build linux

package runtime

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// sysProcAttr builds the fork-time attributes: a fresh session (so the
// whole chore tree shares one process group) and, when the agent runs
// as root on behalf of another user, the full credential drop with
// supplementary groups.
func sysProcAttr(ident identity) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{Setsid: true}
	if ident.switching {
		attr.Credential = &syscall.Credential{
			Uid:    uint32(ident.uid),
			Gid:    uint32(ident.gid),
			Groups: ident.groups,
		}
	}
	return attr
}

// setAffinity pins the chore's process to CPUs 0..nCPUs-1. Applied by
// the parent right after start; children inherit the mask.
func setAffinity(pid, nCPUs int) error {
	var set unix.CPUSet
	for i := 0; i < nCPUs; i++ {
		set.Set(i)
	}
	return unix.SchedSetaffinity(pid, &set)
}

// signalGroup signals the chore's whole process group
func signalGroup(pid int, sig syscall.Signal) {
	_ = syscall.Kill(-pid, sig)
}
