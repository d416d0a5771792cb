package main

import (
	"context"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// profileOwner returns the pid of another running process that has Chrome
// pointed at profile. Chrome allows one process per profile directory.
func profileOwner(ctx context.Context, profile string) (int32, bool) {
	if profile == "" {
		return 0, false
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, false
	}
	self := int32(os.Getpid())
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil {
			continue
		}
		if usesProfile(cmdline, profile) {
			return p.Pid, true
		}
	}
	return 0, false
}

func usesProfile(cmdline, profile string) bool {
	flag := "--user-data-dir=" + profile
	for rest := cmdline; ; {
		i := strings.Index(rest, flag)
		if i < 0 {
			return false
		}
		rest = rest[i+len(flag):]
		if rest == "" || rest[0] == ' ' || rest[0] == '"' || rest[0] == '\'' {
			return true
		}
	}
}
