package system

import (
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

func sysctlInt(name string) (int64, error) {
	out, err := exec.Command("sysctl", "-n", name).Output()
	if err != nil {
		return 0, errors.Wrapf(err, "sysctl %s", name)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	return v, errors.Wrapf(err, "parsing sysctl %s", name)
}

func getRAMInfo() (*RAMInfo, error) {
	total, err := sysctlInt("hw.memsize")
	if err != nil {
		return nil, err
	}
	pageSize, err := sysctlInt("hw.pagesize")
	if err != nil {
		pageSize = 4096
	}

	out, err := exec.Command("vm_stat").Output()
	if err != nil {
		return nil, errors.Wrap(err, "vm_stat")
	}
	// Available memory is roughly free + inactive pages
	var pages int64
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.HasPrefix(line, "Pages free:") && !strings.HasPrefix(line, "Pages inactive:") {
			continue
		}
		fields := strings.Fields(line)
		n, err := strconv.ParseInt(strings.TrimSuffix(fields[len(fields)-1], "."), 10, 64)
		if err == nil {
			pages += n
		}
	}
	return &RAMInfo{TotalBytes: total, AvailableBytes: pages * pageSize}, nil
}
