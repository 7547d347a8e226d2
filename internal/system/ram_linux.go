package system

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const meminfoPath = "/proc/meminfo"

func getRAMInfo() (*RAMInfo, error) {
	file, err := os.Open(meminfoPath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", meminfoPath)
	}
	defer file.Close()
	return parseMeminfo(bufio.NewScanner(file))
}

// parseMeminfo reads MemTotal and MemAvailable, falling back to
// MemFree+Cached on kernels older than 3.14 that lack MemAvailable.
func parseMeminfo(scanner *bufio.Scanner) (*RAMInfo, error) {
	kb := make(map[string]int64)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		value, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		kb[strings.TrimSuffix(fields[0], ":")] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", meminfoPath)
	}

	total := kb["MemTotal"]
	if total == 0 {
		return nil, errors.New("could not determine total RAM")
	}
	available, ok := kb["MemAvailable"]
	if !ok {
		available = kb["MemFree"] + kb["Cached"]
	}
	return &RAMInfo{TotalBytes: total * 1024, AvailableBytes: available * 1024}, nil
}
