// Package system reports host memory. The software driver sizes its buffer
// limit from it and the device command prints it.
package system

// RAMInfo contains information about system memory
type RAMInfo struct {
	TotalBytes     int64
	AvailableBytes int64
	UsedBytes      int64
}

// UsedPercent returns the share of RAM in use.
func (r *RAMInfo) UsedPercent() float64 {
	if r.TotalBytes <= 0 {
		return 0
	}
	return float64(r.UsedBytes) / float64(r.TotalBytes) * 100
}

// GetRAMInfo returns information about system RAM
func GetRAMInfo() (*RAMInfo, error) {
	info, err := getRAMInfo()
	if err != nil {
		return nil, err
	}
	if info.AvailableBytes > info.TotalBytes {
		info.AvailableBytes = info.TotalBytes
	}
	info.UsedBytes = info.TotalBytes - info.AvailableBytes
	return info, nil
}

// minBufferLimit keeps tiny or misreported hosts usable.
const minBufferLimit = 16 << 20

// BufferLimit returns the largest single buffer worth allowing on this host:
// a quarter of total RAM, never more than ceiling. When RAM cannot be read
// the ceiling is returned.
func BufferLimit(ceiling int64) int64 {
	info, err := GetRAMInfo()
	if err != nil {
		return ceiling
	}
	limit := info.TotalBytes / 4
	switch {
	case limit > ceiling:
		return ceiling
	case limit < minBufferLimit && minBufferLimit <= ceiling:
		return minBufferLimit
	}
	return limit
}
