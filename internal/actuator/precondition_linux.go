//go:build linux

package actuator

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// DiskSpace fails when the filesystem holding path is more than
// maxUsedPercent full.
func DiskSpace(path string, maxUsedPercent float64) Precondition {
	return func(context.Context) error {
		var stat syscall.Statfs_t
		if err := syscall.Statfs(path, &stat); err != nil {
			return fmt.Errorf("statfs %s: %w", path, err)
		}
		total := stat.Blocks * uint64(stat.Bsize)
		if total == 0 {
			return nil
		}
		used := total - stat.Bfree*uint64(stat.Bsize)
		pct := float64(used) / float64(total) * 100
		if pct > maxUsedPercent {
			return fmt.Errorf("disk usage on %s at %.1f%%, limit %.1f%%", path, pct, maxUsedPercent)
		}
		return nil
	}
}

// MemoryAvailable fails when MemAvailable drops below minPercent of MemTotal.
func MemoryAvailable(minPercent float64) Precondition {
	return func(context.Context) error {
		total, avail, err := readMeminfo("/proc/meminfo")
		if err != nil {
			return err
		}
		if total == 0 {
			return nil
		}
		pct := float64(avail) / float64(total) * 100
		if pct < minPercent {
			return fmt.Errorf("available memory at %.1f%%, minimum %.1f%%", pct, minPercent)
		}
		return nil
	}
}

func readMeminfo(path string) (total, avail uint64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		v, convErr := strconv.ParseUint(fields[1], 10, 64)
		if convErr != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = v
		case "MemAvailable:":
			avail = v
		}
	}
	return total, avail, sc.Err()
}
