package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultTailBytes is how much of each file the first collection reads.
const DefaultTailBytes = 64 << 10

// TailCollector gathers text appended to log files between calls. The first
// call reads at most the last maxBytes of each file so a fresh process does
// not rescan whole logs.
type TailCollector struct {
	mu       sync.Mutex
	paths    []string
	maxBytes int64
	offsets  map[string]int64
}

// NewTailCollector prepares a collector over paths.
func NewTailCollector(paths []string, maxBytes int64) *TailCollector {
	if maxBytes <= 0 {
		maxBytes = DefaultTailBytes
	}
	return &TailCollector{
		paths:    append([]string(nil), paths...),
		maxBytes: maxBytes,
		offsets:  make(map[string]int64, len(paths)),
	}
}

// Collect returns one source per file that gained complete lines. Missing
// files are skipped; other read errors are joined and returned alongside
// whatever was collected.
func (c *TailCollector) Collect(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		sources []string
		errs    []error
	)
	for _, p := range c.paths {
		if err := ctx.Err(); err != nil {
			return sources, err
		}
		path := filepath.Clean(p)
		offset, seen := c.offsets[path]
		if !seen {
			info, err := os.Stat(path)
			if err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					errs = append(errs, fmt.Errorf("stat %s: %w", path, err))
				}
				continue
			}
			offset = max(info.Size()-c.maxBytes, 0)
		}
		chunk, next, err := readLines(path, offset, c.maxBytes)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("read %s: %w", path, err))
			}
			continue
		}
		c.offsets[path] = next
		if strings.TrimSpace(chunk) != "" {
			sources = append(sources, chunk)
		}
	}
	return sources, errors.Join(errs...)
}
