package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialise.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// maxChunk bounds how much appended text is read per write event.
const maxChunk = 1 << 20

// FileWatcher tails log files and scans each appended chunk. Parent
// directories are watched so rotated or recreated files are picked up.
type FileWatcher struct {
	scanner *Scanner
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	offsets map[string]int64

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewFileWatcher prepares a watcher for paths. Existing content is skipped;
// only text appended after Start is scanned.
func NewFileWatcher(s *Scanner, paths []string, logger *slog.Logger) (*FileWatcher, error) {
	if len(paths) == 0 {
		return nil, errors.New("no paths to watch")
	}
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	w := &FileWatcher{
		scanner: s,
		watcher: watcher,
		logger:  logger,
		offsets: make(map[string]int64, len(paths)),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		var offset int64
		if info, err := os.Stat(abs); err == nil {
			offset = info.Size()
		}
		w.offsets[abs] = offset
	}
	return w, nil
}

// Start begins watching in a background goroutine. Call Stop to release
// resources.
func (w *FileWatcher) Start(ctx context.Context) error {
	dirs := make(map[string]struct{})
	for p := range w.offsets {
		dirs[filepath.Dir(p)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.started.Store(true)
	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *FileWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		_ = w.watcher.Close()
	})
	if w.started.Load() {
		<-w.done
	}
}

func (w *FileWatcher) processEvents(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("log watcher error", "error", err)
		}
	}
}

func (w *FileWatcher) handle(ctx context.Context, event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if _, tracked := w.offsets[path]; !tracked {
		return
	}
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.offsets[path] = 0
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		chunk, err := w.readAppended(path)
		if err != nil {
			w.logger.Warn("read appended log failed", "path", path, "error", err)
			return
		}
		if strings.TrimSpace(chunk) == "" {
			return
		}
		if _, err := w.scanner.Scan(ctx, []string{chunk}); err != nil {
			w.logger.Warn("scan of appended log failed", "path", path, "error", err)
		}
	}
}

// readAppended returns complete lines written since the last read.
func (w *FileWatcher) readAppended(path string) (string, error) {
	chunk, next, err := readLines(path, w.offsets[path], maxChunk)
	if err != nil {
		return "", err
	}
	w.offsets[path] = next
	return chunk, nil
}

// readLines reads complete lines from offset, at most limit bytes, and
// returns them with the offset to resume from. A file shorter than offset is
// treated as truncated and read from the start.
func readLines(path string, offset, limit int64) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", offset, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", offset, err
	}
	if info.Size() < offset {
		offset = 0
	}
	if info.Size() == offset {
		return "", offset, nil
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return "", offset, err
	}
	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return "", offset, err
	}

	end := strings.LastIndexByte(string(data), '\n')
	if end < 0 {
		if int64(len(data)) < limit {
			return "", offset, nil
		}
		end = len(data) - 1
	}
	return string(data[:end+1]), offset + int64(end+1), nil
}
