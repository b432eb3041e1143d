// Package ingest feeds message dumps dropped into a directory into the chat
// cache and runs the cache's retention sweep on a timer.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/lrhodin/chatcache/pkg/metrics"
)

// ErrIgnored is returned by IngestFile for files that aren't room dumps.
var ErrIgnored = errors.New("not a room message file")

// Store is the part of the chat cache the watcher drives.
type Store interface {
	SaveRoomMessages(ctx context.Context, roomID string, messages []any, maxMessages int) error
	CleanupOldMessages(ctx context.Context, maxAgeDays int) (int64, error)
}

// DefaultDebounce is how long a file must stay quiet before it is ingested.
const DefaultDebounce = 500 * time.Millisecond

type Watcher struct {
	Dir           string
	Store         Store
	MaxMessages   int
	RetentionDays int
	SweepInterval time.Duration
	Log           zerolog.Logger

	// Debounce delays ingesting a file until no write has touched it for
	// this long. Zero means DefaultDebounce.
	Debounce time.Duration
}

// roomForFile returns the room a dump belongs to: "<room>.json".
func roomForFile(path string) (string, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || !strings.EqualFold(filepath.Ext(base), ".json") {
		return "", false
	}
	room := base[:len(base)-len(filepath.Ext(base))]
	return room, room != ""
}

func isJSON(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("application/json") {
			return true
		}
	}
	return false
}

// IngestFile saves the JSON array in path to the room named by the file.
func (w *Watcher) IngestFile(ctx context.Context, path string) error {
	room, ok := roomForFile(path)
	if !ok {
		metrics.FilesIngested.WithLabelValues("ignored").Inc()
		return ErrIgnored
	}
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		metrics.FilesIngested.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to detect file type: %w", err)
	} else if !isJSON(mtype) {
		metrics.FilesIngested.WithLabelValues("ignored").Inc()
		return fmt.Errorf("%w: content type %s", ErrIgnored, mtype.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		metrics.FilesIngested.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	var items []json.RawMessage
	if err = json.Unmarshal(data, &items); err != nil {
		metrics.FilesIngested.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	messages := make([]any, len(items))
	for i, item := range items {
		messages[i] = item
	}
	if err = w.Store.SaveRoomMessages(ctx, room, messages, w.MaxMessages); err != nil {
		metrics.FilesIngested.WithLabelValues("failed").Inc()
		return err
	}
	metrics.FilesIngested.WithLabelValues("saved").Inc()
	w.Log.Info().Str("room_id", room).Int("count", len(messages)).Msg("Ingested room messages")
	return nil
}

func (w *Watcher) ingestLogged(ctx context.Context, path string) {
	err := w.IngestFile(ctx, path)
	if errors.Is(err, ErrIgnored) {
		w.Log.Debug().Err(err).Str("path", path).Msg("Ignoring file")
	} else if err != nil {
		w.Log.Err(err).Str("path", path).Msg("Failed to ingest file")
	}
}

func (w *Watcher) sweep(ctx context.Context) {
	n, err := w.Store.CleanupOldMessages(ctx, w.RetentionDays)
	if err != nil {
		w.Log.Err(err).Msg("Retention sweep failed")
		return
	}
	w.Log.Debug().Int64("deleted", n).Msg("Retention sweep finished")
}

// Run ingests files already in Dir, then watches it until ctx is done.
// A sweep runs at start and every SweepInterval; zero disables the timer.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err = watcher.Add(w.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.Dir, err)
	}

	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", w.Dir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			w.ingestLogged(ctx, filepath.Join(w.Dir, entry.Name()))
		}
	}
	w.sweep(ctx)

	var tick <-chan time.Time
	if w.SweepInterval > 0 {
		ticker := time.NewTicker(w.SweepInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	due := make(chan string)
	stop := make(chan struct{})
	pending := make(map[string]*time.Timer)
	defer func() {
		close(stop)
		for _, timer := range pending {
			timer.Stop()
		}
	}()

	w.Log.Info().Str("dir", w.Dir).Msg("Watching for room message files")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			w.sweep(ctx)
		case path := <-due:
			delete(pending, path)
			w.ingestLogged(ctx, path)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if timer, ok := pending[event.Name]; ok {
				timer.Reset(debounce)
				continue
			}
			path := event.Name
			pending[path] = time.AfterFunc(debounce, func() {
				select {
				case due <- path:
				case <-stop:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.Log.Warn().Err(err).Msg("Watcher error")
		}
	}
}
