package security

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sponsorlabs/gasrelay/logging"
)

// reloadDebounce absorbs the partial-write event bursts editors and atomic
// renames produce.
const reloadDebounce = 100 * time.Millisecond

// Store serves the security configuration. The current snapshot is published
// through an atomic pointer: readers never block the watcher and always see
// a consistent config version.
type Store struct {
	path     string
	snapshot atomic.Pointer[Snapshot]
	watcher  *fsnotify.Watcher
	done     chan struct{}
	logger   logging.Logger
}

// NewStore loads the config at path, creating a default file when it is
// missing, and publishes the first snapshot. Call Watch to enable hot reload.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:   path,
		done:   make(chan struct{}),
		logger: logging.New("security"),
	}
	cfg, err := loadFile(path)
	if os.IsNotExist(err) {
		s.logger.Warnf("security config %s not found, writing default", path)
		cfg, err = writeDefaultFile(path)
	}
	if err != nil {
		return nil, err
	}
	snap, err := buildSnapshot(cfg)
	if err != nil {
		return nil, err
	}
	s.snapshot.Store(snap)
	s.logger.Infof("loaded security config: %d active keys, %d global whitelist entries",
		len(snap.Index), len(snap.GlobalWhitelist))
	return s, nil
}

// Snapshot returns the current configuration snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Lookup resolves an API key against the current snapshot. Only enabled keys
// are indexed, so presence implies enabled.
func (s *Store) Lookup(key string) (*APIKeyRecord, bool) {
	rec, ok := s.Snapshot().Index[key]
	return rec, ok
}

// Watch starts the file watcher on the directory containing the config file
// and reloads on every modification of the file itself.
func (s *Store) Watch() error {
	if s.watcher != nil {
		return fmt.Errorf("security store is already watching %s", s.path)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return err
	}
	s.watcher = watcher
	go s.watchLoop()
	return nil
}

func (s *Store) watchLoop() {
	var timer *time.Timer
	target := filepath.Clean(s.path)
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, s.reload)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Errorf("security config watcher error: %v", err)
		case <-s.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// reload replaces the snapshot wholesale. A bad file keeps the previous
// snapshot in place.
func (s *Store) reload() {
	cfg, err := loadFile(s.path)
	if err != nil {
		s.logger.Errorf("security config reload failed, keeping previous snapshot: %v", err)
		return
	}
	snap, err := buildSnapshot(cfg)
	if err != nil {
		s.logger.Errorf("security config rejected, keeping previous snapshot: %v", err)
		return
	}
	s.snapshot.Store(snap)
	s.logger.Infof("security config reloaded: %d active keys", len(snap.Index))
}

// Close stops the watcher. The last published snapshot stays readable.
func (s *Store) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
