// Package store implements the durable on-disk pending-request FIFO:
// one JSON file per accepted request, named by serial number. Put
// persists, Get blocks until the oldest unread request is available,
// and Commit deletes the file and is idempotent.
package store

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/goferhq/gofer/internal/envelope"
	"github.com/goferhq/gofer/internal/logging"
)

// Store is a durable FIFO directory of accepted, uncommitted requests.
type Store struct {
	dir string
	log *logging.Logger

	mu      sync.Mutex
	pending []string // sn, oldest first
	seen    map[string]bool

	watcher *fsnotify.Watcher
	notify  chan struct{}
}

// Open creates the pending directory if needed, replays any requests
// left over from a prior run (sorted by file mtime), and starts
// watching the directory for new arrivals.
func Open(dir string, log *logging.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &Store{
		dir:    dir,
		log:    log,
		seen:   make(map[string]bool),
		notify: make(chan struct{}, 1),
	}
	if err := s.replay(); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	s.watcher = w
	go s.watch()
	return s, nil
}

func (s *Store) replay() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	type fileInfo struct {
		sn    string
		mtime time.Time
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		sn := e.Name()[:len(e.Name())-len(".json")]
		files = append(files, fileInfo{sn: sn, mtime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mtime.Before(files[j].mtime) })

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range files {
		if !s.seen[f.sn] {
			s.seen[f.sn] = true
			s.pending = append(s.pending, f.sn)
		}
	}
	if len(s.pending) > 0 {
		s.log.Info("replayed %d uncommitted request(s) from %s", len(s.pending), s.dir)
	}
	return nil
}

func (s *Store) watch() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Ext(ev.Name) != ".json" {
				continue
			}
			sn := filepath.Base(ev.Name)
			sn = sn[:len(sn)-len(".json")]
			s.mu.Lock()
			if !s.seen[sn] {
				s.seen[sn] = true
				s.pending = append(s.pending, sn)
			}
			s.mu.Unlock()
			select {
			case s.notify <- struct{}{}:
			default:
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Error("pending directory watch error: %v", err)
		}
	}
}

func (s *Store) path(sn string) string {
	return filepath.Join(s.dir, sn+".json")
}

// Put persists env as sn-named JSON, atomically (write to a temp file,
// then rename), and returns once the bytes are flushed.
func (s *Store) Put(env *envelope.Envelope) error {
	sn := env.SN()
	data, err := env.Encode()
	if err != nil {
		return err
	}
	tmp := s.path(sn) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path(sn)); err != nil {
		return err
	}

	s.mu.Lock()
	if !s.seen[sn] {
		s.seen[sn] = true
		s.pending = append(s.pending, sn)
	}
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// Get blocks until the oldest unread request is available and returns
// it. It does not remove the request from the store; call Commit once
// the request has been fully processed.
func (s *Store) Get() (*envelope.Envelope, error) {
	for {
		s.mu.Lock()
		if len(s.pending) > 0 {
			sn := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()

			data, err := os.ReadFile(s.path(sn))
			if os.IsNotExist(err) {
				// Already committed between enqueue and read; move on.
				continue
			}
			if err != nil {
				return nil, err
			}
			env, err := envelope.Decode(data)
			if err != nil {
				return nil, err
			}
			return env, nil
		}
		s.mu.Unlock()
		<-s.notify
	}
}

// Commit deletes the request's file. Deleting an already-committed (or
// never-persisted) sn is a no-op.
func (s *Store) Commit(sn string) error {
	err := os.Remove(s.path(sn))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close stops the directory watch.
func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
