package assets

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

func (s *Service) startWatcher(ctx context.Context) error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := addTree(watcher, s.dir); err != nil {
		_ = watcher.Close()
		return err
	}

	s.watcher = watcher
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.watch(ctx, watcher, s.stopCh, s.doneCh)
	s.logger.Info("watching assets", "dir", s.dir)
	return nil
}

func (s *Service) watch(ctx context.Context, watcher *fsnotify.Watcher, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				// New directories need their own watch.
				_ = addTree(watcher, event.Name)
			}
			if !pending {
				pending = true
				timer.Reset(s.debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("asset watcher error", "error", err)
		case <-timer.C:
			pending = false
			if err := s.Reload(); err != nil {
				s.logger.Error("asset manifest reload failed", "error", err)
				continue
			}
			s.logger.Info("asset manifest reloaded", "assets", len(s.Manifest()))
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}

func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return watcher.Add(p)
	})
}
