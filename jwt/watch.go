package jwtkit

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// FileWatcher reloads a keystore file whenever it changes on disk and swaps
// the parsed snapshot into a holder. The parent directory is watched so that
// rename-into-place updates are observed. When path is a symlink (Kubernetes
// secret mounts link keys.json to ..data/keys.json and swap ..data), any
// directory event that changes the resolved target also triggers a reload.
type FileWatcher struct {
	path   string
	target string
	holder *KeystoreHolder
	log    logrus.FieldLogger
	w      *fsnotify.Watcher
}

// NewFileWatcher registers the watch before returning, so changes made after
// it returns are never missed.
func NewFileWatcher(path string, holder *KeystoreHolder, log logrus.FieldLogger) (*FileWatcher, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve keystore path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &FileWatcher{
		path:   abs,
		target: resolveTarget(abs),
		holder: holder,
		log:    log.WithFields(logrus.Fields{"tag": "keystore-watch", "path": abs}),
		w:      w,
	}, nil
}

// Run processes events until ctx is done, then closes the watcher.
func (fw *FileWatcher) Run(ctx context.Context) error {
	defer func() {
		_ = fw.w.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.w.Events:
			if !ok {
				return nil
			}
			if fw.changed(ev) {
				fw.reload()
			}
		case err, ok := <-fw.w.Errors:
			if !ok {
				return nil
			}
			fw.log.WithError(err).Warn("watcher error")
		}
	}
}

// changed reports whether ev may have replaced the keystore contents.
func (fw *FileWatcher) changed(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) == fw.path {
		return ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
	}
	if ev.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	target := resolveTarget(fw.path)
	if target == "" || target == fw.target {
		return false
	}
	fw.target = target
	return true
}

// resolveTarget follows symlinks in path. It returns "" while the link is
// dangling, which happens briefly during a mount swap.
func resolveTarget(path string) string {
	t, err := filepath.EvalSymlinks(path)
	if err != nil {
		return ""
	}
	return t
}

func (fw *FileWatcher) reload() {
	ks, err := loadKeystoreFile(fw.path)
	if err != nil {
		// Editors and secret mounts often produce a partial write first.
		fw.log.WithError(err).Warn("keystore file not loadable; keeping previous snapshot")
		return
	}
	fw.holder.Store(ks)
	fw.log.WithField("kids", ks.KeyIDs()).Info("keystore reloaded from file")
}
