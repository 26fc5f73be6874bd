package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDelay = 150 * time.Millisecond

// Watch reloads the file at path after every write/create/rename and hands
// the result to apply. Files that fail to load are skipped; onErr, if set,
// receives the load error. Watch blocks until stop is closed.
func Watch(stop <-chan struct{}, path string, apply func(Config), onErr func(error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// editors replace the file, so the directory is watched as well
	_ = w.Add(path)
	if dirErr := w.Add(filepath.Dir(path)); dirErr != nil {
		return dirErr
	}

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	fire := func() { debounce.Reset(debounceDelay) }

	for {
		select {
		case <-stop:
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !sameFile(path, ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Write) ||
				ev.Has(fsnotify.Create) ||
				ev.Has(fsnotify.Rename) {
				fire()
			}
		case <-debounce.C:
			c, loadErr := Load(path)
			if loadErr != nil {
				if onErr != nil {
					onErr(loadErr)
				}
				continue
			}
			apply(c)
		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if onErr != nil {
				onErr(werr)
			}
		}
	}
}

func sameFile(want, got string) bool {
	return strings.EqualFold(filepath.Base(want), filepath.Base(got))
}
