//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

package skill

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"trpc.group/trpc-go/trpc-phone-agent/log"
)

// reloadDebounce coalesces the event bursts editors produce on save.
const reloadDebounce = 200 * time.Millisecond

// Watch reloads the library whenever its directory changes, until ctx is
// cancelled. It blocks; run it on its own goroutine.
func (l *Library) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(l.dir); err != nil {
		return err
	}

	var timer *time.Timer
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(reloadDebounce)
			pending = timer.C
		case <-pending:
			pending = nil
			if err := l.Reload(); err != nil {
				log.Warnf("skill: reload after change: %v", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("skill: watcher error: %v", err)
		}
	}
}

// relevant filters events down to metadata and script changes.
func relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(event.Name)
	return name == LibraryFileName || strings.HasSuffix(name, ".js")
}
