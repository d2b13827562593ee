package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ipdelete/agent-base-sub000/pkg/logger"
	"github.com/pkg/errors"
)

// DefaultWatchDebounce is used when Watch is given a non-positive debounce.
const DefaultWatchDebounce = 500 * time.Millisecond

// Watch calls onChange once file activity under any root has been quiet for
// debounce. It watches each root, every skill directory and every scripts
// directory, and picks up skill directories created while running. A root
// that does not exist yet is tracked through its nearest existing parent and
// starts being watched once it appears. Watch blocks until ctx is done.
func Watch(ctx context.Context, roots []Root, debounce time.Duration, onChange func()) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	rw := &rootWatcher{watcher: watcher}
	for _, root := range roots {
		if err := rw.add(ctx, root.Path); err != nil {
			return err
		}
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	trigger := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			if ctx.Err() == nil {
				onChange()
			}
		})
	}
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			if !rw.covers(event.Name) {
				if event.Op&fsnotify.Create != 0 && rw.resolvePending(ctx) {
					trigger()
				}
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watchDir(ctx, watcher, event.Name)
					_ = watchDir(ctx, watcher, filepath.Join(event.Name, ScriptsDir))
				}
			}
			logger.G(ctx).WithField("path", event.Name).WithField("op", event.Op.String()).Debug("skill change detected")
			trigger()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.G(ctx).WithError(err).Warn("skill watcher error")
		}
	}
}

// rootWatcher tracks which roots are watched and which are still waiting to
// be created.
type rootWatcher struct {
	watcher *fsnotify.Watcher
	active  []string
	pending []string
}

func (rw *rootWatcher) add(ctx context.Context, root string) error {
	root = filepath.Clean(root)
	err := addSkillRoot(ctx, rw.watcher, root)
	switch {
	case os.IsNotExist(errors.Cause(err)):
		rw.pending = append(rw.pending, root)
		rw.watchParent(ctx, root)
		return nil
	case err != nil:
		return err
	}
	rw.active = append(rw.active, root)
	return nil
}

// covers reports whether path is inside a watched root.
func (rw *rootWatcher) covers(path string) bool {
	for _, root := range rw.active {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// resolvePending activates pending roots that now exist and moves the parent
// watch of the rest closer to them. It reports whether any root was activated.
func (rw *rootWatcher) resolvePending(ctx context.Context) bool {
	if len(rw.pending) == 0 {
		return false
	}
	pending := rw.pending
	rw.pending = nil
	activated := false
	for _, root := range pending {
		before := len(rw.active)
		if err := rw.add(ctx, root); err != nil {
			logger.G(ctx).WithError(err).WithField("root", root).Warn("failed to watch new skill root")
			continue
		}
		if len(rw.active) > before {
			logger.G(ctx).WithField("root", root).Debug("skill root appeared, watching it")
			activated = true
		}
	}
	return activated
}

func (rw *rootWatcher) watchParent(ctx context.Context, root string) {
	dir := filepath.Dir(root)
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			_ = watchDir(ctx, rw.watcher, dir)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func addSkillRoot(ctx context.Context, watcher *fsnotify.Watcher, root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.WithStack(err)
		}
		return errors.Wrapf(err, "failed to read skill root %s", root)
	}
	if err := watchDir(ctx, watcher, root); err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		_ = watchDir(ctx, watcher, dir)
		_ = watchDir(ctx, watcher, filepath.Join(dir, ScriptsDir))
	}
	return nil
}

func watchDir(ctx context.Context, watcher *fsnotify.Watcher, dir string) error {
	info, err := os.Lstat(dir)
	if err != nil || !info.IsDir() {
		return nil
	}
	if err := watcher.Add(dir); err != nil {
		logger.G(ctx).WithError(err).WithField("directory", dir).Warn("failed to watch directory")
		return errors.Wrapf(err, "failed to watch %s", dir)
	}
	return nil
}
