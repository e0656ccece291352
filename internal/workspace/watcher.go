package workspace

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher notifies on changes to the shared skill roots (plugin installs,
// user-created skills) so long-lived agent workspaces can be rebuilt
// without waiting for the next turn.
type Watcher struct {
	fsw     *fsnotify.Watcher
	log     *slog.Logger
	Changed chan string // skill root that changed
}

// NewWatcher watches m's plugin and user-created skill roots for
// create/remove/rename events.
func NewWatcher(m *Manager, log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{m.pluginSkillsDir, m.mainSkillsDir()} {
		if err := fsw.Add(dir); err != nil {
			log.Warn("workspace watcher: could not watch directory", "dir", dir, "error", err)
		}
	}
	w := &Watcher{fsw: fsw, log: log, Changed: make(chan string, 16)}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				close(w.Changed)
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				select {
				case w.Changed <- ev.Name:
				default:
					w.log.Warn("workspace watcher: change channel full, dropping event", "path", ev.Name)
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("workspace watcher error", "error", err)
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
