package watcher

import (
	"context"
	"os"

	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/logging"
)

// Loader is the part of the template scanner the reloader drives.
type Loader interface {
	ScanFile(path string) (bool, string, error)
	RemoveFile(path string) (string, bool)
}

// Reload summarizes one debounced batch.
type Reload struct {
	Loaded  []string
	Removed []string
	Failed  []error
}

// Changed reports whether any template was registered or removed.
func (r Reload) Changed() bool {
	return len(r.Loaded) > 0 || len(r.Removed) > 0
}

// ReloadHandler returns a ChangeHandler that re-registers changed files and
// unregisters deleted ones. Broken files are reported through errs and the
// previous registration stays in place; they never stop the watcher. done,
// when non-nil, receives the summary of every batch.
func ReloadHandler(loader Loader, errs *errors.ErrorHandler, logger logging.Logger, done func(Reload)) ChangeHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithComponent("reload")

	return func(ctx context.Context, events []ChangeEvent) error {
		var r Reload
		for _, ev := range events {
			// Editors that save by renaming leave the path in place.
			if ev.Gone() && !exists(ev.Path) {
				if name, ok := loader.RemoveFile(ev.Path); ok {
					r.Removed = append(r.Removed, name)
					logger.Info(ctx, "Template removed", "path", ev.Path, "template", name)
				}
				continue
			}

			registered, name, err := loader.ScanFile(ev.Path)
			if err != nil {
				r.Failed = append(r.Failed, err)
				if errs != nil {
					errs.Handle(ctx, err)
				}
				continue
			}
			if registered {
				r.Loaded = append(r.Loaded, name)
				logger.Info(ctx, "Template reloaded", "path", ev.Path, "template", name, "event", ev.Type.String())
			}
		}
		if done != nil {
			done(r)
		}
		return nil
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
