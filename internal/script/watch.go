package script

import (
	"context"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch reloads the registry whenever a rule file under dir changes.
// It blocks until ctx is done. A reload reads the whole directory and
// swaps in a complete snapshot, so concurrent readers only ever see a
// fully-formed rule set.
func Watch(ctx context.Context, dir string, reg *Registry, logger zerolog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}

	logger.Info().Str("dir", dir).Msg("watching scripts directory")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}

			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("scripts directory changed")

			rules, err := LoadDir(dir, logger)
			if err != nil {
				logger.Error().Err(err).Msg("failed to reload scripts")
				continue
			}

			reg.LoadAll(rules)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("scripts watcher error")
		}
	}
}
