package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/flaglights/go/internal/config"
	"github.com/mcdev12/flaglights/go/internal/settings"
)

func openSettings(ctx context.Context, cfg *config.Config) (settings.Store, error) {
	store, err := settings.Open(ctx, cfg.SettingsOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open settings store: %w", err)
	}

	log.Info().Str("backend", cfg.Store.Backend).Msg("settings store ready")
	return store, nil
}

// watchSettings follows external edits to a file-backed store. Other
// backends have nothing to watch and return immediately.
func watchSettings(ctx context.Context, s *Services) error {
	fs, ok := s.Store.(*settings.FileStore)
	if !ok {
		return nil
	}
	return fs.Watch(ctx, func() {
		if err := s.Delay.Reload(ctx); err != nil {
			log.Warn().Err(err).Msg("ignoring unreadable delay after settings change")
		}
	})
}
