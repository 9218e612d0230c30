package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcdev12/flaglights/go/internal/printer"
	"github.com/mcdev12/flaglights/go/internal/settings"
)

// settingClearers maps CLI names onto the typed clear operations.
var settingClearers = map[string]func(*settings.State, context.Context) error{
	"delay":   (*settings.State).ClearDelay,
	"devices": (*settings.State).ClearSelectedDevices,
	"token":   (*settings.State).ClearToken,
}

// newSettingsCmd works on the configured store directly, without a running
// server. Changes made while a server runs on a file store are picked up by
// its watcher.
func newSettingsCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect or clear persisted settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the persisted settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(cmd.Context(), opts, func(state *settings.State) error {
				seconds, err := state.Delay(cmd.Context(), opts.cfg.Scheduler.DefaultDelay)
				if err != nil {
					printer.Warning("%v\n", err)
				}
				devices, err := state.SelectedDevices(cmd.Context())
				if err != nil {
					return err
				}
				token, err := state.Token(cmd.Context())
				if err != nil {
					return err
				}

				printer.Field("Backend", opts.cfg.Store.Backend)
				printer.Field("Delay", fmt.Sprintf("%ds", seconds))
				printer.Field("Selected lights", joinOrNone(devices))
				printer.Field("LIFX token", maskToken(token))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "clear <delay|devices|token>...",
		Short:     "Remove persisted settings",
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: []string{"delay", "devices", "token"},
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range args {
				if _, ok := settingClearers[name]; !ok {
					return printer.Error("Unknown setting",
						fmt.Sprintf("%q is not a persisted setting.", name),
						[]string{"Use one of: delay, devices, token"})
				}
			}
			return withState(cmd.Context(), opts, func(state *settings.State) error {
				for _, name := range args {
					if err := settingClearers[name](state, cmd.Context()); err != nil {
						return fmt.Errorf("clear %s: %w", name, err)
					}
					printer.Success("Cleared %s\n", name)
				}
				return nil
			})
		},
	})
	return cmd
}

func withState(ctx context.Context, opts *cliOptions, fn func(*settings.State) error) error {
	store, err := openSettings(ctx, opts.cfg)
	if err != nil {
		return printer.Error("Failed to open settings", err.Error(), nil)
	}
	defer store.Close()
	return fn(settings.NewState(store))
}

func maskToken(token string) string {
	if token == "" {
		return "none"
	}
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}
