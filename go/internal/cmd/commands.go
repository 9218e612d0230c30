package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcdev12/flaglights/go/clients/flaglights_client"
	"github.com/mcdev12/flaglights/go/internal/gateway"
	"github.com/mcdev12/flaglights/go/internal/models"
	"github.com/mcdev12/flaglights/go/internal/printer"
	"github.com/mcdev12/flaglights/go/internal/trackstatus"
)

func newStatusCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current flag, delay and lights state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := opts.client().Status(cmd.Context())
			if err != nil {
				return opts.apiFailure("Failed to fetch status", err)
			}
			if opts.jsonOutput {
				return printJSON(snap)
			}
			printSnapshot(snap)
			return nil
		},
	}
}

func newActionsCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List pending and recently executed delayed actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actions, err := opts.client().Actions(cmd.Context())
			if err != nil {
				return opts.apiFailure("Failed to list actions", err)
			}
			if opts.jsonOutput {
				return printJSON(gateway.ActionsResponse{Actions: actions})
			}
			if len(actions) == 0 {
				printer.Info("No delayed actions.\n")
				return nil
			}
			for _, a := range actions {
				state := "pending"
				if a.Executed {
					state = "executed"
				}
				printer.Info("%-8s %-12s due %s  %s\n",
					a.ID.String()[:8], a.Type, a.DueAt.Local().Format(time.TimeOnly), state)
			}
			return nil
		},
	}
}

func newDelayCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delay",
		Short: "Show or change the broadcast delay",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the broadcast delay in seconds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, err := opts.client().Delay(cmd.Context())
			if err != nil {
				return opts.apiFailure("Failed to read delay", err)
			}
			if opts.jsonOutput {
				return printJSON(gateway.DelayResponse{Seconds: seconds})
			}
			printer.Info("%d\n", seconds)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <seconds>",
		Short: "Set the broadcast delay in seconds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, err := strconv.Atoi(args[0])
			if err != nil || seconds < 0 {
				return printer.Error("Invalid delay",
					fmt.Sprintf("%q is not a whole number of seconds >= 0.", args[0]),
					[]string{"Example: flaglights delay set 30"})
			}
			seconds, err = opts.client().SetDelay(cmd.Context(), seconds)
			if err != nil {
				return opts.apiFailure("Failed to set delay", err)
			}
			printer.Success("Broadcast delay set to %ds\n", seconds)
			return nil
		},
	})
	return cmd
}

func newDevicesCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List or select lights",
	}

	var refresh bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List known lights and the current selection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Devices(cmd.Context(), refresh)
			if err != nil {
				return opts.apiFailure("Failed to list devices", err)
			}
			if opts.jsonOutput {
				return printJSON(resp)
			}
			printDevices(resp)
			return nil
		},
	}
	list.Flags().BoolVar(&refresh, "refresh", false, "re-fetch the device list from LIFX first")

	selectCmd := &cobra.Command{
		Use:   "select [device-id...]",
		Short: "Replace the selection (no ids clears it)",
		RunE: func(cmd *cobra.Command, args []string) error {
			selected, err := opts.client().SelectDevices(cmd.Context(), args)
			if err != nil {
				return opts.apiFailure("Failed to select devices", err)
			}
			if len(selected) == 0 {
				printer.Warning("No lights selected\n")
				return nil
			}
			printer.Success("Selected %s\n", strings.Join(selected, ", "))
			return nil
		},
	}

	toggle := &cobra.Command{
		Use:   "toggle <device-id>",
		Short: "Add a light to the selection, or remove it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selected, err := opts.client().ToggleDevice(cmd.Context(), args[0])
			if err != nil {
				return opts.apiFailure("Failed to toggle device", err)
			}
			printer.Success("Selection: %s\n", joinOrNone(selected))
			return nil
		},
	}

	cmd.AddCommand(list, selectCmd, toggle)
	return cmd
}

func newFlagCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "flag <green|yellow|red|safety|checkered>",
		Short:     "Apply a flag to the lights now, ignoring the delay",
		Args:      cobra.ExactArgs(1),
		ValidArgs: flagNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, ok := models.ParseFlag(args[0])
			if !ok {
				return printer.Error("Unknown flag",
					fmt.Sprintf("%q is not a track flag.", args[0]),
					[]string{"Use one of: " + strings.Join(flagNames(), ", ")})
			}
			if _, err := opts.client().ApplyFlag(cmd.Context(), target); err != nil {
				return opts.apiFailure("Failed to apply flag", err)
			}
			printer.Success("Applied %s\n", printer.Flag(target))
			return nil
		},
	}
}

func newConnectCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "connect <lifx-token>",
		Short: "Connect to the LIFX HTTP API",
		Long: `Connect to the LIFX HTTP API with a personal access token from
https://cloud.lifx.com/settings. The token is stored by the server.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printer.Step("Connecting to LIFX...\n")
			if _, err := opts.client().Connect(cmd.Context(), args[0]); err != nil {
				return opts.apiFailure("Failed to connect to LIFX", err)
			}
			resp, err := opts.client().Devices(cmd.Context(), false)
			if err != nil {
				return opts.apiFailure("Connected, but failed to list devices", err)
			}
			printer.Success("Connected, %d lights found\n", len(resp.Devices))
			return nil
		},
	}
}

func newDisconnectCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Forget the LIFX token and cached devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := opts.client().Disconnect(cmd.Context()); err != nil {
				return opts.apiFailure("Failed to disconnect", err)
			}
			printer.Success("Disconnected from LIFX\n")
			return nil
		},
	}
}

func newTestMessageCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test-message",
		Short: "Inject or clear a simulated race-control message",
	}

	var req gateway.TestMessageRequest
	set := &cobra.Command{
		Use:   "set",
		Short: "Override the feed with a single message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := opts.client().InjectTestMessage(cmd.Context(), req)
			if err != nil {
				return opts.apiFailure("Failed to inject test message", err)
			}
			if opts.jsonOutput {
				return printJSON(msg)
			}
			printer.Success("Test message active: %s %s\n", msg.Category, strings.TrimSpace(msg.RawFlag()+" "+msg.Message))
			return nil
		},
	}
	set.Flags().StringVar(&req.Category, "category", "", `message category (default "Flag")`)
	set.Flags().StringVar(&req.Flag, "flag", "", "raw flag value, e.g. RED or DOUBLE YELLOW")
	set.Flags().StringVar(&req.Message, "message", "", "message text, e.g. SAFETY CAR DEPLOYED")
	set.Flags().StringVar(&req.Scope, "scope", "", `message scope (default "Track")`)

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Return to the live feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().ClearTestMessage(cmd.Context()); err != nil {
				return opts.apiFailure("Failed to clear test message", err)
			}
			printer.Success("Test message cleared\n")
			return nil
		},
	}

	cmd.AddCommand(set, clearCmd)
	return cmd
}

// apiFailure prints err with hints suited to the kind of failure.
func (o *cliOptions) apiFailure(title string, err error) error {
	var apiErr *flaglights_client.APIError
	if errors.As(err, &apiErr) {
		return printer.Error(title, apiErr.Message, nil)
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "failed to make request") {
		return printer.Error(title, err.Error(), []string{
			"Start the server with: flaglights serve",
			fmt.Sprintf("Point --api (or %s) at a running server, currently %s", APIURLEnv, o.baseURL()),
		})
	}
	return printer.Error(title, err.Error(), nil)
}

func printJSON(v any) error {
	enc := json.NewEncoder(printer.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSnapshot(snap trackstatus.Snapshot) {
	printer.Field("Flag", printer.Flag(snap.Flag))
	if snap.PendingFlag != models.FlagUnknown {
		pending := printer.Flag(snap.PendingFlag)
		if snap.PendingDueAt != nil {
			pending += fmt.Sprintf(" (due %s)", snap.PendingDueAt.Local().Format(time.TimeOnly))
		}
		printer.Field("Pending", pending)
	}
	printer.Field("Applied", printer.Flag(snap.AppliedFlag))
	printer.Field("Delay", fmt.Sprintf("%ds", snap.DelaySeconds))
	printer.Field("Session live", printer.Bool(snap.Live))
	printer.Field("Test message", printer.Bool(snap.TestMessageActive))
	printer.Field("LIFX connected", printer.Bool(snap.Connected))
	printer.Field("Selected lights", joinOrNone(snap.SelectedDevices))
	if !snap.LastPoll.IsZero() {
		printer.Field("Last poll", snap.LastPoll.Local().Format(time.TimeOnly))
	}
	if snap.FeedError != "" {
		printer.Warning("Feed: %s\n", snap.FeedError)
	}
	if snap.Error != "" {
		printer.Warning("%s\n", snap.Error)
	}
}

func printDevices(resp gateway.DevicesResponse) {
	if len(resp.Devices) == 0 {
		printer.Warning("No lights known. Run: flaglights connect <token>\n")
		return
	}
	selected := make(map[string]bool, len(resp.Selected))
	for _, id := range resp.Selected {
		selected[id] = true
	}
	for _, d := range resp.Devices {
		mark := " "
		if selected[d.ID] {
			mark = "*"
		}
		state := "offline"
		if d.Connected {
			state = d.Power
		}
		printer.Info("%s %-16s %-24s %-10s %s\n", mark, d.ID, d.Label, state, d.Group.Name)
	}
}

func flagNames() []string {
	names := make([]string, 0, len(models.AllFlags))
	for _, f := range models.AllFlags {
		names = append(names, string(f))
	}
	return names
}

func joinOrNone(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ", ")
}
