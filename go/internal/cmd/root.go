package main

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcdev12/flaglights/go/clients/flaglights_client"
	"github.com/mcdev12/flaglights/go/internal/config"
)

// APIURLEnv overrides the server address used by the client commands.
const APIURLEnv = "FLAGLIGHTS_API_URL"

type cliOptions struct {
	configPath string
	apiURL     string
	jsonOutput bool
	timeout    time.Duration

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:   "flaglights",
		Short: "Mirror the live F1 track flag onto LIFX lights",
		Long: `flaglights polls the F1 race-control feed, works out the current track
flag and replays it onto your LIFX lights after your broadcast delay, so the
room changes color when your TV does.

Run "flaglights serve" to start the service. The other commands talk to a
running server over its HTTP API.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			setupLogging(cfg.Log)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
		SilenceErrors:      true,
		SilenceUsage:       true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv(config.PathEnv), "path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.apiURL, "api", os.Getenv(APIURLEnv), "flaglights server URL (default derived from http.addr)")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print JSON instead of text")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout for client commands")

	root.AddCommand(
		newServeCmd(opts),
		newStatusCmd(opts),
		newActionsCmd(opts),
		newDelayCmd(opts),
		newDevicesCmd(opts),
		newFlagCmd(opts),
		newConnectCmd(opts),
		newDisconnectCmd(opts),
		newTestMessageCmd(opts),
		newSettingsCmd(opts),
	)
	return root
}

// client builds an API client for the server named by --api, or by the
// configured listen address.
func (o *cliOptions) client() *flaglights_client.FlaglightsClient {
	return flaglights_client.NewFlaglightsClient(o.baseURL(), o.timeout)
}

func (o *cliOptions) baseURL() string {
	if o.apiURL != "" {
		return strings.TrimRight(o.apiURL, "/")
	}
	addr := ""
	if o.cfg != nil {
		addr = o.cfg.HTTP.Addr
	}
	switch {
	case addr == "":
		return flaglights_client.DefaultBaseURL
	case strings.HasPrefix(addr, ":"):
		return "http://localhost" + addr
	case strings.HasPrefix(addr, "http://"), strings.HasPrefix(addr, "https://"):
		return addr
	}
	return "http://" + addr
}
