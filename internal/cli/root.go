package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ad/personsearch/internal/config"
	"github.com/ad/personsearch/internal/logger"
	"github.com/ad/personsearch/internal/manticore"
	"github.com/ad/personsearch/internal/search"
)

var (
	flagLogLevel  string
	flagLogFormat string
	flagDebug     bool
	flagIndex     string

	cfg *config.Config
	log zerolog.Logger
)

// NewRootCmd creates the root command for the personsearch binary
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:     "personsearch",
		Short:   "Paged people search backed by Manticore",
		Long:    "personsearch serves a paged search API over a Manticore index of people and manages that index.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}

			if flagDebug {
				flagLogLevel = "debug"
			}
			if flagLogLevel != "" {
				cfg.Log.Level = flagLogLevel
			}
			if flagLogFormat != "" {
				cfg.Log.Format = flagLogFormat
			}
			if flagIndex != "" {
				cfg.Manticore.Index = flagIndex
				if err := cfg.Manticore.Validate(); err != nil {
					return err
				}
			}
			// stdout carries command output everywhere except serve
			if cmd.Name() != "serve" {
				cfg.Log.OutputTarget = "stderr"
			}
			cfg.Log.ServiceVersion = version

			log, err = logger.New(&cfg.Log)
			if err != nil {
				return err
			}
			if cfg.EnvFileLoaded {
				log.Debug().Msg("loaded .env file")
			}
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format (json, console)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagIndex, "index", "", "Manticore index name (overrides MANTICORE_INDEX)")

	root.AddCommand(
		newServeCmd(),
		newCreateIndexCmd(),
		newDeleteIndexCmd(),
		newStatusCmd(),
		newLoadCmd(),
		newQueryCmd(),
	)

	return root
}

// newProvider connects to Manticore and wraps the client in a search provider.
// The caller closes the returned client.
func newProvider() (*search.Provider, *manticore.Client, error) {
	client, err := manticore.NewClient(cfg.Manticore, log)
	if err != nil {
		return nil, nil, fmt.Errorf("create manticore client: %w", err)
	}

	provider, err := search.NewProvider(client, cfg.Paging, log)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return provider, client, nil
}
