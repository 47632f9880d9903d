package main

import (
	"fmt"

	goSSO "github.com/MrEthical07/goSSO"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile       string
	logLevel         string
	disableTimestamp bool

	config goSSO.Config
	logger logrus.FieldLogger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ssoctl",
		Short: "Inspect SSO payloads and session stores",
		Long: `ssoctl loads a goSSO configuration and runs its providers from the command line.

Example usage:
  ssoctl providers --config sso.yaml
  ssoctl decode --config sso.yaml --provider corp '{"uid":"u123","name":"Alice"}'
  echo '<serviceResponse>...</serviceResponse>' | ssoctl decode -c sso.yaml -p cas
  ssoctl loadtest --sessions 10000 --concurrency 64`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.init(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&opts.disableTimestamp, "log-timestamp-off", false, "omit timestamps from log lines")

	cmd.AddCommand(
		newDecodeCmd(opts),
		newProvidersCmd(opts),
		newLoadtestCmd(opts),
	)
	return cmd
}

func (o *rootOptions) init(cmd *cobra.Command) error {
	logger, err := newLogger(cmd.ErrOrStderr(), o.disableTimestamp, o.logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	o.logger = logger

	if o.configFile == "" {
		o.config = goSSO.DefaultConfig()
		return nil
	}

	cfg, err := goSSO.LoadConfig(o.configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	o.config = cfg
	logger.WithFields(logrus.Fields{
		"file":      o.configFile,
		"providers": len(cfg.Providers),
	}).Debug("configuration loaded")
	return nil
}

// conversionClient builds a client without a session store, so commands that
// only convert payloads never need Redis.
func (o *rootOptions) conversionClient() (*goSSO.Client, error) {
	cfg := o.config
	cfg.Session.Enabled = false
	cfg.Audit.Enabled = false
	return goSSO.New().WithConfig(cfg).WithLogger(o.logger).Build()
}
