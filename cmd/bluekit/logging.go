package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/bluekit/pkg/config"
)

// configureLogger builds the command logger. The --log-level flag takes
// precedence over the configured level; with neither, the config default
// keeps commands quiet except for warnings.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	if flagLevel, _ := cmd.Flags().GetString("log-level"); flagLevel != "" {
		cfg.LogLevel = flagLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg.NewLogger()
}
