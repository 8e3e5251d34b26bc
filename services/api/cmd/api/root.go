package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"surfsense/internal/util"
	"surfsense/services/api/internal/config"
)

func newRootCommand() *cobra.Command {
	var configPath string
	load := func() (config.FileConfig, error) {
		path := configPath
		if strings.TrimSpace(path) == "" {
			path = os.Getenv("CONFIG_PATH")
		}
		cfg, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		util.InitLogger(cfg.LogLevel)
		return cfg, nil
	}

	serve := newServeCommand(load)
	root := &cobra.Command{
		Use:           "surfsense",
		Short:         "SurfSense API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file path (default config.yaml or $CONFIG_PATH)")
	root.AddCommand(serve, newMigrateCommand(load), newSweepCommand(load))
	return root
}

type configLoader func() (config.FileConfig, error)
