package main

import (
	"fmt"
	"os"

	"applogs/internal/config"

	"github.com/spf13/cobra"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const serviceName = "logdash"

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   serviceName,
		Short: "Application log analytics for the Leave Scheduler",
		Long: `logdash reads the Leave Scheduler application log API and serves
performance, security and statistics dashboards derived from it`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to the YAML configuration file")

	load := func() (*config.Config, error) {
		return config.LoadConfig(configPath)
	}

	rootCmd.AddCommand(newServeCmd(load))
	rootCmd.AddCommand(newReportCmd(load))
	rootCmd.AddCommand(newCleanupCmd(load))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

type configLoader func() (*config.Config, error)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "logdash %s\n", Version)
			if BuildTime != "unknown" {
				fmt.Fprintf(out, "Built: %s\n", BuildTime)
			}
			if GitCommit != "unknown" {
				fmt.Fprintf(out, "Commit: %s\n", GitCommit)
			}
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
