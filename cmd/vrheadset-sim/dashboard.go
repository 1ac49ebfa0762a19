package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vrheadset-sim/internal/dashboard"
)

var dashboardOut string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards",
	Long:  "dashboard renders Grafana dashboards for the GreptimeDB packet and status tables and the Postgres event journal.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		opts := dashboard.DefaultOptions()
		if t := cfg.Sinks.Greptime.Table; t != "" {
			opts.PacketTable = t
		}
		if t := cfg.Sinks.Greptime.StatusTable; t != "" {
			opts.StatusTable = t
		}
		written, err := dashboard.Render(dashboardOut, opts)
		if err != nil {
			return err
		}
		for _, p := range written {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory")
}
