package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sheetengine/sheetengine/internal/daemon"
	"github.com/sheetengine/sheetengine/pkg/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway daemon status",
	Run: func(cmd *cobra.Command, args []string) {
		runStatus()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running gateway daemon",
	Run: func(cmd *cobra.Command, args []string) {
		runStop()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
}

func getDaemon() *daemon.Daemon {
	return daemon.New(config.ConfigPath(), Version)
}

func runStatus() {
	d := getDaemon()
	status := d.Status()

	if !status.Running {
		fmt.Println("sheetengined: not running")
		return
	}

	fmt.Printf("sheetengined: running (PID %d, uptime %s)\n", status.PID, formatDuration(status.Uptime))
	fmt.Printf("gateway: %s:%d\n", status.GatewayHost, status.GatewayPort)
	fmt.Printf("version: %s\n", status.Version)
}

func runStop() {
	d := getDaemon()
	if !d.IsRunning() {
		fmt.Println("sheetengined: not running")
		return
	}
	if err := d.Stop(); err != nil {
		fmt.Printf("error stopping daemon: %v\n", err)
		return
	}
	fmt.Println("sheetengined: stopped")
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
