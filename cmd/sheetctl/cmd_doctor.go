package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sheetengine/sheetengine/internal/daemon"
	"github.com/sheetengine/sheetengine/internal/sheetdb"
	"github.com/sheetengine/sheetengine/pkg/config"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, category directory, and a category database",
	Run: func(cmd *cobra.Command, args []string) {
		runDoctor()
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor() {
	fmt.Println("sheetctl doctor")
	fmt.Println("===============")
	allOK := true

	fmt.Print("configuration... ")
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		allOK = false
	} else if err := cfg.Validate(); err != nil {
		fmt.Printf("INVALID: %v\n", err)
		allOK = false
	} else {
		fmt.Println("OK")
	}

	fmt.Print("category directory... ")
	if cfg != nil {
		if _, err := os.Stat(cfg.Database.CategoryDir); os.IsNotExist(err) {
			fmt.Println("NOT CREATED (will be created on first use)")
		} else {
			fmt.Println("OK")
		}
	}

	fmt.Print("gateway daemon... ")
	d := daemon.New(config.ConfigPath(), Version)
	status := d.Status()
	if status.Running {
		fmt.Printf("running (PID %d, %s:%d)\n", status.PID, status.GatewayHost, status.GatewayPort)
	} else {
		fmt.Println("not running")
	}

	if category != "" && cfg != nil {
		fmt.Printf("category %q database... ", category)
		path := cfg.DatabasePath(category)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			fmt.Println("NOT CREATED")
		} else {
			conn, err := sheetdb.WriterConn(path)
			if err != nil {
				fmt.Printf("ERROR: %v\n", err)
				allOK = false
			} else {
				sheets, err := sheetdb.ListMainSheets(conn)
				conn.Close()
				if err != nil {
					fmt.Printf("ERROR: %v\n", err)
					allOK = false
				} else {
					fmt.Printf("OK (%d sheet(s))\n", len(sheets))
				}
			}
		}
	}

	if !allOK {
		os.Exit(1)
	}
}
