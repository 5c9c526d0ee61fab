//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

// phoneagent is the command line front end of the phone automation agent.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"trpc.group/trpc-go/trpc-phone-agent/internal/config"
	"trpc.group/trpc-go/trpc-phone-agent/log"
)

var (
	configPath string
	verbose    bool
	quiet      bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "phoneagent",
	Short: "Autonomous phone automation agent",
	Long: `phoneagent drives a phone toward natural-language tasks through an
observe-reason-act-reflect loop backed by a vision-language model.

It records episodic memory of visited screens, routes tasks through a
reusable skill library, and reflects on every action's outcome.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch {
		case quiet:
			log.SetQuiet()
		case verbose:
			log.SetLevel("debug")
		default:
			log.SetLevel("info")
		}
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "errors only")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newSkillsCmd())
	rootCmd.AddCommand(newRunsCmd())
	rootCmd.AddCommand(newDecomposeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
