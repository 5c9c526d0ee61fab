//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"trpc.group/trpc-go/trpc-phone-agent/action"
	"trpc.group/trpc-go/trpc-phone-agent/agent"
	"trpc.group/trpc-go/trpc-phone-agent/device"
	"trpc.group/trpc-go/trpc-phone-agent/device/adb"
	"trpc.group/trpc-go/trpc-phone-agent/log"
	"trpc.group/trpc-go/trpc-phone-agent/memory"
	"trpc.group/trpc-go/trpc-phone-agent/model"
	"trpc.group/trpc-go/trpc-phone-agent/model/openai"
	"trpc.group/trpc-go/trpc-phone-agent/planner"
	"trpc.group/trpc-go/trpc-phone-agent/prompt"
	"trpc.group/trpc-go/trpc-phone-agent/server/debug"
	"trpc.group/trpc-go/trpc-phone-agent/skill"
	sqlitestore "trpc.group/trpc-go/trpc-phone-agent/storage/sqlite"
	"trpc.group/trpc-go/trpc-phone-agent/telemetry/metric"
)

func newRunCmd() *cobra.Command {
	var (
		serial string
		dryRun bool
		yes    bool
	)
	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run one task against a device",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task := strings.Join(args, " ")
			return runTask(cmd.Context(), task, serial, dryRun, yes)
		},
	}
	cmd.Flags().StringVarP(&serial, "serial", "s", "", "adb device serial")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "use an in-memory fake device")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "auto-confirm sensitive actions")
	return cmd
}

func runTask(parent context.Context, task, serial string, dryRun, yes bool) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		clean, err := metric.Start(ctx, metric.WithEndpoint(cfg.Metrics.Endpoint))
		if err != nil {
			log.Warnf("metrics disabled: %v", err)
		} else {
			defer func() { _ = clean() }()
		}
	}

	controller, err := buildController(serial, dryRun)
	if err != nil {
		return err
	}
	caller, err := buildCaller()
	if err != nil {
		return err
	}
	mem := memory.New(cfg.Memory.Dir)

	library := skill.NewLibrary(cfg.Skills.Dir)
	if cfg.Skills.Watch {
		go func() {
			if err := library.Watch(ctx); err != nil {
				log.Warnf("skill watcher stopped: %v", err)
			}
		}()
	}

	opts := []agent.Option{
		agent.WithMaxSteps(cfg.Agent.MaxSteps),
		agent.WithLanguage(prompt.Language(cfg.Agent.Language)),
		agent.WithSpeculation(cfg.Agent.Speculation),
		agent.WithLibrary(library),
		agent.WithPlanner(planner.New(caller, library,
			planner.WithPlanningInterval(cfg.Agent.PlanningInterval))),
	}

	handlerOpts := []action.HandlerOption{action.WithTakeover(consoleTakeover)}
	if !yes {
		handlerOpts = append(handlerOpts, action.WithConfirm(consoleConfirm))
	}
	opts = append(opts, agent.WithHandler(action.NewHandler(controller, handlerOpts...)))

	var store *sqlitestore.Store
	if cfg.Events.Enabled {
		db, err := sql.Open("sqlite", cfg.Events.Path)
		if err != nil {
			return fmt.Errorf("open event store: %w", err)
		}
		defer db.Close()
		store, err = sqlitestore.NewStore(db)
		if err != nil {
			return fmt.Errorf("init event store: %w", err)
		}
		opts = append(opts, agent.WithEventSink(store))
	}

	if cfg.Debug.Enabled {
		srv := debug.New(
			debug.WithRunStore(store),
			debug.WithMemory(mem),
			debug.WithLibrary(library),
		)
		go func() {
			if err := srv.Start(cfg.Debug.Addr); err != nil {
				log.Warnf("debug server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Stop(shutdownCtx)
		}()
	}

	a := agent.New(controller, caller, mem, opts...)
	res, err := a.Run(ctx, task)
	if err != nil {
		return err
	}

	status := "FINISHED"
	if !res.Finished {
		status = "INCOMPLETE"
	}
	fmt.Printf("\n%s after %d steps: %s\n", status, res.StepCount, res.ResultMessage)
	if !res.Finished {
		return errors.New("task did not finish")
	}
	return nil
}

func buildController(serial string, dryRun bool) (device.Controller, error) {
	if dryRun {
		log.Infof("dry run: using fake device")
		return device.NewFake(), nil
	}
	return adb.New(serial), nil
}

func buildCaller() (*model.Caller, error) {
	if cfg.Model.APIKey == "" {
		return nil, errors.New("model.api_key not configured (set PHONEAGENT_MODEL_API_KEY)")
	}
	mOpts := []openai.Option{openai.WithAPIKey(cfg.Model.APIKey)}
	if cfg.Model.BaseURL != "" {
		mOpts = append(mOpts, openai.WithBaseURL(cfg.Model.BaseURL))
	}
	return model.NewCaller(openai.New(cfg.Model.Name, mOpts...)), nil
}

// consoleConfirm asks on stdin before a sensitive action runs.
func consoleConfirm(description string) bool {
	fmt.Printf("\nSensitive action: %s\nProceed? [y/N] ", description)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}

// consoleTakeover blocks until the user finishes manual control.
func consoleTakeover(message string) {
	fmt.Printf("\nManual takeover requested: %s\nPress Enter when done...", message)
	reader := bufio.NewReader(os.Stdin)
	_, _ = reader.ReadString('\n')
}
