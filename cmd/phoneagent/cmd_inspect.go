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
	"database/sql"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"trpc.group/trpc-go/trpc-phone-agent/planner"
	"trpc.group/trpc-go/trpc-phone-agent/skill"
	sqlitestore "trpc.group/trpc-go/trpc-phone-agent/storage/sqlite"
)

func newSkillsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skills",
		Short: "List the skill library",
		RunE: func(cmd *cobra.Command, args []string) error {
			library := skill.NewLibrary(cfg.Skills.Dir)
			fmt.Println(library.Describe())
			return nil
		},
	}
}

func newRunsCmd() *cobra.Command {
	var limit int
	var steps string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs from the event store",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := sql.Open("sqlite", cfg.Events.Path)
			if err != nil {
				return fmt.Errorf("open event store: %w", err)
			}
			defer db.Close()
			store, err := sqlitestore.NewStore(db)
			if err != nil {
				return err
			}

			if steps != "" {
				rows, err := store.Steps(cmd.Context(), steps)
				if err != nil {
					return err
				}
				for _, r := range rows {
					fmt.Printf("%3d  %-16s ok=%-5v %s\n", r.Step, r.Kind, r.Success, r.Action.Description)
				}
				return nil
			}

			runs, err := store.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Printf("%s  %s  finished=%-5v steps=%-3d %q\n",
					r.RunID, r.StartedAt.Format("2006-01-02 15:04:05"),
					r.Finished, r.StepCount, r.Task)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.Flags().StringVar(&steps, "steps", "", "print the steps of the given run id")
	return cmd
}

func newDecomposeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decompose <task>",
		Short: "Ask the model to split a task into subtasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := buildCaller()
			if err != nil {
				return err
			}
			library := skill.NewLibrary(cfg.Skills.Dir)
			task := strings.Join(args, " ")
			plan := planner.New(caller, library).Decompose(cmd.Context(), task)
			if !plan.IsDecomposed {
				fmt.Println("task is atomic:", task)
				return nil
			}
			for i, st := range plan.Subtasks {
				fmt.Printf("%d. [%s] %s\n", i+1, st.Tag, st.Description)
			}
			return nil
		},
	}
}
