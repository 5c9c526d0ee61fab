//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

package skill

import (
	"context"
	"fmt"

	"trpc.group/trpc-go/trpc-phone-agent/action"
	"trpc.group/trpc-go/trpc-phone-agent/device"
	"trpc.group/trpc-go/trpc-phone-agent/log"
)

// Executor replays a skill's action sequence against the live screen.
//
// Every action gets a fresh screenshot before resolution: the screen a
// skill was recorded on and the screen it replays on drift, and stale
// coordinates are the main way replays go wrong.
type Executor struct {
	controller device.Controller
	handler    *action.Handler
	library    *Library
}

// NewExecutor creates an Executor.
func NewExecutor(controller device.Controller, handler *action.Handler, library *Library) *Executor {
	return &Executor{controller: controller, handler: handler, library: library}
}

// Execute runs the named skill with params. A nil error means every action
// in the sequence dispatched successfully.
func (e *Executor) Execute(ctx context.Context, name string, params Params) error {
	fn, meta, ok := e.library.Get(name)
	if !ok {
		return fmt.Errorf("skill %q not in library", name)
	}
	acts, err := fn(meta.WithDefaults(params))
	if err != nil {
		return fmt.Errorf("skill %s: %w", name, err)
	}
	log.Infof("skill: executing %s, %d actions", name, len(acts))

	for i, act := range acts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if act.Element != "" && act.Coords == nil {
			screen, err := e.controller.Screenshot(ctx)
			if err != nil {
				return fmt.Errorf("skill %s action %d: screenshot: %w", name, i, err)
			}
			if err := action.ResolveByPath(act, screen.Elements); err != nil {
				return fmt.Errorf("skill %s action %d: %w", name, i, err)
			}
		}
		res := e.handler.Execute(ctx, act, false)
		if !res.Success {
			return fmt.Errorf("skill %s action %d (%s): %s", name, i, act.Kind, res.Message)
		}
	}
	return nil
}
