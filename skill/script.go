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
	"fmt"

	"github.com/dop251/goja"

	"trpc.group/trpc-go/trpc-phone-agent/action"
)

// compileScript wraps a JavaScript skill source into a Func. The source
// must define a function named fnName taking a params object and returning
// an array of action dicts.
//
// Each invocation runs in a fresh runtime, so skills stay pure: they
// cannot accumulate state between calls or see each other.
func compileScript(fnName, src string) (Func, error) {
	program, err := goja.Compile(fnName, src, true)
	if err != nil {
		return nil, fmt.Errorf("compile skill %s: %w", fnName, err)
	}
	return func(params Params) ([]*action.Action, error) {
		vm := goja.New()
		if _, err := vm.RunProgram(program); err != nil {
			return nil, fmt.Errorf("load skill %s: %w", fnName, err)
		}
		fn, ok := goja.AssertFunction(vm.Get(fnName))
		if !ok {
			return nil, fmt.Errorf("skill source does not define function %q", fnName)
		}
		if params == nil {
			params = Params{}
		}
		ret, err := fn(goja.Undefined(), vm.ToValue(map[string]any(params)))
		if err != nil {
			return nil, fmt.Errorf("run skill %s: %w", fnName, err)
		}
		return exportActions(fnName, ret)
	}, nil
}

// exportActions converts the script return value into the action IR.
func exportActions(fnName string, v goja.Value) ([]*action.Action, error) {
	raw, ok := v.Export().([]any)
	if !ok {
		return nil, fmt.Errorf("skill %s must return an array of action dicts, got %T", fnName, v.Export())
	}
	out := make([]*action.Action, 0, len(raw))
	for i, item := range raw {
		dict, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("skill %s: result[%d] is %T, want object", fnName, i, item)
		}
		act, err := action.FromDict(dict)
		if err != nil {
			return nil, fmt.Errorf("skill %s: result[%d]: %w", fnName, i, err)
		}
		out = append(out, act)
	}
	return out, nil
}
