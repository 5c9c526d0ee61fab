//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

// Package planner routes a task between library skills and atomic
// actions, and optionally decomposes a task into tagged subtasks.
//
// Routing decisions are cached per normalized task for the lifetime of
// the run, and a model failure degrades to atomic actions instead of
// surfacing.
package planner

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"trpc.group/trpc-go/trpc-phone-agent/action"
	"trpc.group/trpc-go/trpc-phone-agent/log"
	"trpc.group/trpc-go/trpc-phone-agent/model"
	"trpc.group/trpc-go/trpc-phone-agent/prompt"
	"trpc.group/trpc-go/trpc-phone-agent/skill"
)

// Decision is the routing outcome.
type Decision string

// Routing outcomes.
const (
	DecisionUseSkill      Decision = "use_skill"
	DecisionAtomicActions Decision = "use_atomic_actions"
)

// DefaultPlanningInterval is the step cadence between replanning rounds.
const DefaultPlanningInterval = 5

// Plan is one routing decision.
type Plan struct {
	Decision    Decision
	SkillName   string
	SkillParams skill.Params
}

// Subtask is one unit of a decomposed task.
type Subtask struct {
	Description string `json:"description"`
	Tag         string `json:"tag"`
}

// TaskPlan is the result of task decomposition.
type TaskPlan struct {
	IsDecomposed bool      `json:"is_decomposed"`
	Subtasks     []Subtask `json:"subtasks"`
	CurrentIndex int       `json:"current_index"`
}

// Planner makes routing and decomposition decisions through the model.
type Planner struct {
	caller   *model.Caller
	library  *skill.Library
	interval int

	mu    sync.Mutex
	cache map[uint64]*Plan
}

// Option configures a Planner.
type Option func(*Planner)

// WithPlanningInterval overrides the replanning cadence.
func WithPlanningInterval(n int) Option {
	return func(p *Planner) {
		if n > 0 {
			p.interval = n
		}
	}
}

// New creates a Planner over a model caller and skill library.
func New(caller *model.Caller, library *skill.Library, opts ...Option) *Planner {
	p := &Planner{
		caller:   caller,
		library:  library,
		interval: DefaultPlanningInterval,
		cache:    make(map[uint64]*Plan),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval returns the replanning cadence in steps.
func (p *Planner) Interval() int { return p.interval }

func atomicPlan() *Plan { return &Plan{Decision: DecisionAtomicActions} }

// Plan routes a task. screenContext is an optional textual description of
// the current screen. Model or parse failures never propagate: the run
// proceeds on atomic actions.
func (p *Planner) Plan(ctx context.Context, task, screenContext string) *Plan {
	key := taskKey(task)
	p.mu.Lock()
	cached := p.cache[key]
	p.mu.Unlock()
	if cached != nil {
		return cached
	}

	plan, err := p.route(ctx, task, screenContext)
	if err != nil {
		log.Warnf("planner: routing failed, using atomic actions: %v", err)
		return atomicPlan()
	}
	p.mu.Lock()
	p.cache[key] = plan
	p.mu.Unlock()
	return plan
}

// Invalidate drops the cached decision for a task, forcing the next Plan
// call to consult the model again.
func (p *Planner) Invalidate(task string) {
	p.mu.Lock()
	delete(p.cache, taskKey(task))
	p.mu.Unlock()
}

func (p *Planner) route(ctx context.Context, task, screenContext string) (*Plan, error) {
	user := "Task: " + task
	if screenContext != "" {
		user += "\n\nCurrent screen:\n" + screenContext
	}
	res, err := p.caller.Call(ctx, &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage(prompt.RouterSystemPrompt(p.library.Describe())),
			model.NewUserMessage(user),
		},
		// Reflect mode keeps the body intact; the router has its own tags.
		Mode: model.ModeReflect,
	})
	if err != nil {
		return nil, err
	}
	return p.parseRouterOutput(res.Answer)
}

func (p *Planner) parseRouterOutput(raw string) (*Plan, error) {
	decision := strings.TrimSpace(extractTag(raw, "decision"))
	switch Decision(decision) {
	case DecisionAtomicActions:
		return atomicPlan(), nil
	case DecisionUseSkill:
	default:
		return nil, fmt.Errorf("router produced no usable decision: %q", decision)
	}

	execution := strings.TrimSpace(extractTag(raw, "execution"))
	if execution == "" {
		return nil, fmt.Errorf("use_skill decision without execution region")
	}
	name, args, err := action.ParseCall(execution)
	if err != nil {
		return nil, fmt.Errorf("parse execution %q: %w", execution, err)
	}
	if _, _, ok := p.library.Get(name); !ok {
		return nil, fmt.Errorf("router chose unknown skill %q", name)
	}
	return &Plan{
		Decision:    DecisionUseSkill,
		SkillName:   name,
		SkillParams: skill.Params(args),
	}, nil
}

// Decompose splits a task into tagged subtasks. Any failure falls back to
// a single general.task subtask so the loop always has a plan.
func (p *Planner) Decompose(ctx context.Context, task string) *TaskPlan {
	fallback := &TaskPlan{
		Subtasks: []Subtask{{Description: task, Tag: "general.task"}},
	}
	res, err := p.caller.Call(ctx, &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage(prompt.DecompositionSystemPrompt()),
			model.NewUserMessage("Task: " + task),
		},
		Mode: model.ModeReflect,
	})
	if err != nil {
		log.Warnf("planner: decomposition failed: %v", err)
		return fallback
	}
	obj, err := model.ExtractJSON(res.Answer)
	if err != nil {
		log.Warnf("planner: decomposition JSON: %v", err)
		return fallback
	}
	plan := parseTaskPlan(obj)
	if len(plan.Subtasks) == 0 {
		return fallback
	}
	return plan
}

func parseTaskPlan(obj map[string]any) *TaskPlan {
	plan := &TaskPlan{}
	plan.IsDecomposed, _ = obj["is_decomposed"].(bool)
	raw, _ := obj["subtasks"].([]any)
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		desc, _ := m["description"].(string)
		tag, _ := m["tag"].(string)
		if desc == "" {
			continue
		}
		if tag == "" {
			tag = "general.task"
		}
		plan.Subtasks = append(plan.Subtasks, Subtask{Description: desc, Tag: tag})
	}
	return plan
}

// extractTag returns the content of the first <tag>...</tag> region.
func extractTag(raw, tag string) string {
	open := "<" + tag + ">"
	i := strings.Index(raw, open)
	if i < 0 {
		return ""
	}
	rest := raw[i+len(open):]
	if j := strings.Index(rest, "</"+tag+">"); j >= 0 {
		return rest[:j]
	}
	return rest
}

// taskKey hashes the normalized task text.
func taskKey(task string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.Join(strings.Fields(strings.ToLower(task)), " ")))
	return h.Sum64()
}
