//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

// Package agent runs the perceive-decide-act-reflect loop that drives a
// phone toward a natural-language task.
//
// One Agent owns one device controller, one structured context and one
// memory view; independent agents can run in parallel as long as they do
// not share a controller or a memory directory.
package agent

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-phone-agent/action"
	"trpc.group/trpc-go/trpc-phone-agent/analyzer"
	"trpc.group/trpc-go/trpc-phone-agent/device"
	"trpc.group/trpc-go/trpc-phone-agent/log"
	"trpc.group/trpc-go/trpc-phone-agent/memory"
	"trpc.group/trpc-go/trpc-phone-agent/model"
	"trpc.group/trpc-go/trpc-phone-agent/planner"
	"trpc.group/trpc-go/trpc-phone-agent/prompt"
	"trpc.group/trpc-go/trpc-phone-agent/reflection"
	"trpc.group/trpc-go/trpc-phone-agent/skill"
	"trpc.group/trpc-go/trpc-phone-agent/speculation"
	"trpc.group/trpc-go/trpc-phone-agent/uielement"
)

// DefaultMaxSteps bounds a run when no explicit budget is configured.
const DefaultMaxSteps = 25

// RunResult is what a finished (or aborted) run reports back.
type RunResult struct {
	// Finished is true when the loop ended through a successful Finish,
	// false on budget exhaustion, cancellation, or a denied
	// sensitive-action confirmation.
	Finished bool
	// Actions lists every executed action, in order.
	Actions []memory.WorkAction
	// ResultMessage is the final status text.
	ResultMessage string
	// StepCount is the number of executed steps.
	StepCount int
}

// EventSink receives run lifecycle events, e.g. for SQLite persistence.
type EventSink interface {
	RunStarted(ctx context.Context, runID, task string) error
	StepExecuted(ctx context.Context, runID string, step int, act memory.WorkAction, success bool) error
	RunFinished(ctx context.Context, runID string, finished bool, stepCount int, resultMessage string) error
}

// Agent drives one device through tasks.
type Agent struct {
	controller device.Controller
	caller     *model.Caller
	mem        *memory.ActionMemory
	handler    *action.Handler
	analyzer   *analyzer.ErrorAnalyzer
	planner    *planner.Planner
	library    *skill.Library
	skills     *skill.Executor
	reflector  *reflection.Engine
	predictor  *speculation.Predictor
	events     EventSink

	maxSteps    int
	language    prompt.Language
	speculateOn bool
}

// Option configures an Agent.
type Option func(*Agent)

// WithMaxSteps sets the hard step budget per run.
func WithMaxSteps(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxSteps = n
		}
	}
}

// WithHandler overrides the action handler, e.g. to install confirmation
// and takeover callbacks.
func WithHandler(h *action.Handler) Option {
	return func(a *Agent) { a.handler = h }
}

// WithPlanner overrides the default planner.
func WithPlanner(p *planner.Planner) Option {
	return func(a *Agent) { a.planner = p }
}

// WithReflector overrides the default reflection engine.
func WithReflector(r *reflection.Engine) Option {
	return func(a *Agent) { a.reflector = r }
}

// WithLibrary installs a skill library.
func WithLibrary(l *skill.Library) Option {
	return func(a *Agent) { a.library = l }
}

// WithEventSink installs a run event sink.
func WithEventSink(s EventSink) Option {
	return func(a *Agent) { a.events = s }
}

// WithLanguage sets the prompt language.
func WithLanguage(lang prompt.Language) Option {
	return func(a *Agent) { a.language = lang }
}

// WithSpeculation toggles the speculative context path.
func WithSpeculation(on bool) Option {
	return func(a *Agent) { a.speculateOn = on }
}

// New assembles an agent over a controller, model caller and memory.
func New(controller device.Controller, caller *model.Caller, mem *memory.ActionMemory, opts ...Option) *Agent {
	a := &Agent{
		controller:  controller,
		caller:      caller,
		mem:         mem,
		analyzer:    analyzer.New(),
		maxSteps:    DefaultMaxSteps,
		language:    prompt.LanguageEnglish,
		speculateOn: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.handler == nil {
		a.handler = action.NewHandler(controller)
	}
	if a.library == nil {
		a.library = skill.NewLibrary("skills")
	}
	if a.planner == nil {
		a.planner = planner.New(caller, a.library)
	}
	if a.skills == nil {
		a.skills = skill.NewExecutor(controller, a.handler, a.library)
	}
	if a.reflector == nil {
		a.reflector = reflection.New(caller)
	}
	if a.predictor == nil {
		a.predictor = speculation.New(mem)
	}
	return a
}

// runState is the per-run mutable state of the loop.
type runState struct {
	runID    string
	task     string
	workflow *memory.Workflow
	recorder *memory.WorkflowRecorder
	pctx     *prompt.StructuredContext

	step            int
	actions         []memory.WorkAction
	cachedScreen    *device.Screenshot
	postSkillFlag   bool
	executedSkills  map[string]bool
	lastPlanStep    int
	planningDone    bool
	finished        bool
	resultMessage   string
	currentApp      string
	currentNodeID   string
	currentElements []uielement.Element
}

// Run executes one task to completion, budget exhaustion or cancellation.
// The recorder is flushed and memory persisted on every exit path.
func (a *Agent) Run(ctx context.Context, task string) (*RunResult, error) {
	if err := a.mem.LoadFromStore(ctx, task); err != nil {
		log.Warnf("agent: load memory: %v", err)
	}
	st := &runState{
		runID:          uuid.NewString(),
		task:           task,
		workflow:       a.mem.CreateWorkflow(ctx, task),
		pctx:           prompt.NewStructuredContext(prompt.WithLanguage(a.language)),
		executedSkills: make(map[string]bool),
		lastPlanStep:   -1,
	}
	st.recorder = a.mem.NewRecorder(st.workflow)
	st.pctx.SetTask(task)
	a.emitRunStarted(ctx, st)

	for st.step < a.maxSteps {
		if ctx.Err() != nil {
			st.resultMessage = "run cancelled: " + ctx.Err().Error()
			break
		}
		done := a.runStep(ctx, st)
		st.step++
		if done {
			break
		}
	}
	if !st.finished && st.resultMessage == "" {
		st.resultMessage = fmt.Sprintf("step budget of %d exhausted", a.maxSteps)
	}

	st.recorder.Flush()
	if err := a.mem.Persist(); err != nil {
		log.Errorf("agent: persist memory: %v", err)
	}
	res := &RunResult{
		Finished:      st.finished,
		Actions:       st.actions,
		ResultMessage: st.resultMessage,
		StepCount:     st.step,
	}
	a.emitRunFinished(ctx, st, res)
	log.Infof("agent: run %s finished=%v steps=%d: %s", st.runID, res.Finished, res.StepCount, res.ResultMessage)
	return res, nil
}

// runStep executes one loop iteration and reports whether the run is over.
func (a *Agent) runStep(ctx context.Context, st *runState) bool {
	screen := a.observe(ctx, st)

	// Planning may answer the whole step with a skill execution.
	if handled, done := a.planAndMaybeRunSkill(ctx, st, screen); handled {
		return done
	}

	act, thinking, raw := a.decideAction(ctx, st, screen)
	wa := act.ToWorkAction()

	if guidance := a.analyzer.GetPreventionGuidance(wa, a.uiContext(st)); guidance != "" {
		log.Infof("agent: step %d %s", st.step, guidance)
	}
	if act.Coords == nil && act.Element != "" {
		if err := action.Resolve(act, screen.Elements); err != nil {
			log.Warnf("agent: step %d: %v", st.step, err)
		}
	}

	result := a.handler.Execute(ctx, act, screen.IsSensitive)
	finishing := act.Kind == memory.KindFinish || result.ShouldFinish

	var rec *memory.ReflectionRecord
	var after *device.Screenshot
	if !finishing {
		after = a.capture(ctx, screen)
		st.cachedScreen = after
		rec = a.reflector.Reflect(ctx, screen, after, wa, false, result.Success)
		wa.Reflection = rec
		wa.Confidence = rec.Confidence
	}

	success := result.Success
	if rec != nil && rec.ActionSuccessful == memory.TristateFalse {
		success = false
		a.analyzer.AnalyzeFailure(wa, rec, a.uiContext(st))
	}
	a.analyzer.RecordActionResult(wa, success)

	st.recorder.RecordAction(st.currentNodeID, wa, success)
	st.actions = append(st.actions, wa)
	a.emitStep(ctx, st, wa, success)

	st.pctx.AddHistory(prompt.HistoryEntry{
		Step:              st.step,
		Thinking:          thinking,
		ActionDescription: wa.Description,
		ActionCode:        raw,
		Success:           success,
	})
	if rec != nil {
		st.pctx.AddReflection(prompt.ReflectionEntry{
			Step:       st.step,
			Message:    reflectionMessage(rec),
			Success:    rec.ActionSuccessful != memory.TristateFalse,
			Confidence: rec.Confidence,
		})
	}
	st.pctx.EndStep()

	log.Infof("agent: step %d %s success=%v", st.step, wa.Description, success)
	if finishing {
		// A terminating step only counts as task completion when the
		// handler reports success; a denied sensitive-action
		// confirmation ends the run unfinished.
		st.finished = result.Success
		st.resultMessage = result.Message
		if st.resultMessage == "" {
			st.resultMessage = "finished"
		}
		return true
	}
	return false
}

// observe returns this step's screen, reusing the post-action capture of
// the previous step when present, and records the node visit.
func (a *Agent) observe(ctx context.Context, st *runState) *device.Screenshot {
	var screen *device.Screenshot
	if st.cachedScreen != nil && st.step > 0 {
		screen = st.cachedScreen
		st.cachedScreen = nil
	} else {
		screen = a.capture(ctx, nil)
	}
	st.currentElements = screen.Elements

	if app, err := a.controller.CurrentApp(ctx); err == nil && app != "" {
		st.currentApp = app
	}
	graph := a.mem.GetOrCreateGraph(st.currentApp)
	node := graph.CreateNode(elementInfos(screen.Elements), st.task)
	st.recorder.OnNewNode(node.ID)
	st.currentNodeID = node.ID
	return screen
}

// capture takes a screenshot, degrading to the black fallback on failure.
// prev, when non-nil, supplies the fallback dimensions.
func (a *Agent) capture(ctx context.Context, prev *device.Screenshot) *device.Screenshot {
	screen, err := a.controller.Screenshot(ctx)
	if err != nil {
		log.Warnf("agent: screenshot failed, using fallback: %v", err)
		w, h := 0, 0
		if prev != nil {
			w, h = prev.Width, prev.Height
		}
		return device.FallbackScreenshot(w, h)
	}
	return screen
}

// planAndMaybeRunSkill runs the planner on its cadence and executes a
// routed skill. It reports (handled, done): handled means the step is
// complete without an atomic action.
func (a *Agent) planAndMaybeRunSkill(ctx context.Context, st *runState, screen *device.Screenshot) (bool, bool) {
	if st.postSkillFlag {
		// Post-skill verification step: no planning, let the model look
		// at the outcome first.
		st.postSkillFlag = false
		return false, false
	}
	due := st.step == 0 ||
		st.step-st.lastPlanStep >= a.planner.Interval() ||
		!st.planningDone
	if !due {
		return false, false
	}

	plan := a.planner.Plan(ctx, st.task, screenDescription(screen))
	st.lastPlanStep = st.step
	st.planningDone = true
	if plan.Decision != planner.DecisionUseSkill || st.executedSkills[plan.SkillName] {
		return false, false
	}

	st.executedSkills[plan.SkillName] = true
	if err := a.skills.Execute(ctx, plan.SkillName, plan.SkillParams); err != nil {
		log.Warnf("agent: skill %s failed, falling through to atomic actions: %v", plan.SkillName, err)
		return false, false
	}

	after := a.capture(ctx, screen)
	st.cachedScreen = after
	wa := memory.WorkAction{
		Kind:        memory.KindSkillExecution,
		SkillName:   plan.SkillName,
		Description: fmt.Sprintf("SkillExecution %s", plan.SkillName),
	}
	rec := a.reflector.Reflect(ctx, screen, after, wa, true, true)
	wa.Reflection = rec
	wa.Confidence = rec.Confidence
	success := rec.ActionSuccessful != memory.TristateFalse

	st.recorder.RecordAction(st.currentNodeID, wa, success)
	st.actions = append(st.actions, wa)
	a.emitStep(ctx, st, wa, success)
	st.pctx.AddHistory(prompt.HistoryEntry{
		Step:              st.step,
		ActionDescription: wa.Description,
		ActionCode:        fmt.Sprintf("skill(%s)", plan.SkillName),
		Success:           success,
	})
	st.pctx.AddReflection(prompt.ReflectionEntry{
		Step:       st.step,
		Message:    reflectionMessage(rec),
		Success:    success,
		Confidence: rec.Confidence,
	})
	st.pctx.EndStep()
	st.postSkillFlag = true
	log.Infof("agent: step %d executed skill %s success=%v", st.step, plan.SkillName, success)
	return true, false
}

// decideAction builds the prompt, optionally speculates, and asks the
// model for the next action. Model or parse failures coerce to Finish so
// the loop ends deterministically.
func (a *Agent) decideAction(ctx context.Context, st *runState, screen *device.Screenshot) (*action.Action, string, string) {
	st.pctx.SetScreenshot(&model.Image{Data: screen.PNG, Format: "png"})
	st.pctx.SetScreenInfo(buildScreenInfo(st.currentApp, screen.Elements))

	mode := model.ModeAction
	if a.speculateOn {
		if spec := a.predictor.Speculate(st.currentApp, elementInfos(screen.Elements)); spec != "" {
			st.pctx.SetVariant(prompt.VariantPrediction)
			st.pctx.SetSpeculative(spec)
			mode = model.ModePredict
		}
	}

	res, err := a.caller.Call(ctx, &model.Request{Messages: st.pctx.Render(), Mode: mode})
	if err != nil {
		log.Errorf("agent: model call failed: %v", err)
		return finishAction("model error: " + err.Error()), "", ""
	}
	act, err := action.Parse(res.Answer)
	if err != nil {
		log.Errorf("agent: unparseable action %q: %v", res.Answer, err)
		return finishAction("action parse error: " + err.Error()), res.Thinking, res.Answer
	}
	return act, res.Thinking, res.Answer
}

func finishAction(msg string) *action.Action {
	return &action.Action{Kind: memory.KindFinish, Message: msg}
}

func (a *Agent) uiContext(st *runState) analyzer.UIContext {
	return analyzer.UIContext{App: st.currentApp, ElementCount: len(st.currentElements)}
}

func (a *Agent) emitRunStarted(ctx context.Context, st *runState) {
	if a.events == nil {
		return
	}
	if err := a.events.RunStarted(ctx, st.runID, st.task); err != nil {
		log.Warnf("agent: event sink: %v", err)
	}
}

func (a *Agent) emitStep(ctx context.Context, st *runState, wa memory.WorkAction, success bool) {
	if a.events == nil {
		return
	}
	if err := a.events.StepExecuted(ctx, st.runID, st.step, wa, success); err != nil {
		log.Warnf("agent: event sink: %v", err)
	}
}

func (a *Agent) emitRunFinished(ctx context.Context, st *runState, res *RunResult) {
	if a.events == nil {
		return
	}
	if err := a.events.RunFinished(ctx, st.runID, res.Finished, res.StepCount, res.ResultMessage); err != nil {
		log.Warnf("agent: event sink: %v", err)
	}
}

// buildScreenInfo projects elements into the indexed screen description
// the model references actions against.
func buildScreenInfo(app string, elems []uielement.Element) *prompt.ScreenInfo {
	info := &prompt.ScreenInfo{CurrentApp: app, Elements: make([]prompt.ElementInfo, 0, len(elems))}
	for i := range elems {
		e := &elems[i]
		label := e.ResourceID
		if label == "" {
			label = e.Text
		}
		info.Elements = append(info.Elements, prompt.ElementInfo{
			Index:     "A" + strconv.Itoa(i),
			ClassName: e.ClassName,
			Label:     label,
			Bounds:    [4]int{e.Bounds.X1, e.Bounds.Y1, e.Bounds.X2, e.Bounds.Y2},
		})
	}
	return info
}

// screenDescription renders a compact element listing for the router.
func screenDescription(screen *device.Screenshot) string {
	if screen == nil || len(screen.Elements) == 0 {
		return ""
	}
	out := ""
	for i := range screen.Elements {
		e := &screen.Elements[i]
		out += e.Describe("A"+strconv.Itoa(i)) + "\n"
	}
	return out
}

func elementInfos(elems []uielement.Element) []uielement.Info {
	out := make([]uielement.Info, 0, len(elems))
	for i := range elems {
		out = append(out, elems[i].Info())
	}
	return out
}

func reflectionMessage(rec *memory.ReflectionRecord) string {
	switch rec.ActionSuccessful {
	case memory.TristateTrue:
		if rec.InterfaceChanges != "" {
			return "action succeeded: " + rec.InterfaceChanges
		}
		return "action succeeded"
	case memory.TristateFalse:
		msg := "action failed"
		if rec.AbnormalStates != "" {
			msg += ": " + rec.AbnormalStates
		}
		if rec.ImprovementSuggestions != "" {
			msg += " (try: " + rec.ImprovementSuggestions + ")"
		}
		return msg
	default:
		return "action outcome unclear: " + rec.Reasoning
	}
}
