//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

// Package memory provides the episodic memory of the agent: app-scoped
// graphs of observed UI states and task-scoped workflows over them, with a
// JSON on-disk store and a dual runtime/historical view.
package memory

import (
	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-phone-agent/uielement"
)

// ActionKind tags a recorded or proposed action.
type ActionKind string

// Action kinds stored in work actions.
const (
	KindTap            ActionKind = "Tap"
	KindLongPress      ActionKind = "Long Press"
	KindDoubleTap      ActionKind = "Double Tap"
	KindSwipe          ActionKind = "Swipe"
	KindType           ActionKind = "Type"
	KindLaunch         ActionKind = "Launch"
	KindBack           ActionKind = "Back"
	KindHome           ActionKind = "Home"
	KindWait           ActionKind = "Wait"
	KindTakeOver       ActionKind = "Take_over"
	KindInteract       ActionKind = "Interact"
	KindNote           ActionKind = "Note"
	KindCallAPI        ActionKind = "Call_API"
	KindFinish         ActionKind = "Finish"
	KindSkillExecution ActionKind = "SkillExecution"
)

// Tristate is a success judgment that may be undecided.
type Tristate string

// Tristate values.
const (
	TristateTrue    Tristate = "true"
	TristateFalse   Tristate = "false"
	TristateUnknown Tristate = "unknown"
)

// ExecutionResult grades how an action turned out.
type ExecutionResult string

// Execution results reported by reflection.
const (
	ResultSuccess        ExecutionResult = "success"
	ResultPartialSuccess ExecutionResult = "partial_success"
	ResultFailure        ExecutionResult = "failure"
)

// ReflectionRecord is the post-action judgment attached to a work action.
type ReflectionRecord struct {
	ActionSuccessful       Tristate        `json:"action_successful"`
	ExecutionResult        ExecutionResult `json:"execution_result"`
	InterfaceChanges       string          `json:"interface_changes,omitempty"`
	GoalAchievement        string          `json:"goal_achievement,omitempty"`
	AbnormalStates         string          `json:"abnormal_states,omitempty"`
	ImprovementSuggestions string          `json:"improvement_suggestions,omitempty"`
	Confidence             float64         `json:"confidence"`
	Reasoning              string          `json:"reasoning,omitempty"`
	UsedModelAnalysis      bool            `json:"used_model_analysis"`
	ElementsBefore         int             `json:"elements_before"`
	ElementsAfter          int             `json:"elements_after"`
}

// WorkAction is a recorded or proposed action.
//
// Direction and Distance are present iff Kind is Swipe; Text is present iff
// Kind is Type.
type WorkAction struct {
	Kind        ActionKind        `json:"kind"`
	Description string            `json:"description"`
	ZonePath    string            `json:"zone_path,omitempty"`
	Direction   string            `json:"direction,omitempty"`
	Distance    string            `json:"distance,omitempty"`
	Text        string            `json:"text,omitempty"`
	SkillName   string            `json:"skill_name,omitempty"`
	Reflection  *ReflectionRecord `json:"reflection_result,omitempty"`
	Confidence  float64           `json:"confidence_score,omitempty"`
}

// WorkNode is a screen state identified by its normalized element set.
// Within a graph two nodes are equal iff their ElementsInfo are equal.
type WorkNode struct {
	ID           string           `json:"id"`
	ElementsInfo []uielement.Info `json:"elements_info"`
	Tasks        []string         `json:"tasks,omitempty"`
	Actions      []WorkAction     `json:"actions,omitempty"`
	Tag          string           `json:"tag,omitempty"`
}

// AddTask records a task string on the node, keeping set semantics.
func (n *WorkNode) AddTask(task string) {
	if task == "" {
		return
	}
	for _, t := range n.Tasks {
		if t == task {
			return
		}
	}
	n.Tasks = append(n.Tasks, task)
}

// sameElements reports ordered equality of two identity projections.
func sameElements(a, b []uielement.Info) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// WorkGraph is an app-scoped node collection.
type WorkGraph struct {
	App   string               `json:"app"`
	Nodes map[string]*WorkNode `json:"nodes"`
}

// NewWorkGraph creates an empty graph for the app.
func NewWorkGraph(app string) *WorkGraph {
	return &WorkGraph{App: app, Nodes: make(map[string]*WorkNode)}
}

// CreateNode returns the node matching the element set, creating it when
// unseen. The operation is idempotent on content: two calls with the same
// elements yield the same node.
func (g *WorkGraph) CreateNode(elems []uielement.Info, task string) *WorkNode {
	if n := g.FindNode(elems); n != nil {
		n.AddTask(task)
		return n
	}
	n := &WorkNode{
		ID:           uuid.NewString(),
		ElementsInfo: elems,
	}
	n.AddTask(task)
	g.Nodes[n.ID] = n
	return n
}

// FindNode returns the node with the given element set, or nil.
func (g *WorkGraph) FindNode(elems []uielement.Info) *WorkNode {
	for _, n := range g.Nodes {
		if sameElements(n.ElementsInfo, elems) {
			return n
		}
	}
	return nil
}

// Node returns a node by id, or nil.
func (g *WorkGraph) Node(id string) *WorkNode {
	return g.Nodes[id]
}

// WorkTransition is a directed edge with provenance.
type WorkTransition struct {
	FromNodeID string     `json:"from_node_id"`
	ToNodeID   string     `json:"to_node_id"`
	Action     WorkAction `json:"action"`
	Success    bool       `json:"success"`
}

// Workflow is an ordered path through transitions taken for one task.
// The path is append-only during execution and adjacent transitions are
// contiguous: path[i].ToNodeID == path[i+1].FromNodeID.
type Workflow struct {
	ID            string           `json:"id"`
	Tag           string           `json:"tag,omitempty"`
	TagEmbedding  []float64        `json:"tag_embedding,omitempty"`
	Task          string           `json:"task"`
	TaskEmbedding []float64        `json:"task_embedding,omitempty"`
	Step          int              `json:"step"`
	TimeCost      float64          `json:"timecost"`
	Path          []WorkTransition `json:"path"`
}

// NodeIDs returns the set of node ids referenced by the workflow path.
func (w *Workflow) NodeIDs() map[string]bool {
	ids := make(map[string]bool, len(w.Path)*2)
	for _, t := range w.Path {
		if t.FromNodeID != "" {
			ids[t.FromNodeID] = true
		}
		if t.ToNodeID != "" {
			ids[t.ToNodeID] = true
		}
	}
	return ids
}
