//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

package memory

import (
	"time"
)

// WorkflowRecorder borrows one workflow and appends transitions to it.
//
// The recorder buffers exactly one pending action across steps: the action
// taken at step n is completed into a transition when the node of step n+1
// is observed. Graphs are never mutated directly here.
type WorkflowRecorder struct {
	workflow *Workflow
	start    time.Time

	pendingFrom    string
	pendingAction  *WorkAction
	pendingSuccess bool
}

// Workflow returns the borrowed workflow.
func (r *WorkflowRecorder) Workflow() *Workflow {
	return r.workflow
}

// RecordAction buffers the action executed while the given node was
// displayed. Any previously pending action is completed as a self-loop
// first, so at most one action is ever pending.
func (r *WorkflowRecorder) RecordAction(fromNodeID string, action WorkAction, success bool) {
	if r.pendingAction != nil {
		r.complete(fromNodeID)
	}
	r.pendingFrom = fromNodeID
	r.pendingAction = &action
	r.pendingSuccess = success
}

// OnNewNode completes the pending transition using the newly observed node
// as its destination.
func (r *WorkflowRecorder) OnNewNode(nodeID string) {
	if r.pendingAction == nil {
		return
	}
	r.complete(nodeID)
}

// Flush completes any pending transition as a self-loop and stamps the
// workflow step count and time cost. Called when the run ends.
func (r *WorkflowRecorder) Flush() {
	if r.pendingAction != nil {
		r.complete(r.pendingFrom)
	}
	r.workflow.Step = len(r.workflow.Path)
	r.workflow.TimeCost = time.Since(r.start).Seconds()
}

func (r *WorkflowRecorder) complete(toNodeID string) {
	r.workflow.Path = append(r.workflow.Path, WorkTransition{
		FromNodeID: r.pendingFrom,
		ToNodeID:   toNodeID,
		Action:     *r.pendingAction,
		Success:    r.pendingSuccess,
	})
	r.pendingAction = nil
	r.pendingFrom = ""
}
