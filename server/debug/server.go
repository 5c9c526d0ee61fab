//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

// Package debug provides a read-only HTTP surface over agent state: run
// history, episodic memory statistics and the skill library. It is meant
// for local inspection while an agent suite runs.
package debug

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"trpc.group/trpc-go/trpc-phone-agent/log"
	"trpc.group/trpc-go/trpc-phone-agent/memory"
	"trpc.group/trpc-go/trpc-phone-agent/skill"
	sqlitestore "trpc.group/trpc-go/trpc-phone-agent/storage/sqlite"
)

// Server exposes the debug endpoints on a mux router.
type Server struct {
	router  *mux.Router
	store   *sqlitestore.Store
	mem     *memory.ActionMemory
	library *skill.Library

	httpServer *http.Server
}

// Option configures the Server.
type Option func(*Server)

// WithRunStore attaches the SQLite run-event store backing /api/runs.
func WithRunStore(store *sqlitestore.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithMemory attaches the episodic memory backing /api/memory.
func WithMemory(mem *memory.ActionMemory) Option {
	return func(s *Server) { s.mem = mem }
}

// WithLibrary attaches the skill library backing /api/skills.
func WithLibrary(l *skill.Library) Option {
	return func(s *Server) { s.library = l }
}

// New creates a debug server. Endpoints whose backing component is absent
// answer 404.
func New(opts ...Option) *Server {
	s := &Server{router: mux.NewRouter()}
	for _, opt := range opts {
		opt(s)
	}
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	s.router.Use(c.Handler)
	s.registerRoutes()
	return s
}

// Handler returns the underlying HTTP handler, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves on addr until Stop.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Infof("debug server listening on %s", addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/runs", s.handleRuns).Methods(http.MethodGet)
	s.router.HandleFunc("/api/runs/{id}/steps", s.handleRunSteps).Methods(http.MethodGet)
	s.router.HandleFunc("/api/memory", s.handleMemory).Methods(http.MethodGet)
	s.router.HandleFunc("/api/skills", s.handleSkills).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

type runView struct {
	RunID         string    `json:"run_id"`
	Task          string    `json:"task"`
	StartedAt     time.Time `json:"started_at"`
	Finished      bool      `json:"finished"`
	StepCount     int       `json:"step_count"`
	ResultMessage string    `json:"result_message,omitempty"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.NotFound(w, r)
		return
	}
	rows, err := s.store.Runs(r.Context(), 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]runView, 0, len(rows))
	for _, row := range rows {
		views = append(views, runView{
			RunID:         row.RunID,
			Task:          row.Task,
			StartedAt:     row.StartedAt,
			Finished:      row.Finished,
			StepCount:     row.StepCount,
			ResultMessage: row.ResultMessage,
		})
	}
	writeJSON(w, views)
}

type stepView struct {
	Step    int               `json:"step"`
	Kind    memory.ActionKind `json:"kind"`
	Success bool              `json:"success"`
	Action  memory.WorkAction `json:"action"`
}

func (s *Server) handleRunSteps(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.NotFound(w, r)
		return
	}
	runID := mux.Vars(r)["id"]
	rows, err := s.store.Steps(r.Context(), runID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]stepView, 0, len(rows))
	for _, row := range rows {
		views = append(views, stepView{
			Step: row.Step, Kind: row.Kind, Success: row.Success, Action: row.Action,
		})
	}
	writeJSON(w, views)
}

type graphView struct {
	App   string `json:"app"`
	Nodes int    `json:"nodes"`
}

type memoryView struct {
	Graphs              []graphView `json:"graphs"`
	HistoricalWorkflows int         `json:"historical_workflows"`
}

func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	if s.mem == nil {
		http.NotFound(w, r)
		return
	}
	view := memoryView{
		Graphs:              []graphView{},
		HistoricalWorkflows: len(s.mem.HistoricalWorkflows()),
	}
	for app, g := range s.mem.RuntimeGraphs() {
		view.Graphs = append(view.Graphs, graphView{App: app, Nodes: len(g.Nodes)})
	}
	writeJSON(w, view)
}

func (s *Server) handleSkills(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]any{
		"names":       s.library.Names(),
		"description": s.library.Describe(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("debug server: encode response: %v", err)
	}
}
