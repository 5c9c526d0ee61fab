//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

// Package skill manages the reusable macro library: metadata loaded from
// skill_library.json, script skills executed in an embedded JavaScript
// runtime, natively registered Go skills, and the executor that replays a
// skill's action sequence against the live screen.
package skill

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"trpc.group/trpc-go/trpc-phone-agent/action"
	"trpc.group/trpc-go/trpc-phone-agent/log"
)

// LibraryFileName is the metadata file inside the skill directory.
const LibraryFileName = "skill_library.json"

// Params is the named argument set passed to a skill invocation.
type Params map[string]any

// Func produces the abstract action sequence for one invocation.
// Element references in the result are identity paths, resolved against
// the live screen by the executor.
type Func func(params Params) ([]*action.Action, error)

// Param describes one declared skill parameter.
type Param struct {
	Name    string `json:"name"`
	Default any    `json:"default,omitempty"`
}

// Meta is the stored metadata of one skill.
type Meta struct {
	FunctionName  string   `json:"function_name"`
	Tag           string   `json:"tag"`
	Description   string   `json:"description"`
	Parameters    []Param  `json:"parameters,omitempty"`
	WorkflowCount int      `json:"workflow_count"`
	WorkflowTasks []string `json:"workflow_tasks,omitempty"`
	CreatedTime   string   `json:"created_time,omitempty"`
	FilePath      string   `json:"file_path,omitempty"`
}

// libraryFile is the on-disk shape of skill_library.json.
type libraryFile struct {
	Version     string          `json:"version"`
	CreatedTime string          `json:"created_time"`
	UpdatedTime string          `json:"updated_time"`
	Skills      map[string]Meta `json:"skills"`
}

// Library is the in-memory skill registry. Script skills reload when the
// library directory changes; native skills persist across reloads.
type Library struct {
	mu  sync.RWMutex
	dir string

	metas  map[string]Meta
	script map[string]Func
	native map[string]Func
}

// NewLibrary loads the library from dir. A missing metadata file yields an
// empty library, not an error: the agent runs fine without skills.
func NewLibrary(dir string) *Library {
	l := &Library{
		dir:    dir,
		metas:  make(map[string]Meta),
		script: make(map[string]Func),
		native: make(map[string]Func),
	}
	if err := l.Reload(); err != nil {
		log.Warnf("skill: initial library load: %v", err)
	}
	return l
}

// RegisterNative adds a Go-implemented skill. Native skills survive
// reloads and shadow script skills of the same name.
func (l *Library) RegisterNative(meta Meta, fn Func) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metas[meta.FunctionName] = meta
	l.native[meta.FunctionName] = fn
}

// Get returns the callable and metadata for a skill name.
func (l *Library) Get(name string) (Func, Meta, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if fn, ok := l.native[name]; ok {
		return fn, l.metas[name], true
	}
	if fn, ok := l.script[name]; ok {
		return fn, l.metas[name], true
	}
	return nil, Meta{}, false
}

// Names returns the registered skill names, sorted.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := make(map[string]bool, len(l.native)+len(l.script))
	for name := range l.native {
		seen[name] = true
	}
	for name := range l.script {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe renders the library for the router system prompt, one line per
// skill.
func (l *Library) Describe() string {
	names := l.Names()
	if len(names) == 0 {
		return "(no skills available)"
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	var b strings.Builder
	for _, name := range names {
		m := l.metas[name]
		params := make([]string, 0, len(m.Parameters))
		for _, p := range m.Parameters {
			if p.Default != nil {
				params = append(params, fmt.Sprintf("%s=%v", p.Name, p.Default))
			} else {
				params = append(params, p.Name)
			}
		}
		fmt.Fprintf(&b, "- %s(%s): %s [%s]\n", name, strings.Join(params, ", "), m.Description, m.Tag)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Reload re-reads skill_library.json and recompiles the script skills.
// Native registrations are untouched. Per-skill compile errors skip that
// skill with a log instead of failing the reload.
func (l *Library) Reload() error {
	path := filepath.Join(l.dir, LibraryFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read skill library: %w", err)
	}
	var file libraryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse skill library: %w", err)
	}

	metas := make(map[string]Meta, len(file.Skills))
	script := make(map[string]Func, len(file.Skills))
	for name, meta := range file.Skills {
		if meta.FunctionName == "" {
			meta.FunctionName = name
		}
		metas[name] = meta
		if meta.FilePath == "" {
			continue
		}
		src, err := os.ReadFile(filepath.Join(l.dir, meta.FilePath))
		if err != nil {
			log.Warnf("skill: read %s: %v", meta.FilePath, err)
			continue
		}
		fn, err := compileScript(meta.FunctionName, string(src))
		if err != nil {
			log.Warnf("skill: compile %s: %v", name, err)
			continue
		}
		script[name] = fn
	}

	l.mu.Lock()
	// Keep native metadata registered before or after the reload.
	for name := range l.native {
		if m, ok := l.metas[name]; ok {
			metas[name] = m
		}
	}
	l.metas = metas
	l.script = script
	l.mu.Unlock()
	log.Debugf("skill: library reloaded, %d skills", len(metas))
	return nil
}

// WithDefaults fills missing parameters from the declared defaults.
func (m Meta) WithDefaults(params Params) Params {
	out := make(Params, len(params)+len(m.Parameters))
	for k, v := range params {
		out[k] = v
	}
	for _, p := range m.Parameters {
		if _, ok := out[p.Name]; !ok && p.Default != nil {
			out[p.Name] = p.Default
		}
	}
	return out
}
