// Package task holds the values exchanged between executors and the orchestrator.
package task

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/danielpatrickdp/agent-boss/internal/errs"
)

// #region role

// Role names the kind of work an executor performs.
type Role string

const (
	RoleGathering Role = "gathering"
	RoleAnalysis  Role = "analysis"
	RolePlanning  Role = "planning"
)

// Roles lists the supported roles in pipeline order.
var Roles = []Role{RoleGathering, RoleAnalysis, RolePlanning}

// Valid reports whether r is a supported role.
func (r Role) Valid() bool {
	switch r {
	case RoleGathering, RoleAnalysis, RolePlanning:
		return true
	}
	return false
}

// #endregion role

// #region payload

// Payload is the role-specific result body. Roles fill the fields they own.
type Payload struct {
	Query           string            `json:"query,omitempty" yaml:"query,omitempty"`
	Summary         string            `json:"summary,omitempty" yaml:"summary,omitempty"`
	Findings        []Finding         `json:"findings,omitempty" yaml:"findings,omitempty"`
	Analysis        string            `json:"analysis,omitempty" yaml:"analysis,omitempty"`
	Insights        []string          `json:"insights,omitempty" yaml:"insights,omitempty"`
	Patterns        []string          `json:"patterns,omitempty" yaml:"patterns,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty" yaml:"recommendations,omitempty"`
	ActionPlan      []string          `json:"action_plan,omitempty" yaml:"action_plan,omitempty"`
	Extra           map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Finding is one gathered source.
type Finding struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
	URL     string `json:"url"`
}

// Serialize renders the payload as JSON for prompts and persistence.
func (p Payload) Serialize() string {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf("%+v", p)
	}
	return string(b)
}

// Text joins every value in the payload, one per line, without field names.
func (p Payload) Text() string {
	var lines []string
	add := func(s string) {
		if s != "" {
			lines = append(lines, s)
		}
	}
	add(p.Query)
	add(p.Summary)
	for _, f := range p.Findings {
		add(f.Title)
		add(f.Snippet)
		add(f.URL)
	}
	add(p.Analysis)
	for _, group := range [][]string{p.Insights, p.Patterns, p.Recommendations, p.ActionPlan} {
		for _, s := range group {
			add(s)
		}
	}
	keys := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(p.Extra[k])
	}
	return strings.Join(lines, "\n")
}

// #endregion payload

// #region output

// Output is one executor invocation's result. Construct with NewOutput.
type Output struct {
	Executor       string        `json:"executor"`
	TaskID         string        `json:"task_id"`
	Result         Payload       `json:"result"`
	SelfConfidence int           `json:"self_confidence"`
	Reasoning      string        `json:"reasoning"`
	Sources        []string      `json:"sources"`
	Elapsed        time.Duration `json:"elapsed"`
}

// NewOutput validates the confidence range and elapsed time.
func NewOutput(executor, taskID string, result Payload, selfConfidence int, reasoning string, sources []string, elapsed time.Duration) (Output, error) {
	const op = "task.NewOutput"
	if selfConfidence < 0 || selfConfidence > 100 {
		return Output{}, errs.Errorf(errs.KindValidation, op, "self confidence %d outside [0,100]", selfConfidence)
	}
	if elapsed < 0 {
		return Output{}, errs.Errorf(errs.KindValidation, op, "elapsed %s is negative", elapsed)
	}
	if executor == "" {
		return Output{}, errs.New(errs.KindValidation, op, "executor is required")
	}
	src := make([]string, len(sources))
	copy(src, sources)
	return Output{
		Executor:       executor,
		TaskID:         taskID,
		Result:         result,
		SelfConfidence: selfConfidence,
		Reasoning:      reasoning,
		Sources:        src,
		Elapsed:        elapsed,
	}, nil
}

// #endregion output

// #region context

// Prior carries the committed outputs of earlier phases. Later phases are never visible.
type Prior struct {
	Gathering *Output
	Analysis  *Output
}

// Context is what an executor receives for one invocation.
type Context struct {
	RunID       string
	TaskID      string
	Goal        string
	Description string
	Attempt     int
	Prior       Prior
}

// #endregion context
