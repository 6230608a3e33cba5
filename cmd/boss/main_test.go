package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/agent-boss/internal/memory"
	"github.com/danielpatrickdp/agent-boss/internal/reflection"
	"github.com/danielpatrickdp/agent-boss/internal/replay"
	"github.com/danielpatrickdp/agent-boss/internal/task"
)

func writeConfig(t *testing.T, dbPath string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "boss.yaml")
	body := "llm:\n  provider: none\nlogging:\n  level: error\nmemory:\n  path: " + dbPath + "\norchestrator:\n  max_retries: 1\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func seedStore(t *testing.T) (string, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "boss.db")
	store, err := memory.NewStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	run, err := store.CreateRun("compare managed postgres vendors")
	require.NoError(t, err)
	require.NoError(t, store.RecordScore(memory.ScoreRecord{
		RunID: run.ID, TaskID: run.ID + "_research_agent", Executor: "research_agent",
		SelfScore: 82, SecondScore: 70,
	}))
	require.NoError(t, store.RecordDecision(memory.DecisionRecord{
		RunID: run.ID, TaskID: run.ID + "_research_agent", Executor: "research_agent",
		Decision: "proceed", Reasoning: "Moderate confidence (0.70) - proceeding with caution.",
		Context: map[string]any{"attempt": 0, "moderate": true},
	}))
	require.NoError(t, store.FinishRun(task.OrchestrationResult{
		Goal: run.Goal, RunID: run.ID, Insights: []string{"Research: three vendors"}, OverallConfidence: 70,
	}, memory.StatusCompleted))
	return dbPath, run.ID
}

func TestInspect_ListTable(t *testing.T) {
	dbPath, runID := seedStore(t)
	store, err := memory.NewStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	var buf bytes.Buffer
	require.NoError(t, runListMode(&buf, store, 10, false))
	out := buf.String()
	assert.Contains(t, out, shortID(runID))
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "70.0%")
	assert.Contains(t, out, "Executor averages")
	assert.Contains(t, out, "research_agent")
}

func TestInspect_ListEmpty(t *testing.T) {
	store, err := memory.NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	var buf bytes.Buffer
	require.NoError(t, runListMode(&buf, store, 10, false))
	assert.Equal(t, "no runs found\n", buf.String())
}

func TestInspect_DetailJSON(t *testing.T) {
	dbPath, runID := seedStore(t)
	store, err := memory.NewStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	var buf bytes.Buffer
	require.NoError(t, runDetailMode(&buf, store, runID, true))
	var out detailOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, runID, out.Run.ID)
	require.Len(t, out.Scores, 1)
	assert.Equal(t, 70, out.Scores[0].Combined)
	require.Len(t, out.Decisions, 1)
	assert.Equal(t, []string{"Research: three vendors"}, out.Insights)
}

func TestInspect_DetailTable(t *testing.T) {
	dbPath, runID := seedStore(t)
	store, err := memory.NewStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	var buf bytes.Buffer
	require.NoError(t, runDetailMode(&buf, store, runID, false))
	out := buf.String()
	assert.Contains(t, out, "Goal:      compare managed postgres vendors")
	assert.Contains(t, out, "moderate=true")
	assert.Contains(t, out, "- Research: three vendors")

	assert.Error(t, runDetailMode(&buf, store, "missing", false))
}

func TestInspectCommand_JSON(t *testing.T) {
	dbPath, runID := seedStore(t)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"inspect", "--db", dbPath, "--json"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		inspectDB, inspectJSON = "", false
	})
	require.NoError(t, rootCmd.Execute())

	var list listOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, runID, list.Runs[0].RunID)
}

func TestApp_OfflineRunIsPersisted(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "run.db")
	a, err := newApp(writeConfig(t, dbPath))
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.gen, "provider none has no model")
	assert.Nil(t, a.search, "no codec, no search")

	res := a.Run(context.Background(), "plan a community solar pilot")
	require.NotEmpty(t, res.RunID)

	run, err := a.store.GetRun(res.RunID)
	require.NoError(t, err)
	want := memory.StatusCompleted
	if res.Failed {
		want = memory.StatusFailed
		require.Len(t, res.Insights, 1)
		assert.True(t, strings.HasPrefix(res.Insights[0], "Error: "))
	}
	assert.Equal(t, want, run.Status)

	events, err := a.store.Events(res.RunID)
	require.NoError(t, err)
	assert.NotEmpty(t, events, "recorder writes through the sql sink")
}

func TestApp_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("orchestrator:\n  max_retries: -2\n"), 0o600))
	_, err := newApp(path)
	assert.Error(t, err)
}

func TestRunCommand_RejectsUnknownFormat(t *testing.T) {
	rootCmd.SetArgs([]string{"run", "--format", "pdf", "goal"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		runFormat = "json"
	})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestReplay_StoredDefaults(t *testing.T) {
	dbPath, runID := seedStore(t)
	store, err := memory.NewStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	var buf bytes.Buffer
	require.NoError(t, runReplayStored(&buf, store, runID, replay.DefaultConfig(), false))
	out := buf.String()
	assert.Contains(t, out, "research_agent")
	assert.Contains(t, out, "| OK")
	assert.Contains(t, out, "0 changed")
	assert.Contains(t, out, "Replayed outcome: undetermined")
}

func TestReplay_StoredStricterJSON(t *testing.T) {
	dbPath, runID := seedStore(t)
	store, err := memory.NewStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	rc := replay.Config{
		Thresholds: reflection.Thresholds{High: 0.9, Low: 0.8, MinAcceptable: 0.75},
		MaxRetries: 1,
	}
	var buf bytes.Buffer
	require.NoError(t, runReplayStored(&buf, store, runID, rc, true))

	var got replayOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got.Results, 1)
	assert.Equal(t, replay.ActionErrorRecover, got.Results[0].Action)
	assert.True(t, got.Results[0].Changed)
	assert.Equal(t, replay.OutcomeFailed, got.Summary.Outcome)
	assert.Equal(t, 0.75, got.Config.MinAcceptable)
}

func TestReplay_UnknownRun(t *testing.T) {
	store, err := memory.NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	var buf bytes.Buffer
	assert.Error(t, runReplayStored(&buf, store, "missing", replay.DefaultConfig(), false))
}

func TestReplay_Fixture(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join("..", "..", "internal", "replay", "testdata", "strict_thresholds.json")
	require.NoError(t, runReplayFixture(&buf, path, false))
	assert.Contains(t, buf.String(), "4 total, 4 match, 0 diverge; outcome failed")
}

func TestReplay_FixtureDiverges(t *testing.T) {
	fixture := `{"config":{"high_threshold":0.75,"low_threshold":0.5,"min_acceptable":0.4,"max_retries":3},
"attempts":[{"executor":"research_agent","attempt":0,"self":0.9,"second":0.9}],
"expected_results":[{"executor":"research_agent","attempt":0,"action":"replan"}]}`
	path := filepath.Join(t.TempDir(), "diverge.json")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	var buf bytes.Buffer
	err := runReplayFixture(&buf, path, false)
	assert.ErrorIs(t, err, errFixtureDiverged)
	assert.Contains(t, buf.String(), "DIFF")
}
