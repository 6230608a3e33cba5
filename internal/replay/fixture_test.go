package replay

import (
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/agent-boss/internal/task"
)

// #region fixture-tests

// runFixture replays a fixture and compares every attempt's action, changed
// flag and the run outcome against the recorded expectations.
func runFixture(t *testing.T, name string) {
	t.Helper()
	f, err := LoadFixture(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}

	results, err := Replay(f.ToAttempts(), f.Config.ToConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(results) != len(f.ExpectedResults) {
		t.Fatalf("expected %d results, got %d", len(f.ExpectedResults), len(results))
	}

	for i, expected := range f.ExpectedResults {
		actual := results[i]
		if actual.Executor != expected.Executor || actual.Attempt != expected.Attempt {
			t.Errorf("attempt %d: expected %s#%d, got %s#%d",
				i, expected.Executor, expected.Attempt, actual.Executor, actual.Attempt)
		}
		if actual.Action != expected.Action {
			t.Errorf("attempt %d (%s#%d): expected action=%s, got action=%s (reason: %s)",
				i, expected.Executor, expected.Attempt, expected.Action, actual.Action, actual.Reason)
		}
		if actual.Changed != expected.Changed {
			t.Errorf("attempt %d (%s#%d): expected changed=%v, got %v",
				i, expected.Executor, expected.Attempt, expected.Changed, actual.Changed)
		}
	}

	summary := Summarize(results, len(task.Phases))
	if summary.Outcome != f.ExpectedOutcome {
		t.Errorf("expected outcome=%s, got %s", f.ExpectedOutcome, summary.Outcome)
	}
}

// TestFixture_DefaultRun replays a run under the thresholds it was recorded
// with. Nothing may change; a diff here means the decision bands drifted.
func TestFixture_DefaultRun(t *testing.T) {
	runFixture(t, "default_run.json")
}

func TestFixture_StrictThresholds(t *testing.T) {
	runFixture(t, "strict_thresholds.json")
}

func TestFixture_LenientThresholds(t *testing.T) {
	runFixture(t, "lenient_thresholds.json")
}

func TestLoadFixture_Missing(t *testing.T) {
	if _, err := LoadFixture(filepath.Join("testdata", "nope.json")); err == nil {
		t.Fatal("expected error for missing fixture")
	}
}

// #endregion fixture-tests
