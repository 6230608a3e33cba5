package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/agent-boss/internal/reflection"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	Config          FixtureConfig           `json:"config"`
	Attempts        []FixtureAttempt        `json:"attempts"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
	ExpectedOutcome Outcome                 `json:"expected_outcome"`
}

// FixtureConfig mirrors Config with JSON tags.
type FixtureConfig struct {
	HighThreshold float64 `json:"high_threshold"`
	LowThreshold  float64 `json:"low_threshold"`
	MinAcceptable float64 `json:"min_acceptable"`
	MaxRetries    int     `json:"max_retries"`
}

// FixtureAttempt mirrors Attempt with JSON tags.
type FixtureAttempt struct {
	Executor string  `json:"executor"`
	Attempt  int     `json:"attempt"`
	Self     float64 `json:"self"`
	Second   float64 `json:"second"`
	Recorded string  `json:"recorded,omitempty"`
}

// FixtureExpectedResult captures the expected action per attempt.
type FixtureExpectedResult struct {
	Executor string `json:"executor"`
	Attempt  int    `json:"attempt"`
	Action   Action `json:"action"`
	Changed  bool   `json:"changed"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToConfig converts a FixtureConfig to a replay Config.
func (fc *FixtureConfig) ToConfig() Config {
	return Config{
		Thresholds: reflection.Thresholds{
			High:          fc.HighThreshold,
			Low:           fc.LowThreshold,
			MinAcceptable: fc.MinAcceptable,
		},
		MaxRetries: fc.MaxRetries,
	}
}

// ToAttempt converts a FixtureAttempt to an Attempt.
func (fa *FixtureAttempt) ToAttempt() Attempt {
	return Attempt{
		Executor: fa.Executor,
		Attempt:  fa.Attempt,
		Self:     fa.Self,
		Second:   fa.Second,
		Recorded: reflection.Outcome(fa.Recorded),
	}
}

// ToAttempts converts every fixture attempt, keeping file order.
func (f *Fixture) ToAttempts() []Attempt {
	out := make([]Attempt, len(f.Attempts))
	for i := range f.Attempts {
		out[i] = f.Attempts[i].ToAttempt()
	}
	return out
}

// #endregion fixture-loader
