// Package judge obtains an independent second opinion on executor output.
package judge

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/agent-boss/internal/errs"
	"github.com/danielpatrickdp/agent-boss/internal/llm"
	"github.com/danielpatrickdp/agent-boss/internal/task"
)

// #region judge

// Judge rates an output in [0,1]. Callers fall back to self-declared confidence on error.
type Judge interface {
	SecondOpinion(ctx context.Context, out task.Output, taskDescription string) (float64, error)
}

// Func adapts a function to Judge.
type Func func(ctx context.Context, out task.Output, taskDescription string) (float64, error)

// SecondOpinion calls f.
func (f Func) SecondOpinion(ctx context.Context, out task.Output, taskDescription string) (float64, error) {
	return f(ctx, out, taskDescription)
}

// #endregion judge

// #region model-judge

const (
	maxResultChars    = 2000
	maxReasoningChars = 500
	maxSources        = 5
)

// Params are the generation settings for a verdict: a short, low-temperature reply.
var Params = llm.Params{MaxTokens: 10, Temperature: 0.3}

// ModelJudge asks a generator for a 0–100 quality score.
type ModelJudge struct {
	gen llm.Generator
	log *zap.Logger
}

// NewModelJudge wraps gen. A nil logger disables logging.
func NewModelJudge(gen llm.Generator, log *zap.Logger) *ModelJudge {
	if log == nil {
		log = zap.NewNop()
	}
	return &ModelJudge{gen: gen, log: log.Named("judge")}
}

// SecondOpinion prompts the model and parses the first integer of its reply.
func (j *ModelJudge) SecondOpinion(ctx context.Context, out task.Output, taskDescription string) (float64, error) {
	const op = "judge.SecondOpinion"
	reply, err := j.gen.Generate(ctx, Prompt(out, taskDescription), Params)
	if err != nil {
		return 0, llm.Classify(op, err)
	}
	score, err := ParseScore(reply)
	if err != nil {
		return 0, err
	}
	j.log.Info("second opinion",
		zap.String("executor", out.Executor),
		zap.Int("boss_score", int(score*100+0.5)),
		zap.Int("self_score", out.SelfConfidence),
	)
	return score, nil
}

// #endregion model-judge

// #region prompt

// Prompt renders the evaluation request. Result text, justification and the
// reference list are truncated.
func Prompt(out task.Output, taskDescription string) string {
	sources := "No sources"
	if len(out.Sources) > 0 {
		refs := out.Sources
		if len(refs) > maxSources {
			refs = refs[:maxSources]
		}
		sources = strings.Join(refs, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a quality evaluator for a multi-agent research system. Evaluate the following output from the %s.\n\n", out.Executor)
	fmt.Fprintf(&b, "Task: %s\n\n", taskDescription)
	b.WriteString("Agent Output:\n")
	fmt.Fprintf(&b, "- Results: %s\n", truncate(out.Result.Serialize(), maxResultChars))
	fmt.Fprintf(&b, "- Reasoning: %s\n", truncate(out.Reasoning, maxReasoningChars))
	fmt.Fprintf(&b, "- Sources: %s\n", sources)
	fmt.Fprintf(&b, "- Self-Confidence: %d%%\n\n", out.SelfConfidence)
	b.WriteString("Evaluate the output quality on a scale of 0-100 based on:\n")
	b.WriteString("1. Completeness: Does it fully address the task?\n")
	b.WriteString("2. Accuracy: Is the information reliable and well-sourced?\n")
	b.WriteString("3. Clarity: Is it well-structured and understandable?\n")
	b.WriteString("4. Relevance: Does it directly answer the research question?\n\n")
	b.WriteString("Respond with ONLY a number from 0-100 representing the quality score.")
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// #endregion prompt

// #region parse

var firstInt = regexp.MustCompile(`\d+`)

// ParseScore reads the first run of digits, clamps it to [0,100] and scales to [0,1].
func ParseScore(reply string) (float64, error) {
	m := firstInt.FindString(reply)
	if m == "" {
		return 0, errs.Errorf(errs.KindModel, "judge.ParseScore", "no score in reply %q", truncate(reply, 40))
	}
	n, err := strconv.Atoi(m)
	if err != nil || n > 100 {
		// a digit run too long for int is still "above 100"
		n = 100
	}
	return float64(n) / 100, nil
}

// #endregion parse
