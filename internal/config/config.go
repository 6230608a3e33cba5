// Package config loads agent-boss settings from defaults, a YAML file and
// BOSS_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/danielpatrickdp/agent-boss/internal/backoff"
	"github.com/danielpatrickdp/agent-boss/internal/broadcast"
	"github.com/danielpatrickdp/agent-boss/internal/errs"
	"github.com/danielpatrickdp/agent-boss/internal/llm"
	"github.com/danielpatrickdp/agent-boss/internal/logging"
	"github.com/danielpatrickdp/agent-boss/internal/reflection"
	"github.com/danielpatrickdp/agent-boss/internal/statemachine"
	"github.com/danielpatrickdp/agent-boss/internal/websearch"
)

// EnvPrefix marks environment variables read by Load.
const EnvPrefix = "BOSS_"

const maxConfigFileSize = 1024 * 1024

// #region types

// Config is the full application configuration.
type Config struct {
	Logging      logging.Config        `koanf:"logging"`
	LLM          llm.Config            `koanf:"llm"`
	Reflection   reflection.Thresholds `koanf:"reflection"`
	StateMachine StateMachineConfig    `koanf:"statemachine"`
	WebSearch    websearch.Config      `koanf:"websearch"`
	Orchestrator OrchestratorConfig    `koanf:"orchestrator"`
	Memory       MemoryConfig          `koanf:"memory"`
	Server       ServerConfig          `koanf:"server"`
	NATS         broadcast.Config      `koanf:"nats"`
	Codec        CodecConfig           `koanf:"codec"`
}

// StateMachineConfig is the file form of statemachine.Config. Timeout keys are
// state names in any case.
type StateMachineConfig struct {
	MaxTransitions int                      `koanf:"max_transitions"`
	Timeouts       map[string]time.Duration `koanf:"timeouts"`
}

// OrchestratorConfig bounds retries for each phase.
type OrchestratorConfig struct {
	MaxRetries int            `koanf:"max_retries"`
	RunTimeout time.Duration  `koanf:"run_timeout"`
	Backoff    backoff.Config `koanf:"backoff"`
}

// MemoryConfig locates the SQLite database.
type MemoryConfig struct {
	Path string `koanf:"path"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// CodecConfig points at the gRPC inference service. An empty address disables it.
type CodecConfig struct {
	Addr string `koanf:"addr"`
}

// #endregion types

// #region defaults

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	sm := statemachine.DefaultConfig()
	timeouts := make(map[string]time.Duration, len(sm.Timeouts))
	for s, d := range sm.Timeouts {
		timeouts[strings.ToLower(string(s))] = d
	}
	return Config{
		Logging:    logging.DefaultConfig(),
		LLM:        llm.DefaultConfig(),
		Reflection: reflection.DefaultThresholds(),
		StateMachine: StateMachineConfig{
			MaxTransitions: sm.MaxTransitions,
			Timeouts:       timeouts,
		},
		WebSearch: websearch.DefaultConfig(),
		Orchestrator: OrchestratorConfig{
			MaxRetries: 3,
			RunTimeout: 10 * time.Minute,
			Backoff:    backoff.RateLimitConfig(),
		},
		Memory: MemoryConfig{Path: "agent_boss.db"},
		Server: ServerConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		NATS:   broadcast.DefaultConfig(),
		Codec:  CodecConfig{},
	}
}

// #endregion defaults

// #region load

// Load reads path (optional) and the environment over the defaults, then validates.
func Load(path string) (Config, error) {
	var data []byte
	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return Config{}, errs.Wrap(errs.KindConfiguration, "config.Load", fmt.Errorf("stat %s: %w", path, err))
		}
		if info.Size() > maxConfigFileSize {
			return Config{}, errs.Errorf(errs.KindConfiguration, "config.Load",
				"config file %s is %d bytes, limit %d", path, info.Size(), maxConfigFileSize)
		}
		data, err = os.ReadFile(path)
		if err != nil {
			return Config{}, errs.Wrap(errs.KindConfiguration, "config.Load", fmt.Errorf("read %s: %w", path, err))
		}
	}
	return Parse(data)
}

// Parse layers YAML data (may be empty) and BOSS_* variables over the defaults.
func Parse(data []byte) (Config, error) {
	const op = "config.Parse"
	k := koanf.New(".")

	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return Config{}, errs.Wrap(errs.KindConfiguration, op, fmt.Errorf("parse yaml: %w", err))
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, errs.Wrap(errs.KindConfiguration, op, fmt.Errorf("load environment: %w", err))
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, errs.Wrap(errs.KindConfiguration, op, fmt.Errorf("unmarshal: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// sections lists config paths whose names contain underscores once flattened,
// longest first so nested sections win.
var sections = func() []string {
	s := []string{
		"logging", "llm", "llm_backoff", "reflection", "statemachine", "statemachine_timeouts",
		"websearch", "orchestrator", "orchestrator_backoff", "memory", "server", "nats", "codec",
	}
	sort.Slice(s, func(i, j int) bool { return len(s[i]) > len(s[j]) })
	return s
}()

// envKey maps BOSS_LLM_API_KEY to llm.api_key and BOSS_LLM_BACKOFF_BASE to
// llm.backoff.base. Variables outside a known section are ignored.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, sec := range sections {
		if rest, ok := strings.CutPrefix(lower, sec+"_"); ok && rest != "" {
			return strings.ReplaceAll(sec, "_", ".") + "." + rest
		}
	}
	return ""
}

// #endregion load

// #region validate

// Validate checks cross-field constraints. Failures match errs.ErrInvalidConfiguration.
func (c Config) Validate() error {
	const op = "config.Validate"
	if err := c.Reflection.Validate(); err != nil {
		return err
	}
	if _, err := c.StateMachine.Machine(); err != nil {
		return err
	}
	if err := c.Orchestrator.Backoff.Validate(); err != nil {
		return err
	}
	if err := c.LLM.Backoff.Validate(); err != nil {
		return err
	}
	if c.Orchestrator.MaxRetries < 0 {
		return errs.Errorf(errs.KindConfiguration, op, "orchestrator.max_retries must be >= 0, got %d", c.Orchestrator.MaxRetries)
	}
	if c.WebSearch.MaxResults <= 0 {
		return errs.Errorf(errs.KindConfiguration, op, "websearch.max_results must be positive, got %d", c.WebSearch.MaxResults)
	}
	switch c.LLM.Provider {
	case "openai", "none":
	case "codec":
		if c.Codec.Addr == "" {
			return errs.Errorf(errs.KindConfiguration, op, "llm.provider codec requires codec.addr")
		}
	default:
		return errs.Errorf(errs.KindConfiguration, op, "llm.provider %q: want openai, codec or none", c.LLM.Provider)
	}
	if c.Memory.Path == "" {
		return errs.Errorf(errs.KindConfiguration, op, "memory.path is required")
	}
	return c.Server.validate()
}

func (s ServerConfig) validate() error {
	const op = "config.Server"
	_, portStr, err := net.SplitHostPort(s.Addr)
	if err != nil {
		return errs.Errorf(errs.KindConfiguration, op, "server.addr %q: %v", s.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return errs.Errorf(errs.KindConfiguration, op, "server.addr port %q outside 1-65535", portStr)
	}
	if s.ShutdownTimeout < 0 {
		return errs.Errorf(errs.KindConfiguration, op, "server.shutdown_timeout must be >= 0")
	}
	return nil
}

// Machine converts the file form to a statemachine.Config.
func (c StateMachineConfig) Machine() (statemachine.Config, error) {
	const op = "config.StateMachine"
	if c.MaxTransitions <= 0 {
		return statemachine.Config{}, errs.Errorf(errs.KindConfiguration, op,
			"statemachine.max_transitions must be positive, got %d", c.MaxTransitions)
	}
	timeouts := make(map[statemachine.State]time.Duration, len(c.Timeouts))
	for name, d := range c.Timeouts {
		s := statemachine.State(strings.ToUpper(name))
		if !statemachine.Known(s) {
			return statemachine.Config{}, errs.Errorf(errs.KindConfiguration, op, "unknown state %q in timeouts", name)
		}
		if d < 0 {
			return statemachine.Config{}, errs.Errorf(errs.KindConfiguration, op, "negative timeout for %s", s)
		}
		timeouts[s] = d
	}
	return statemachine.Config{MaxTransitions: c.MaxTransitions, Timeouts: timeouts}, nil
}

// #endregion validate
