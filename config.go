package infty

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/everydev1618/infty/llm"
)

// SandboxPolicy controls what a role's tools may touch.
type SandboxPolicy string

const (
	// SandboxFullAccess grants unrestricted access within the run root
	SandboxFullAccess SandboxPolicy = "full_access"
	// SandboxReadOnly restricts tools to reads
	SandboxReadOnly SandboxPolicy = "read_only"
)

// ApprovalPolicy controls when a human is asked before an action.
type ApprovalPolicy string

const (
	// ApprovalNever runs without ever prompting
	ApprovalNever ApprovalPolicy = "never"
	// ApprovalOnRequest prompts when the model asks for escalation
	ApprovalOnRequest ApprovalPolicy = "on_request"
)

// Config is the model configuration used to spawn a role's conversation.
type Config struct {
	// Model is the model ID
	Model string

	// ReasoningEffort selects the model deliberation level
	ReasoningEffort llm.ReasoningEffort

	// BaseInstructions is the system prompt. Empty means the role's
	// built-in prompt is applied at spawn time.
	BaseInstructions string

	// SandboxPolicy for the role's tools
	SandboxPolicy SandboxPolicy

	// ApprovalPolicy for the role's actions
	ApprovalPolicy ApprovalPolicy

	// CWD is the conversation working directory; the spawn phase sets it
	// to the run root.
	CWD string

	// MaxOutputTokens limits reply length (0 uses the backend default)
	MaxOutputTokens int

	// Backend is the LLM used for this role (nil uses the orchestrator
	// default)
	Backend llm.LLM
}

// RoleConfig is the configuration used to spawn a role's conversation.
// Orchestrated roles always run with full sandbox access and never prompt.
type RoleConfig struct {
	Role   string
	Config Config
}

// NewRoleConfig creates a role configuration. Sandbox and approval policies
// are forced: orchestrated runs never prompt a human.
func NewRoleConfig(role string, config Config) RoleConfig {
	config.SandboxPolicy = SandboxFullAccess
	config.ApprovalPolicy = ApprovalNever
	return RoleConfig{Role: role, Config: config}
}

// RunDefaults are operator-tunable defaults loaded from an infty.yaml file.
type RunDefaults struct {
	// Model for all roles unless overridden
	Model string `yaml:"model"`

	// DirectorModel overrides only the director's model
	DirectorModel string `yaml:"director_model"`

	// DirectorEffort overrides only the director's reasoning effort
	DirectorEffort string `yaml:"director_effort"`

	// Verifiers is the number of verifier roles to spawn
	Verifiers int `yaml:"verifiers"`

	// DirectorTimeoutSecs is the idle timeout for director/solver turns
	DirectorTimeoutSecs int `yaml:"director_timeout_secs"`

	// VerifierTimeoutSecs is the idle timeout for verifier turns
	VerifierTimeoutSecs int `yaml:"verifier_timeout_secs"`
}

// LoadRunDefaults reads an infty.yaml defaults file. A missing file yields
// zero defaults and no error.
func LoadRunDefaults(path string) (RunDefaults, error) {
	var defaults RunDefaults

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaults, nil
		}
		return defaults, fmt.Errorf("read run defaults %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &defaults); err != nil {
		return defaults, fmt.Errorf("parse run defaults %s: %w", path, err)
	}

	if defaults.DirectorEffort != "" {
		if _, ok := llm.ParseReasoningEffort(defaults.DirectorEffort); !ok {
			return defaults, fmt.Errorf("parse run defaults %s: invalid director_effort %q", path, defaults.DirectorEffort)
		}
	}
	if defaults.Verifiers < 0 {
		return defaults, fmt.Errorf("parse run defaults %s: verifiers must be >= 0", path)
	}

	return defaults, nil
}

// DirectorTimeout returns the configured director timeout or the default.
func (d RunDefaults) DirectorTimeout() time.Duration {
	if d.DirectorTimeoutSecs > 0 {
		return time.Duration(d.DirectorTimeoutSecs) * time.Second
	}
	return DefaultDirectorTimeout
}

// VerifierTimeout returns the configured verifier timeout or the default.
func (d RunDefaults) VerifierTimeout() time.Duration {
	if d.VerifierTimeoutSecs > 0 {
		return time.Duration(d.VerifierTimeoutSecs) * time.Second
	}
	return DefaultVerifierTimeout
}
