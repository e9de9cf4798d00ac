package infty

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RunStore is the durable directory for one run: per-role rollout logs
// under sessions/ and the solver-produced deliverable/ tree.
type RunStore struct {
	root string
}

// roleConfigSnapshot is the persisted form of a role's spawn configuration.
type roleConfigSnapshot struct {
	Role             string `json:"role"`
	Model            string `json:"model,omitempty"`
	ReasoningEffort  string `json:"reasoning_effort,omitempty"`
	SandboxPolicy    string `json:"sandbox_policy"`
	ApprovalPolicy   string `json:"approval_policy"`
	BaseInstructions bool   `json:"custom_instructions"`
}

// CreateRunStore builds the run directory skeleton and snapshots the role
// configuration set to role-configs.json.
func CreateRunStore(root string, roles []RoleConfig) (*RunStore, error) {
	for _, dir := range []string{root, filepath.Join(root, "sessions"), filepath.Join(root, "deliverable")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create run store: %w", err)
		}
	}

	snapshots := make([]roleConfigSnapshot, 0, len(roles))
	for _, rc := range roles {
		snapshots = append(snapshots, roleConfigSnapshot{
			Role:             rc.Role,
			Model:            rc.Config.Model,
			ReasoningEffort:  string(rc.Config.ReasoningEffort),
			SandboxPolicy:    string(SandboxFullAccess),
			ApprovalPolicy:   string(ApprovalNever),
			BaseInstructions: rc.Config.BaseInstructions != "",
		})
	}
	data, err := json.MarshalIndent(snapshots, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("create run store: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, "role-configs.json"), data, 0o644); err != nil {
		return nil, fmt.Errorf("create run store: %w", err)
	}

	return &RunStore{root: root}, nil
}

// OpenRunStore opens an existing run directory.
func OpenRunStore(root string) (*RunStore, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open run store: %s is not a directory", root)
	}
	return &RunStore{root: root}, nil
}

// Root returns the run directory path.
func (s *RunStore) Root() string {
	return s.root
}

// DeliverableDir returns the deliverable tree path.
func (s *RunStore) DeliverableDir() string {
	return filepath.Join(s.root, "deliverable")
}

// ResolveDeliverablePath canonicalizes candidate against the store root and
// requires the result to be a descendant of it.
func (s *RunStore) ResolveDeliverablePath(candidate string) (string, error) {
	return ResolveDeliverablePath(s.root, candidate)
}

// ResolveDeliverablePath canonicalizes base, joins candidate (relative paths
// join under base; absolute paths are used as-is), canonicalizes the result,
// and requires it to stay inside base.
func ResolveDeliverablePath(base, candidate string) (string, error) {
	baseAbs, err := canonicalize(base)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize run store %s: %w", base, err)
	}

	joined := candidate
	if !filepath.IsAbs(candidate) {
		joined = filepath.Join(baseAbs, candidate)
	}

	resolved, err := canonicalize(joined)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize deliverable path %s: %w", joined, err)
	}

	rel, err := filepath.Rel(baseAbs, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("deliverable path %s escapes run store %s", resolved, baseAbs)
	}

	return resolved, nil
}

// canonicalize resolves a path to an absolute, symlink-free form. The path
// must exist.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
