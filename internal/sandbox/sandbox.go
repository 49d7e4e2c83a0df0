// Package sandbox runs a tool manifest's entrypoint out of process, behind
// an ordered enforcement pipeline: input schema validation, permission
// check, path canonicalization against the manifest's allowlist, execution
// with a hard timeout, then output schema validation. The entrypoint is
// never handed to a shell; arguments travel over a pipe, never a command
// line built by string concatenation.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ariarun/aria/internal/permission"
	"github.com/ariarun/aria/internal/registry"
	"github.com/ariarun/aria/internal/router"
	"github.com/ariarun/aria/pkg/types"
)

// Sandbox executes tool calls against a Registry's manifests.
type Sandbox struct {
	registry *registry.Registry
}

// New creates a Sandbox backed by reg.
func New(reg *registry.Registry) *Sandbox {
	return &Sandbox{registry: reg}
}

// Run enforces the pipeline and, if every stage passes, execs the tool's
// entrypoint with call.Arguments on its stdin, returning its stdout as the
// validated output payload.
func (s *Sandbox) Run(ctx context.Context, grant permission.Grant, call router.ToolCallDirective) (json.RawMessage, *types.Error) {
	manifest, ok := s.registry.Get(call.Name)
	if !ok {
		return nil, types.New(types.KindUnknownTool, "no manifest registered for tool "+call.Name)
	}

	if err := s.validateInput(manifest, call.Arguments); err != nil {
		return nil, err
	}

	if d := permission.Check(grant, manifest); !d.Allowed {
		return nil, types.New(types.KindPermissionDenied, "tool "+call.Name+": "+d.Reason)
	}

	if err := checkPaths(manifest, call.Arguments); err != nil {
		return nil, err
	}

	output, err := s.execEntrypoint(ctx, manifest, call.Arguments)
	if err != nil {
		return nil, err
	}

	if err := s.validateOutput(manifest, output); err != nil {
		return nil, err
	}
	return output, nil
}

func (s *Sandbox) validateInput(m *types.Manifest, args json.RawMessage) *types.Error {
	schema, ok := s.registry.InputSchema(m.Name)
	if !ok {
		return types.New(types.KindManifestInvalid, "tool "+m.Name+": no compiled input schema")
	}
	var v interface{}
	if err := json.Unmarshal(args, &v); err != nil {
		return types.Wrap(types.KindToolInputValidationError, "tool "+m.Name+": arguments are not valid JSON", err)
	}
	if err := schema.Validate(v); err != nil {
		return types.Wrap(types.KindToolInputValidationError, "tool "+m.Name+": arguments fail input schema", err)
	}
	return nil
}

func (s *Sandbox) validateOutput(m *types.Manifest, output json.RawMessage) *types.Error {
	schema, ok := s.registry.OutputSchema(m.Name)
	if !ok {
		return types.New(types.KindManifestInvalid, "tool "+m.Name+": no compiled output schema")
	}
	var v interface{}
	if err := json.Unmarshal(output, &v); err != nil {
		return types.Wrap(types.KindToolOutputValidationError, "tool "+m.Name+": output is not valid JSON", err)
	}
	if err := schema.Validate(v); err != nil {
		return types.Wrap(types.KindToolOutputValidationError, "tool "+m.Name+": output fails output schema", err)
	}
	return nil
}

func checkPaths(m *types.Manifest, args json.RawMessage) *types.Error {
	if !m.RequiresFilesystem() || len(m.PathFields) == 0 {
		return nil
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(args, &decoded); err != nil {
		return types.Wrap(types.KindToolInputValidationError, "tool "+m.Name+": arguments must be a JSON object", err)
	}

	allowed := make([]string, 0, len(m.AllowedPaths))
	for _, p := range m.AllowedPaths {
		real, err := canonicalize(p)
		if err != nil {
			return types.Wrap(types.KindManifestInvalid, "tool "+m.Name+": invalid allowed path "+p, err)
		}
		allowed = append(allowed, real)
	}

	for _, field := range m.PathFields {
		raw, ok := lookupDotted(decoded, field)
		if !ok {
			continue
		}
		value, ok := raw.(string)
		if !ok {
			return types.New(types.KindPathTraversal, "tool "+m.Name+": path field "+field+" is not a string")
		}
		resolved, err := canonicalize(value)
		if err != nil {
			return types.Wrap(types.KindPathTraversal, "tool "+m.Name+": cannot resolve path field "+field, err)
		}
		if !withinAny(resolved, allowed) {
			return types.New(types.KindPathTraversal, "tool "+m.Name+": path "+resolved+" is outside the allowed paths")
		}
	}
	return nil
}

// canonicalize resolves p to an absolute path with every symlink along it
// expanded, so a path field can't escape the allowlist via a symlink planted
// inside an allowed directory. p may name a file that doesn't exist yet (a
// write target): in that case the nearest existing ancestor is resolved and
// the remaining, necessarily symlink-free suffix is rejoined onto it.
func canonicalize(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return real, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	parent := filepath.Dir(abs)
	if parent == abs {
		return "", err
	}
	realParent, perr := canonicalize(parent)
	if perr != nil {
		return "", perr
	}
	return filepath.Join(realParent, filepath.Base(abs)), nil
}

func withinAny(path string, roots []string) bool {
	for _, root := range roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func lookupDotted(obj map[string]interface{}, dotted string) (interface{}, bool) {
	parts := strings.Split(dotted, ".")
	var cur interface{} = obj
	for _, part := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func (s *Sandbox) execEntrypoint(ctx context.Context, m *types.Manifest, args json.RawMessage) (json.RawMessage, *types.Error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(m.TimeoutSeconds)*time.Second)
	defer cancel()

	// #nosec G204 -- entrypoint comes from a registered, validated manifest,
	// never from model or user input; no shell is ever invoked.
	cmd := exec.CommandContext(timeoutCtx, m.Entrypoint[0], m.Entrypoint[1:]...)
	// Once the timeout kills the child, stop waiting on output pipes that a
	// grandchild may still hold open.
	cmd.WaitDelay = time.Second
	cmd.Stdin = bytes.NewReader(args)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if timeoutCtx.Err() == context.DeadlineExceeded {
		limit := time.Duration(m.TimeoutSeconds) * time.Second
		return nil, types.New(types.KindToolTimeout, "tool "+m.Name+" exceeded its timeout of "+limit.String())
	}
	if err != nil {
		return nil, types.Wrap(types.KindToolCrashed, "tool "+m.Name+" exited with an error: "+stderr.String(), err)
	}

	out := stdout.Bytes()
	if len(out) == 0 || !json.Valid(out) {
		return nil, types.New(types.KindToolCrashed, "tool "+m.Name+" produced no structured reply")
	}
	return json.RawMessage(out), nil
}
