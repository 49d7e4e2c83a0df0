package sandbox

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariarun/aria/internal/permission"
	"github.com/ariarun/aria/internal/registry"
	"github.com/ariarun/aria/internal/router"
	"github.com/ariarun/aria/pkg/types"
)

// writeScript writes an executable shell script to dir and returns its path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func echoManifest(entrypoint []string) *types.Manifest {
	return &types.Manifest{
		Name:           "echo_tool",
		Version:        "1.0.0",
		Description:    "echoes a canned reply",
		Permissions:    []types.Permission{types.PermissionNone},
		TimeoutSeconds: 5,
		Entrypoint:     entrypoint,
		InputSchema:    json.RawMessage(`{"type":"object"}`),
		OutputSchema:   json.RawMessage(`{"type":"object"}`),
	}
}

func fullGrant() permission.Grant {
	return permission.NewGrant([]types.Permission{
		types.PermissionFilesystemRead,
		types.PermissionFilesystemWrite,
		types.PermissionNetwork,
		types.PermissionSubprocess,
	}, nil)
}

func kindOf(t *testing.T, err *types.Error) types.Kind {
	t.Helper()
	require.NotNil(t, err)
	return err.Kind
}

func TestRunRejectsUnknownTool(t *testing.T) {
	reg := registry.New()
	sb := New(reg)

	_, err := sb.Run(context.Background(), fullGrant(), router.ToolCallDirective{
		Name:      "no_such_tool",
		Arguments: json.RawMessage(`{}`),
	})
	assert.Equal(t, types.KindUnknownTool, kindOf(t, err))
}

func TestRunRejectsInvalidInput(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "echo.sh", `cat >/dev/null; echo '{"ok":true}'`)

	reg := registry.New()
	m := echoManifest([]string{"/bin/sh", script})
	m.InputSchema = json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`)
	require.Nil(t, reg.Register(m))

	sb := New(reg)
	_, err := sb.Run(context.Background(), fullGrant(), router.ToolCallDirective{
		Name:      m.Name,
		Arguments: json.RawMessage(`{}`),
	})
	assert.Equal(t, types.KindToolInputValidationError, kindOf(t, err))
}

func TestRunRejectsWhenPermissionNotGranted(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "echo.sh", `cat >/dev/null; echo '{"ok":true}'`)

	reg := registry.New()
	m := echoManifest([]string{"/bin/sh", script})
	m.Permissions = []types.Permission{types.PermissionNetwork}
	require.Nil(t, reg.Register(m))

	sb := New(reg)
	grant := permission.NewGrant(nil, nil)
	_, err := sb.Run(context.Background(), grant, router.ToolCallDirective{
		Name:      m.Name,
		Arguments: json.RawMessage(`{}`),
	})
	assert.Equal(t, types.KindPermissionDenied, kindOf(t, err))
}

func TestRunRejectsPathOutsideAllowlist(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "read.sh", `cat >/dev/null; echo '{"ok":true}'`)

	reg := registry.New()
	m := echoManifest([]string{"/bin/sh", script})
	m.Permissions = []types.Permission{types.PermissionFilesystemRead}
	m.AllowedPaths = []string{filepath.Join(dir, "workspace")}
	m.PathFields = []string{"path"}
	m.InputSchema = json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`)
	require.Nil(t, reg.Register(m))

	sb := New(reg)
	_, err := sb.Run(context.Background(), fullGrant(), router.ToolCallDirective{
		Name:      m.Name,
		Arguments: json.RawMessage(`{"path":"/etc/passwd"}`),
	})
	assert.Equal(t, types.KindPathTraversal, kindOf(t, err))
}

func TestRunAllowsPathWithinAllowlist(t *testing.T) {
	dir := t.TempDir()
	workspace := filepath.Join(dir, "workspace")
	require.NoError(t, os.MkdirAll(workspace, 0o755))
	script := writeScript(t, dir, "read.sh", `cat >/dev/null; echo '{"ok":true}'`)

	reg := registry.New()
	m := echoManifest([]string{"/bin/sh", script})
	m.Permissions = []types.Permission{types.PermissionFilesystemRead}
	m.AllowedPaths = []string{workspace}
	m.PathFields = []string{"path"}
	m.InputSchema = json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`)
	require.Nil(t, reg.Register(m))

	sb := New(reg)
	out, err := sb.Run(context.Background(), fullGrant(), router.ToolCallDirective{
		Name:      m.Name,
		Arguments: json.RawMessage(`{"path":"` + filepath.Join(workspace, "a.txt") + `"}`),
	})
	require.Nil(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out))
}

func TestRunRejectsSymlinkEscapingAllowlist(t *testing.T) {
	dir := t.TempDir()
	workspace := filepath.Join(dir, "workspace")
	secret := filepath.Join(dir, "secret")
	require.NoError(t, os.MkdirAll(workspace, 0o755))
	require.NoError(t, os.WriteFile(secret, []byte("shh"), 0o644))
	link := filepath.Join(workspace, "link")
	require.NoError(t, os.Symlink(secret, link))

	script := writeScript(t, dir, "read.sh", `cat >/dev/null; echo '{"ok":true}'`)

	reg := registry.New()
	m := echoManifest([]string{"/bin/sh", script})
	m.Permissions = []types.Permission{types.PermissionFilesystemRead}
	m.AllowedPaths = []string{workspace}
	m.PathFields = []string{"path"}
	m.InputSchema = json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`)
	require.Nil(t, reg.Register(m))

	sb := New(reg)
	_, err := sb.Run(context.Background(), fullGrant(), router.ToolCallDirective{
		Name:      m.Name,
		Arguments: json.RawMessage(`{"path":"` + link + `"}`),
	})
	assert.Equal(t, types.KindPathTraversal, kindOf(t, err))
}

func TestRunAllowsNonExistentWriteTargetWithinAllowlist(t *testing.T) {
	dir := t.TempDir()
	workspace := filepath.Join(dir, "workspace")
	require.NoError(t, os.MkdirAll(workspace, 0o755))
	script := writeScript(t, dir, "write.sh", `cat >/dev/null; echo '{"ok":true}'`)

	reg := registry.New()
	m := echoManifest([]string{"/bin/sh", script})
	m.Permissions = []types.Permission{types.PermissionFilesystemWrite}
	m.AllowedPaths = []string{workspace}
	m.PathFields = []string{"path"}
	m.InputSchema = json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`)
	require.Nil(t, reg.Register(m))

	sb := New(reg)
	out, err := sb.Run(context.Background(), fullGrant(), router.ToolCallDirective{
		Name:      m.Name,
		Arguments: json.RawMessage(`{"path":"` + filepath.Join(workspace, "new", "file.txt") + `"}`),
	})
	require.Nil(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out))
}

func TestRunTimesOutSlowTool(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "slow.sh", `cat >/dev/null; sleep 5; echo '{"ok":true}'`)

	reg := registry.New()
	m := echoManifest([]string{"/bin/sh", script})
	m.TimeoutSeconds = 1
	require.Nil(t, reg.Register(m))

	sb := New(reg)
	start := time.Now()
	_, err := sb.Run(context.Background(), fullGrant(), router.ToolCallDirective{
		Name:      m.Name,
		Arguments: json.RawMessage(`{}`),
	})
	elapsed := time.Since(start)

	assert.Equal(t, types.KindToolTimeout, kindOf(t, err))
	assert.Less(t, elapsed, 4*time.Second)
}

func TestRunReportsCrashedOnNonJSONOutput(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "noisy.sh", `cat >/dev/null; echo 'not json'`)

	reg := registry.New()
	m := echoManifest([]string{"/bin/sh", script})
	require.Nil(t, reg.Register(m))

	sb := New(reg)
	_, err := sb.Run(context.Background(), fullGrant(), router.ToolCallDirective{
		Name:      m.Name,
		Arguments: json.RawMessage(`{}`),
	})
	assert.Equal(t, types.KindToolCrashed, kindOf(t, err))
}

func TestRunReportsCrashedOnNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "fail.sh", `cat >/dev/null; echo 'boom' 1>&2; exit 1`)

	reg := registry.New()
	m := echoManifest([]string{"/bin/sh", script})
	require.Nil(t, reg.Register(m))

	sb := New(reg)
	_, err := sb.Run(context.Background(), fullGrant(), router.ToolCallDirective{
		Name:      m.Name,
		Arguments: json.RawMessage(`{}`),
	})
	assert.Equal(t, types.KindToolCrashed, kindOf(t, err))
}

func TestRunRejectsOutputFailingSchema(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "echo.sh", `cat >/dev/null; echo '{"other":1}'`)

	reg := registry.New()
	m := echoManifest([]string{"/bin/sh", script})
	m.OutputSchema = json.RawMessage(`{"type":"object","properties":{"result":{"type":"string"}},"required":["result"]}`)
	require.Nil(t, reg.Register(m))

	sb := New(reg)
	_, err := sb.Run(context.Background(), fullGrant(), router.ToolCallDirective{
		Name:      m.Name,
		Arguments: json.RawMessage(`{}`),
	})
	assert.Equal(t, types.KindToolOutputValidationError, kindOf(t, err))
}

func TestRunSucceedsEndToEnd(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "echo.sh", `read -r body; echo "{\"echoed\": $body}"`)

	reg := registry.New()
	m := echoManifest([]string{"/bin/sh", script})
	m.OutputSchema = json.RawMessage(`{"type":"object","properties":{"echoed":{"type":"object"}},"required":["echoed"]}`)
	require.Nil(t, reg.Register(m))

	sb := New(reg)
	out, err := sb.Run(context.Background(), fullGrant(), router.ToolCallDirective{
		Name:      m.Name,
		Arguments: json.RawMessage(`{"greeting":"hi"}`),
	})
	require.Nil(t, err)
	assert.JSONEq(t, `{"echoed":{"greeting":"hi"}}`, string(out))
}
