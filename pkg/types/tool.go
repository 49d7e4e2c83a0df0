package types

import (
	"encoding/json"
	"time"
)

// Permission is one of the closed set of capabilities a tool manifest may
// declare. A session grants a subset of these; the sandbox's enforcement
// pipeline rejects any tool whose declared permissions are not a subset of
// what the session was granted.
type Permission string

const (
	PermissionNone             Permission = "NONE"
	PermissionFilesystemRead   Permission = "FILESYSTEM_READ"
	PermissionFilesystemWrite  Permission = "FILESYSTEM_WRITE"
	PermissionNetwork          Permission = "NETWORK"
	PermissionSubprocess       Permission = "SUBPROCESS"
)

// ValidPermission reports whether p is one of the enumerated permissions.
func ValidPermission(p Permission) bool {
	switch p {
	case PermissionNone, PermissionFilesystemRead, PermissionFilesystemWrite, PermissionNetwork, PermissionSubprocess:
		return true
	default:
		return false
	}
}

// Manifest describes one registered tool: its identity, the model-facing
// schema, and the sandbox-facing enforcement parameters. Once registered a
// Manifest is immutable for the process lifetime.
type Manifest struct {
	Name        string
	Version     string
	Description string
	Permissions []Permission
	AllowedPaths []string
	TimeoutSeconds int
	InputSchema  json.RawMessage
	OutputSchema json.RawMessage

	// PathFields names the input-object fields (by JSON pointer-ish dotted
	// path, e.g. "path" or "options.target") that the sandbox must resolve
	// and check against AllowedPaths before execution. Only meaningful when
	// a filesystem permission is present.
	PathFields []string

	// Entrypoint is the out-of-process command the sandbox execs to run
	// this tool; it receives its input as a JSON payload over stdin and
	// must write a JSON payload to stdout. Never interpreted by a shell.
	Entrypoint []string
}

// HasPermission reports whether the manifest declares p.
func (m *Manifest) HasPermission(p Permission) bool {
	for _, have := range m.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

// RequiresFilesystem reports whether the manifest declares a filesystem
// permission, in which case AllowedPaths and PathFields are meaningful.
func (m *Manifest) RequiresFilesystem() bool {
	return m.HasPermission(PermissionFilesystemRead) || m.HasPermission(PermissionFilesystemWrite)
}

// InvocationRecord is the record of one tool call: what was sent, what came
// back, and when.
type InvocationRecord struct {
	ToolName  string
	Input     json.RawMessage
	Output    json.RawMessage
	ErrorKind Kind
	StartedAt time.Time
	FinishedAt time.Time
	ExitStatus int
}
