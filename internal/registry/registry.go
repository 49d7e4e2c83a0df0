// Package registry loads, validates, and looks up tool manifests. A
// manifest is validated once at registration time; the registry never
// re-validates on lookup.
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ariarun/aria/internal/router"
	"github.com/ariarun/aria/pkg/types"
)

// MaxToolNameLength bounds manifest names.
const MaxToolNameLength = 256

var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Registry holds validated manifests, keyed by name.
type Registry struct {
	mu           sync.RWMutex
	manifests    map[string]*types.Manifest
	inputSchemas map[string]*jsonschema.Schema
	outputSchemas map[string]*jsonschema.Schema
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		manifests:     make(map[string]*types.Manifest),
		inputSchemas:  make(map[string]*jsonschema.Schema),
		outputSchemas: make(map[string]*jsonschema.Schema),
	}
}

// Register validates m and adds it to the registry. Validation failures
// return ManifestInvalid and never partially register the tool.
func (r *Registry) Register(m *types.Manifest) *types.Error {
	if err := validate(m); err != nil {
		return err
	}

	inSchema, cErr := compileSchema(m.Name, "input", m.InputSchema)
	if cErr != nil {
		return cErr
	}
	outSchema, cErr := compileSchema(m.Name, "output", m.OutputSchema)
	if cErr != nil {
		return cErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.manifests[m.Name]; exists {
		return types.New(types.KindManifestInvalid, "tool "+m.Name+": a manifest with this name is already registered")
	}
	r.manifests[m.Name] = m
	r.inputSchemas[m.Name] = inSchema
	r.outputSchemas[m.Name] = outSchema
	return nil
}

// Get returns the named manifest.
func (r *Registry) Get(name string) (*types.Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.manifests[name]
	return m, ok
}

// InputSchema returns the compiled input schema for validating a tool call's
// arguments.
func (r *Registry) InputSchema(name string) (*jsonschema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.inputSchemas[name]
	return s, ok
}

// OutputSchema returns the compiled output schema for validating a tool's
// reply.
func (r *Registry) OutputSchema(name string) (*jsonschema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.outputSchemas[name]
	return s, ok
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.manifests))
	for name := range r.manifests {
		out = append(out, name)
	}
	return out
}

// AsToolDescriptors builds the router-facing tool list the kernel advertises
// to the model for the current invocation.
func (r *Registry) AsToolDescriptors() []router.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]router.ToolDescriptor, 0, len(r.manifests))
	for _, m := range r.manifests {
		out = append(out, router.ToolDescriptor{
			Name:        m.Name,
			Description: m.Description,
			InputSchema: m.InputSchema,
		})
	}
	return out
}

func validate(m *types.Manifest) *types.Error {
	if m.Name == "" || len(m.Name) > MaxToolNameLength {
		return types.New(types.KindManifestInvalid, "tool name must be non-empty and at most "+fmt.Sprint(MaxToolNameLength)+" characters")
	}
	if !semverPattern.MatchString(m.Version) {
		return types.New(types.KindManifestInvalid, "tool "+m.Name+": version must be semver (x.y.z)")
	}
	if m.Description == "" {
		return types.New(types.KindManifestInvalid, "tool "+m.Name+": description is required")
	}
	if len(m.Permissions) == 0 {
		return types.New(types.KindManifestInvalid, "tool "+m.Name+": must declare at least NONE")
	}
	for _, p := range m.Permissions {
		if !types.ValidPermission(p) {
			return types.New(types.KindManifestInvalid, "tool "+m.Name+": unknown permission "+string(p))
		}
	}
	if m.RequiresFilesystem() && len(m.AllowedPaths) == 0 {
		return types.New(types.KindManifestInvalid, "tool "+m.Name+": filesystem permission requires a non-empty path allowlist")
	}
	for i, p := range m.AllowedPaths {
		if !filepath.IsAbs(p) {
			return types.New(types.KindManifestInvalid, "tool "+m.Name+": allowed path "+p+" must be absolute")
		}
		m.AllowedPaths[i] = filepath.Clean(p)
	}
	if m.TimeoutSeconds <= 0 {
		return types.New(types.KindManifestInvalid, "tool "+m.Name+": timeout_seconds must be positive")
	}
	if len(m.Entrypoint) == 0 {
		return types.New(types.KindManifestInvalid, "tool "+m.Name+": entrypoint must be non-empty")
	}
	if !isSafeExecutableValue(m.Entrypoint[0]) {
		return types.New(types.KindManifestInvalid, "tool "+m.Name+": entrypoint command is not a safe executable value")
	}
	if _, err := sanitizeArguments(m.Entrypoint[1:]); err != nil {
		return types.Wrap(types.KindManifestInvalid, "tool "+m.Name+": entrypoint arguments are unsafe", err)
	}
	if len(m.InputSchema) == 0 {
		return types.New(types.KindManifestInvalid, "tool "+m.Name+": input_schema is required")
	}
	if len(m.OutputSchema) == 0 {
		return types.New(types.KindManifestInvalid, "tool "+m.Name+": output_schema is required")
	}
	return nil
}

func compileSchema(name, kind string, raw json.RawMessage) (*jsonschema.Schema, *types.Error) {
	c := jsonschema.NewCompiler()
	resource := name + "." + kind + ".schema.json"
	if err := c.AddResource(resource, bytes.NewReader(raw)); err != nil {
		return nil, types.Wrap(types.KindManifestInvalid, "tool "+name+": invalid "+kind+" schema", err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return nil, types.Wrap(types.KindManifestInvalid, "tool "+name+": "+kind+" schema failed to compile", err)
	}
	return schema, nil
}
