package registry

import (
	"encoding/json"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ariarun/aria/pkg/types"
)

// manifestFile mirrors types.Manifest in a form yaml.v3 can unmarshal; the
// JSON schema fields are raw YAML nodes so either YAML or embedded JSON
// schema documents work in the manifest file.
type manifestFile struct {
	Name           string              `yaml:"name"`
	Version        string              `yaml:"version"`
	Description    string              `yaml:"description"`
	Permissions    []types.Permission  `yaml:"permissions"`
	AllowedPaths   []string            `yaml:"allowed_paths"`
	TimeoutSeconds int                 `yaml:"timeout_seconds"`
	PathFields     []string            `yaml:"path_fields"`
	Entrypoint     []string            `yaml:"entrypoint"`
	InputSchema    yaml.Node           `yaml:"input_schema"`
	OutputSchema   yaml.Node           `yaml:"output_schema"`
}

// LoadDir reads every *.yaml manifest in dir and registers it. It stops and
// returns the first ManifestInvalid error encountered; manifests already
// registered before the failure remain registered.
func (r *Registry) LoadDir(dir string) *types.Error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return types.Wrap(types.KindManifestInvalid, "cannot read manifest directory "+dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if mErr := r.loadFile(path); mErr != nil {
			return mErr
		}
	}
	return nil
}

func (r *Registry) loadFile(path string) *types.Error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.Wrap(types.KindManifestInvalid, "cannot read manifest "+path, err)
	}

	var mf manifestFile
	if err := yaml.Unmarshal(raw, &mf); err != nil {
		return types.Wrap(types.KindManifestInvalid, "cannot parse manifest "+path, err)
	}

	inputSchema, err := nodeToJSON(mf.InputSchema)
	if err != nil {
		return types.Wrap(types.KindManifestInvalid, "manifest "+path+": invalid input_schema", err)
	}
	outputSchema, err := nodeToJSON(mf.OutputSchema)
	if err != nil {
		return types.Wrap(types.KindManifestInvalid, "manifest "+path+": invalid output_schema", err)
	}

	m := &types.Manifest{
		Name:           mf.Name,
		Version:        mf.Version,
		Description:    mf.Description,
		Permissions:    mf.Permissions,
		AllowedPaths:   mf.AllowedPaths,
		TimeoutSeconds: mf.TimeoutSeconds,
		PathFields:     mf.PathFields,
		Entrypoint:     mf.Entrypoint,
		InputSchema:    inputSchema,
		OutputSchema:   outputSchema,
	}
	return r.Register(m)
}

func nodeToJSON(node yaml.Node) (json.RawMessage, error) {
	if node.IsZero() {
		return nil, nil
	}
	var v interface{}
	if err := node.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
