// Package registry holds operator-tunable search and prompt configuration:
// size-bucket aliases applied to parsed criteria and overridable prompt
// templates. It loads from a YAML file with an embedded default.
package registry

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Registry is the loaded configuration.
type Registry struct {
	// SizeAliases maps colloquial size terms ("startup", "enterprise") to
	// the canonical employee-range buckets stored on companies.
	SizeAliases map[string]string `yaml:"size_aliases"`
	// Prompts are named prompt templates; absent names fall back to the
	// embedded defaults.
	Prompts map[string]string `yaml:"prompts"`
}

// Load reads the registry from path, merged over the embedded defaults.
// An empty path returns the defaults unchanged.
func Load(path string) (*Registry, error) {
	base, err := parse(defaultsYAML)
	if err != nil {
		return nil, eris.Wrap(err, "registry: parse embedded defaults")
	}
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read %s", path)
	}
	override, err := parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: parse %s", path)
	}

	for k, v := range override.SizeAliases {
		base.SizeAliases[strings.ToLower(k)] = v
	}
	for k, v := range override.Prompts {
		base.Prompts[k] = v
	}
	return base, nil
}

func parse(data []byte) (*Registry, error) {
	var r Registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	if r.SizeAliases == nil {
		r.SizeAliases = map[string]string{}
	}
	normalized := make(map[string]string, len(r.SizeAliases))
	for k, v := range r.SizeAliases {
		normalized[strings.ToLower(k)] = v
	}
	r.SizeAliases = normalized
	if r.Prompts == nil {
		r.Prompts = map[string]string{}
	}
	return &r, nil
}

// CanonicalSize resolves a size term to its canonical bucket. Unknown terms
// pass through unchanged so exact bucket strings keep working.
func (r *Registry) CanonicalSize(term string) string {
	if term == "" {
		return ""
	}
	if bucket, ok := r.SizeAliases[strings.ToLower(strings.TrimSpace(term))]; ok {
		return bucket
	}
	return term
}

// Prompt returns the named prompt template, or "" if undefined.
func (r *Registry) Prompt(name string) string {
	return r.Prompts[name]
}
