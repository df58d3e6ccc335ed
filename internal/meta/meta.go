// Package meta defines the validated distribution metadata structure the
// build engine consumes. The engine never parses raw registry metadata
// itself; the CLI (or another front end) loads and validates it and hands
// the engine a Distribution value.
package meta

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pgmill/pgmill/internal/errors"
)

// Family identifies a supported build-tool family.
type Family string

const (
	// FamilyPgrx is the pgrx (Rust native-extension) build convention.
	FamilyPgrx Family = "pgrx"
	// FamilyPgxs is the PGXS makefile convention shipped with Postgres.
	FamilyPgxs Family = "pgxs"
	// FamilyAutoconf is the generic configure-script convention.
	FamilyAutoconf Family = "autoconf"
)

// Distribution is the validated metadata for one registry source package.
// Immutable, read-only input to the build engine.
type Distribution struct {
	Name      string         `yaml:"name"`
	Version   string         `yaml:"version"`
	Abstract  string         `yaml:"abstract,omitempty"`
	Pipelines []PipelineSpec `yaml:"pipelines"`
	Artifacts []string       `yaml:"artifacts,omitempty"` // sandbox-relative output paths
}

// PipelineSpec declares one build pipeline candidate. A candidate either
// names its family explicitly or carries the marker set the selector matches
// against. Steps may override the family defaults.
type PipelineSpec struct {
	Family  Family     `yaml:"family,omitempty"`
	Markers Markers    `yaml:"markers,omitempty"`
	Steps   []StepSpec `yaml:"steps,omitempty"`
}

// Markers are the registry-declared capability markers for a pipeline
// candidate. The registry records them at publish time; selection reads
// only these, never the filesystem.
type Markers struct {
	// PGXS markers, mirroring the makefile variables the PGXS convention
	// keys on.
	Makefile     bool     `yaml:"makefile,omitempty"`
	MakefileVars []string `yaml:"makefile_vars,omitempty"` // MODULES, EXTENSION, PG_CONFIG, ...

	// pgrx markers.
	CargoToml bool `yaml:"cargo_toml,omitempty"`
	Pgrx      bool `yaml:"pgrx,omitempty"` // Cargo.toml lists pgrx as a dependency

	// autoconf marker.
	Configure bool `yaml:"configure,omitempty"`
}

// StepSpec describes one external command invocation. Pure data.
type StepSpec struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
	Dir     string   `yaml:"dir,omitempty"` // working-directory offset within the sandbox
	Env     []string `yaml:"env,omitempty"` // required environment variable names
}

// Load reads and validates distribution metadata from a YAML file.
func Load(path string) (*Distribution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryMetadata, errors.SeverityFatal, "failed to read metadata file").
			WithContext("path", path)
	}
	return Parse(data)
}

// Parse validates distribution metadata from YAML bytes.
func Parse(data []byte) (*Distribution, error) {
	var dist Distribution
	if err := yaml.Unmarshal(data, &dist); err != nil {
		return nil, errors.Wrap(err, errors.CategoryMetadata, errors.SeverityFatal, "failed to unmarshal metadata")
	}
	if err := dist.Validate(); err != nil {
		return nil, err
	}
	return &dist, nil
}

// Validate checks schema-level invariants. Pipeline-selection preconditions
// (family resolution, ambiguity) are the selector's concern, not this one's.
func (d *Distribution) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.MetadataInvalid("name", "must not be empty")
	}
	if strings.TrimSpace(d.Version) == "" {
		return errors.MetadataInvalid("version", "must not be empty")
	}
	for i, p := range d.Pipelines {
		if p.Family != "" {
			switch p.Family {
			case FamilyPgrx, FamilyPgxs, FamilyAutoconf:
			default:
				return errors.MetadataInvalid(
					fmt.Sprintf("pipelines[%d].family", i),
					fmt.Sprintf("unknown family %q", p.Family))
			}
		}
		for j, s := range p.Steps {
			if strings.TrimSpace(s.Command) == "" {
				return errors.MetadataInvalid(
					fmt.Sprintf("pipelines[%d].steps[%d].command", i, j),
					"must not be empty")
			}
			if strings.Contains(s.Dir, "..") {
				return errors.MetadataInvalid(
					fmt.Sprintf("pipelines[%d].steps[%d].dir", i, j),
					"must not escape the sandbox")
			}
		}
	}
	for i, a := range d.Artifacts {
		if strings.HasPrefix(a, "/") || strings.Contains(a, "..") {
			return errors.MetadataInvalid(
				fmt.Sprintf("artifacts[%d]", i),
				"must be a sandbox-relative path")
		}
	}
	return nil
}

// ID returns the distribution identity recorded on build reports.
func (d *Distribution) ID() string {
	return d.Name + "-" + d.Version
}
