// Package pipeline maps validated distribution metadata onto one uniform
// execution contract: an ordered list of step descriptors for exactly one
// supported build-tool family.
//
// Selection is a pure function of the metadata. The registry records
// capability markers at publish time; the selector never probes the
// filesystem, so the same metadata always resolves to the same pipeline.
package pipeline

import (
	"github.com/pgmill/pgmill/internal/meta"
)

// Step is one external command invocation within a pipeline. Pure data; the
// runner is oblivious to which family produced it.
type Step struct {
	Name        string
	Command     string
	Args        []string
	Dir         string   // working-directory offset within the sandbox
	RequiredEnv []string // environment variable names that must be set
}

// Pipeline is the ordered step sequence selected for one build-tool family.
// Once selected for a distribution it is reused, unmodified, across every
// target in the matrix.
type Pipeline struct {
	Family    meta.Family
	Steps     []Step
	Artifacts []string // sandbox-relative output paths, from the metadata
}

// ID returns the pipeline identity recorded on build reports.
func (p *Pipeline) ID() string { return string(p.Family) }

// defaultSteps returns the canonical step sequence for a family. A candidate
// may override these with explicit step specs.
func defaultSteps(family meta.Family, markers meta.Markers) []Step {
	switch family {
	case meta.FamilyPgrx:
		return []Step{
			{Name: "build", Command: "cargo", Args: []string{"build", "--release", "--lib"}},
			{Name: "test", Command: "cargo", Args: []string{"test", "--release"}},
			{Name: "install", Command: "cargo", Args: []string{"pgrx", "install", "--release"}, RequiredEnv: []string{"PG_CONFIG"}},
		}
	case meta.FamilyPgxs:
		steps := make([]Step, 0, 4)
		if markers.Configure {
			steps = append(steps, Step{Name: "configure", Command: "./configure"})
		}
		steps = append(steps,
			Step{Name: "build", Command: "make", Args: []string{"all"}, RequiredEnv: []string{"PG_CONFIG"}},
			Step{Name: "test", Command: "make", Args: []string{"installcheck"}, RequiredEnv: []string{"PG_CONFIG"}},
			Step{Name: "install", Command: "make", Args: []string{"install"}, RequiredEnv: []string{"PG_CONFIG"}},
		)
		return steps
	case meta.FamilyAutoconf:
		return []Step{
			{Name: "configure", Command: "./configure"},
			{Name: "build", Command: "make"},
			{Name: "install", Command: "make", Args: []string{"install"}},
		}
	}
	return nil
}

// stepsFromSpecs converts metadata step overrides into step descriptors.
func stepsFromSpecs(specs []meta.StepSpec) []Step {
	steps := make([]Step, 0, len(specs))
	for _, s := range specs {
		name := s.Name
		if name == "" {
			name = s.Command
		}
		steps = append(steps, Step{
			Name:        name,
			Command:     s.Command,
			Args:        s.Args,
			Dir:         s.Dir,
			RequiredEnv: s.Env,
		})
	}
	return steps
}
