package pipeline

import (
	"fmt"

	"github.com/pgmill/pgmill/internal/errors"
	"github.com/pgmill/pgmill/internal/meta"
)

// Family priority, most specific first: a native-extension build system
// beats the generic makefile convention, which beats a bare configure
// script.
var familyPriority = []meta.Family{meta.FamilyPgrx, meta.FamilyPgxs, meta.FamilyAutoconf}

// Confidence scores per family marker set, on a 0..255 scale. A candidate
// resolves to the family with the highest nonzero score; a tie between two
// families means the metadata declares conflicting markers.
func confidence(family meta.Family, m meta.Markers) uint8 {
	switch family {
	case meta.FamilyPgrx:
		if m.Pgrx {
			return 255
		}
		if m.CargoToml {
			// Cargo project without a pgrx dependency. Weak.
			return 1
		}
	case meta.FamilyPgxs:
		if !m.Makefile {
			return 0
		}
		score := uint8(127)
		for _, v := range m.MakefileVars {
			switch v {
			case "PG_CONFIG":
				return 255
			case "MODULES", "MODULE_big", "PROGRAM", "EXTENSION", "DATA", "DATA_built":
				score = 200
			}
		}
		return score
	case meta.FamilyAutoconf:
		if m.Configure {
			return 100
		}
	}
	return 0
}

// resolveFamily determines which family a single candidate belongs to. An
// explicit family declaration is authoritative; otherwise the markers
// decide. Returns "" when no marker matches.
func resolveFamily(spec meta.PipelineSpec) (meta.Family, error) {
	if spec.Family != "" {
		return spec.Family, nil
	}

	var best meta.Family
	var bestScore uint8
	tied := false
	for _, f := range familyPriority {
		score := confidence(f, spec.Markers)
		if score == 0 {
			continue
		}
		switch {
		case score > bestScore:
			best, bestScore, tied = f, score, false
		case score == bestScore:
			tied = true
		}
	}
	if bestScore == 0 {
		return "", nil
	}
	if tied {
		return "", fmt.Errorf("markers match more than one family at confidence %d", bestScore)
	}
	return best, nil
}

// Select resolves the build pipeline for a distribution. It evaluates the
// declared pipeline candidates against family markers, picks the most
// specific family present, and breaks ties between equally specific
// candidates by declaration order (first listed wins).
//
// Select is pure: no filesystem probing, no side effects. The same metadata
// always yields the same pipeline.
func Select(dist *meta.Distribution) (*Pipeline, error) {
	type resolved struct {
		family meta.Family
		spec   meta.PipelineSpec
	}

	candidates := make([]resolved, 0, len(dist.Pipelines))
	for i, spec := range dist.Pipelines {
		family, err := resolveFamily(spec)
		if err != nil {
			return nil, errors.AmbiguousPipeline(dist.ID(),
				fmt.Sprintf("pipelines[%d]: %v", i, err))
		}
		if family == "" {
			continue
		}
		candidates = append(candidates, resolved{family: family, spec: spec})
	}

	if len(candidates) == 0 {
		return nil, errors.NoSupportedPipeline(dist.ID())
	}

	for _, family := range familyPriority {
		for _, c := range candidates {
			if c.family != family {
				continue
			}
			steps := defaultSteps(family, c.spec.Markers)
			if len(c.spec.Steps) > 0 {
				steps = stepsFromSpecs(c.spec.Steps)
			}
			return &Pipeline{
				Family:    family,
				Steps:     steps,
				Artifacts: append([]string(nil), dist.Artifacts...),
			}, nil
		}
	}

	// Candidates resolved to families outside the priority table. Metadata
	// validation rejects unknown families, so this is unreachable in
	// practice.
	return nil, errors.NoSupportedPipeline(dist.ID())
}
