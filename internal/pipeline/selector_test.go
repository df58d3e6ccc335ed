package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgmill/pgmill/internal/errors"
	"github.com/pgmill/pgmill/internal/meta"
)

func dist(specs ...meta.PipelineSpec) *meta.Distribution {
	return &meta.Distribution{Name: "demo", Version: "1.0.0", Pipelines: specs}
}

func TestSelect_ExplicitFamily(t *testing.T) {
	p, err := Select(dist(meta.PipelineSpec{Family: meta.FamilyPgxs}))
	require.NoError(t, err)
	assert.Equal(t, meta.FamilyPgxs, p.Family)
	require.Len(t, p.Steps, 3)
	assert.Equal(t, "build", p.Steps[0].Name)
	assert.Equal(t, "make", p.Steps[0].Command)
	assert.Equal(t, []string{"all"}, p.Steps[0].Args)
	assert.Equal(t, "install", p.Steps[2].Name)
}

func TestSelect_PgxsWithConfigureMarker(t *testing.T) {
	p, err := Select(dist(meta.PipelineSpec{
		Family:  meta.FamilyPgxs,
		Markers: meta.Markers{Makefile: true, Configure: true},
	}))
	require.NoError(t, err)
	require.Len(t, p.Steps, 4)
	assert.Equal(t, "configure", p.Steps[0].Name)
	assert.Equal(t, "./configure", p.Steps[0].Command)
}

func TestSelect_MarkerResolution(t *testing.T) {
	tests := []struct {
		name    string
		markers meta.Markers
		want    meta.Family
	}{
		{"pgrx dependency", meta.Markers{CargoToml: true, Pgrx: true}, meta.FamilyPgrx},
		{"makefile with PG_CONFIG", meta.Markers{Makefile: true, MakefileVars: []string{"PG_CONFIG"}}, meta.FamilyPgxs},
		{"makefile with EXTENSION", meta.Markers{Makefile: true, MakefileVars: []string{"EXTENSION"}}, meta.FamilyPgxs},
		{"bare makefile", meta.Markers{Makefile: true}, meta.FamilyPgxs},
		{"configure only", meta.Markers{Configure: true}, meta.FamilyAutoconf},
		{"makefile beats configure", meta.Markers{Makefile: true, Configure: true}, meta.FamilyPgxs},
		{"pgrx beats makefile", meta.Markers{Makefile: true, MakefileVars: []string{"EXTENSION"}, CargoToml: true, Pgrx: true}, meta.FamilyPgrx},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p, err := Select(dist(meta.PipelineSpec{Markers: test.markers}))
			require.NoError(t, err)
			assert.Equal(t, test.want, p.Family)
		})
	}
}

func TestSelect_CargoWithoutPgrxIsWeakButSelectable(t *testing.T) {
	p, err := Select(dist(meta.PipelineSpec{Markers: meta.Markers{CargoToml: true}}))
	require.NoError(t, err)
	assert.Equal(t, meta.FamilyPgrx, p.Family)
}

func TestSelect_NoSupportedPipeline(t *testing.T) {
	_, err := Select(dist())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMetadata))

	_, err = Select(dist(meta.PipelineSpec{})) // candidate with no markers at all
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMetadata))
}

func TestSelect_AmbiguousMarkers(t *testing.T) {
	// A pgrx dependency and a PG_CONFIG makefile variable tie at full
	// confidence: self-contradictory metadata must propagate, never be
	// guessed around.
	_, err := Select(dist(meta.PipelineSpec{
		Markers: meta.Markers{
			CargoToml: true, Pgrx: true,
			Makefile: true, MakefileVars: []string{"PG_CONFIG"},
		},
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
}

func TestSelect_ExplicitFamilyResolvesConflict(t *testing.T) {
	// The same conflicting marker set with an explicit family declaration
	// is not ambiguous: the declared family is authoritative.
	p, err := Select(dist(meta.PipelineSpec{
		Family: meta.FamilyPgrx,
		Markers: meta.Markers{
			CargoToml: true, Pgrx: true,
			Makefile: true, MakefileVars: []string{"PG_CONFIG"},
		},
	}))
	require.NoError(t, err)
	assert.Equal(t, meta.FamilyPgrx, p.Family)
}

func TestSelect_DeclarationOrderBreaksTies(t *testing.T) {
	// Two pgxs candidates with different step overrides: first listed wins.
	first := meta.PipelineSpec{
		Family: meta.FamilyPgxs,
		Steps:  []meta.StepSpec{{Name: "build", Command: "gmake"}},
	}
	second := meta.PipelineSpec{
		Family: meta.FamilyPgxs,
		Steps:  []meta.StepSpec{{Name: "build", Command: "make"}},
	}
	p, err := Select(dist(first, second))
	require.NoError(t, err)
	require.Len(t, p.Steps, 1)
	assert.Equal(t, "gmake", p.Steps[0].Command)
}

func TestSelect_FamilyPriorityAcrossCandidates(t *testing.T) {
	// autoconf listed first, pgrx second: pgrx is more specific and wins.
	p, err := Select(dist(
		meta.PipelineSpec{Markers: meta.Markers{Configure: true}},
		meta.PipelineSpec{Markers: meta.Markers{CargoToml: true, Pgrx: true}},
	))
	require.NoError(t, err)
	assert.Equal(t, meta.FamilyPgrx, p.Family)
}

func TestSelect_StepOverrides(t *testing.T) {
	p, err := Select(dist(meta.PipelineSpec{
		Family: meta.FamilyPgxs,
		Steps: []meta.StepSpec{
			{Name: "build", Command: "make", Args: []string{"-C", "ext", "all"}, Dir: "ext"},
			{Command: "make", Args: []string{"install"}},
		},
	}))
	require.NoError(t, err)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, "ext", p.Steps[0].Dir)
	// Unnamed steps fall back to the command name.
	assert.Equal(t, "make", p.Steps[1].Name)
}

func TestSelect_CopiesArtifacts(t *testing.T) {
	d := dist(meta.PipelineSpec{Family: meta.FamilyPgxs})
	d.Artifacts = []string{"demo.control"}
	p, err := Select(d)
	require.NoError(t, err)
	require.Equal(t, []string{"demo.control"}, p.Artifacts)

	p.Artifacts[0] = "mutated"
	assert.Equal(t, "demo.control", d.Artifacts[0], "selection must not alias metadata")
}

func TestSelect_Deterministic(t *testing.T) {
	d := dist(
		meta.PipelineSpec{Markers: meta.Markers{Makefile: true, MakefileVars: []string{"EXTENSION"}}},
		meta.PipelineSpec{Markers: meta.Markers{Configure: true}},
	)
	first, err := Select(d)
	require.NoError(t, err)
	for range 10 {
		again, err := Select(d)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
