package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgmill/pgmill/internal/errors"
)

func TestParse_Valid(t *testing.T) {
	raw := `
name: pair
version: 0.1.7
abstract: A key/value pair data type
pipelines:
  - family: pgxs
    markers:
      makefile: true
      makefile_vars: [EXTENSION, DATA]
artifacts:
  - pair.control
  - sql/pair--0.1.7.sql
`
	dist, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "pair", dist.Name)
	assert.Equal(t, "pair-0.1.7", dist.ID())
	require.Len(t, dist.Pipelines, 1)
	assert.Equal(t, FamilyPgxs, dist.Pipelines[0].Family)
	assert.True(t, dist.Pipelines[0].Markers.Makefile)
	assert.Len(t, dist.Artifacts, 2)
}

func TestParse_MissingName(t *testing.T) {
	_, err := Parse([]byte("version: 1.0.0\n"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMetadata))
}

func TestValidate_UnknownFamily(t *testing.T) {
	dist := &Distribution{
		Name:      "demo",
		Version:   "1.0.0",
		Pipelines: []PipelineSpec{{Family: "meson"}},
	}
	err := dist.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMetadata))
}

func TestValidate_StepWithoutCommand(t *testing.T) {
	dist := &Distribution{
		Name:    "demo",
		Version: "1.0.0",
		Pipelines: []PipelineSpec{{
			Family: FamilyPgxs,
			Steps:  []StepSpec{{Name: "build"}},
		}},
	}
	require.Error(t, dist.Validate())
}

func TestValidate_ArtifactEscapesSandbox(t *testing.T) {
	dist := &Distribution{
		Name:      "demo",
		Version:   "1.0.0",
		Artifacts: []string{"../outside"},
	}
	require.Error(t, dist.Validate())

	dist.Artifacts = []string{"/etc/passwd"}
	require.Error(t, dist.Validate())
}

func TestValidate_StepDirEscapesSandbox(t *testing.T) {
	dist := &Distribution{
		Name:    "demo",
		Version: "1.0.0",
		Pipelines: []PipelineSpec{{
			Steps: []StepSpec{{Name: "build", Command: "make", Dir: "../elsewhere"}},
		}},
	}
	require.Error(t, dist.Validate())
}
