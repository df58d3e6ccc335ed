package archive

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/pgmill/pgmill/internal/errors"
	"github.com/pgmill/pgmill/internal/logfields"
	"github.com/pgmill/pgmill/internal/report"
)

// Artifact is the packaged distribution: one archive file plus its
// checksum. Produced only for reports with at least one successful target.
type Artifact struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
}

// Packager writes packaged artifacts into an output directory.
type Packager struct {
	outputDir string
	format    Format
}

// NewPackager returns a Packager writing format archives under outputDir.
func NewPackager(outputDir string, format Format) *Packager {
	if format == "" {
		format = FormatGzip
	}
	return &Packager{outputDir: outputDir, format: format}
}

// Package archives the staged artifacts of one successful target from the
// report. staged maps target keys to the staging directories the matrix
// driver harvested before sandbox release. Targets are considered in sorted
// key order so the packaged target is deterministic.
//
// Returns NoSuccessfulTarget when the report contains no successful target;
// the report itself stays valid regardless.
func (p *Packager) Package(r *report.BuildReport, staged map[string]string) (*Artifact, error) {
	successful := r.SuccessfulTargets()
	if len(successful) == 0 {
		return nil, errors.NoSuccessfulTarget(r.Distribution)
	}
	sort.Strings(successful)

	var sourceDir string
	for _, key := range successful {
		if dir, ok := staged[key]; ok {
			sourceDir = dir
			break
		}
	}
	if sourceDir == "" {
		return nil, errors.New(errors.CategoryPackaging, errors.SeverityError,
			"no staged artifacts for any successful target").
			WithContext("distribution", r.Distribution)
	}

	if err := os.MkdirAll(p.outputDir, 0o750); err != nil {
		return nil, errors.ArchiveError("create output directory", err)
	}

	archivePath := filepath.Join(p.outputDir, r.Distribution+p.format.Extension())
	if err := Create(sourceDir, archivePath, p.format); err != nil {
		return nil, errors.ArchiveError("create archive", err)
	}

	sum, err := Checksum(archivePath)
	if err != nil {
		return nil, errors.ArchiveError("checksum archive", err)
	}

	sumPath := archivePath + ".sha256"
	line := fmt.Sprintf("%s  %s\n", sum, filepath.Base(archivePath))
	if err := os.WriteFile(sumPath, []byte(line), 0o644); err != nil {
		return nil, errors.ArchiveError("write checksum file", err)
	}

	slog.Info("Packaged artifact",
		logfields.Distribution(r.Distribution),
		logfields.Path(archivePath))
	return &Artifact{Path: archivePath, Checksum: sum}, nil
}
