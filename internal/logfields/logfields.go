package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID      = "build_id"
	KeyDistribution = "distribution"
	KeyPipeline     = "pipeline"
	KeyStep         = "step"
	KeyTarget       = "target"
	KeyPlatform     = "platform"
	KeyPgVersion    = "pg_version"
	KeySandbox      = "sandbox"
	KeyPath         = "path"
	KeyDurationMS   = "duration_ms"
	KeyStatus       = "status"
	KeyError        = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr      { return slog.String(KeyBuildID, id) }
func Distribution(d string) slog.Attr  { return slog.String(KeyDistribution, d) }
func Pipeline(p string) slog.Attr      { return slog.String(KeyPipeline, p) }
func Step(name string) slog.Attr       { return slog.String(KeyStep, name) }
func Target(t string) slog.Attr        { return slog.String(KeyTarget, t) }
func Platform(p string) slog.Attr      { return slog.String(KeyPlatform, p) }
func PgVersion(v string) slog.Attr     { return slog.String(KeyPgVersion, v) }
func Sandbox(dir string) slog.Attr     { return slog.String(KeySandbox, dir) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Status(s string) slog.Attr        { return slog.String(KeyStatus, s) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
