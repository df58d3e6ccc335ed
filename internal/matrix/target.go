package matrix

import (
	"fmt"

	"github.com/pgmill/pgmill/internal/pgconfig"
)

// Target identifies one database installation/platform combination to build
// against. Targets are supplied externally; beyond parameterizing step
// environments they are opaque to the engine.
type Target struct {
	PgConfig string `yaml:"pg_config"` // path to the installation's pg_config binary
	Version  string `yaml:"version"`   // version identifier, e.g. "17"
	Platform string `yaml:"platform"`  // platform tag, e.g. "linux-amd64"
}

// Key returns the target's identity used as the build report key.
func (t Target) Key() string {
	return t.Platform + "/" + t.Version
}

// Env returns the environment variables describing this target to build
// steps. cfg may be nil when the target declares no pg_config binary.
func (t Target) Env(cfg *pgconfig.PgConfig) []string {
	env := []string{
		fmt.Sprintf("PGMILL_PG_VERSION=%s", t.Version),
		fmt.Sprintf("PGMILL_PLATFORM=%s", t.Platform),
	}
	if cfg != nil {
		env = append(env, cfg.Env()...)
	}
	return env
}
