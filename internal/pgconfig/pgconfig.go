// Package pgconfig probes a target Postgres installation by running its
// pg_config binary and parsing the key/value output.
package pgconfig

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/pgmill/pgmill/internal/errors"
)

// PgConfig holds the parsed key/value pairs reported by one pg_config
// binary. Keys are lowercased.
type PgConfig struct {
	path   string
	values map[string]string
}

// New executes the pg_config binary at path, parses its output, and returns
// the resulting PgConfig.
func New(ctx context.Context, path string) (*PgConfig, error) {
	cmd := exec.CommandContext(ctx, path)
	out, err := cmd.Output()
	if err != nil {
		return nil, errors.PgConfigFailed(path, err)
	}
	return parse(path, out), nil
}

// parse splits each output line on " = " into a key/value pair.
func parse(path string, out []byte) *PgConfig {
	values := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		key, val, found := strings.Cut(scanner.Text(), " = ")
		if !found {
			continue
		}
		values[strings.ToLower(key)] = val
	}
	return &PgConfig{path: path, values: values}
}

// Path returns the pg_config binary path this configuration came from.
func (c *PgConfig) Path() string { return c.path }

// Get returns the value for key (lowercase), or "" if absent.
func (c *PgConfig) Get(key string) string { return c.values[key] }

// Version returns the server version string, e.g. "17.2" from
// "PostgreSQL 17.2".
func (c *PgConfig) Version() string {
	v := c.values["version"]
	if _, ver, found := strings.Cut(v, " "); found {
		return ver
	}
	return v
}

// Env returns the environment variables injected into every build step run
// against this installation.
func (c *PgConfig) Env() []string {
	env := []string{
		fmt.Sprintf("PG_CONFIG=%s", c.path),
	}
	if bindir := c.values["bindir"]; bindir != "" {
		env = append(env, fmt.Sprintf("PGMILL_PG_BINDIR=%s", bindir))
	}
	if libdir := c.values["pkglibdir"]; libdir != "" {
		env = append(env, fmt.Sprintf("PGMILL_PG_PKGLIBDIR=%s", libdir))
	}
	if sharedir := c.values["sharedir"]; sharedir != "" {
		env = append(env, fmt.Sprintf("PGMILL_PG_SHAREDIR=%s", sharedir))
	}
	return env
}
