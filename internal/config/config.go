// Package config loads processing configuration from YAML or CUE files.
//
// The file format is chosen by extension: .yaml and .yml are decoded with
// unknown fields rejected; .cue files are unified with the embedded
// #Config schema before decoding, so CUE users get constraint errors with
// file positions. Fields absent from the file keep their defaults.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/txledger/internal/engine"
	"github.com/roach88/txledger/internal/ledger"
)

//go:embed schema.cue
var schemaCUE string

// MaxWorkers bounds the worker count.
const MaxWorkers = 1024

// ErrUnsupportedFormat is returned for files that are neither YAML nor CUE.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Config is the processing configuration.
type Config struct {
	Workers    int    `yaml:"workers" json:"workers"`
	LockPolicy string `yaml:"lock_policy" json:"lock_policy"`
	Database   string `yaml:"database" json:"database"`
	Buffer     int    `yaml:"buffer" json:"buffer"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Workers:    1,
		LockPolicy: string(ledger.LockWithdrawalsOnly),
		Buffer:     engine.DefaultBuffer,
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err = ParseYAML(data)
	case ".cue":
		cfg, err = ParseCUE(data, path)
	default:
		return Config{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseYAML decodes YAML over the defaults. Unknown fields are errors.
func ParseYAML(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseCUE compiles data, unifies it with #Config and decodes the result
// over the defaults. filename is used in error positions.
func ParseCUE(data []byte, filename string) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile schema: %w", err)
	}

	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return Config{}, fmt.Errorf("compile: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("validate: %w", err)
	}

	cfg := Default()
	if err := unified.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and the lock policy name.
func (c Config) Validate() error {
	if c.Workers < 0 || c.Workers > MaxWorkers {
		return fmt.Errorf("workers must be in [0, %d], got %d", MaxWorkers, c.Workers)
	}
	if c.Buffer <= 0 {
		return fmt.Errorf("buffer must be positive, got %d", c.Buffer)
	}
	if _, err := ledger.ParseLockPolicy(c.LockPolicy); err != nil {
		return err
	}
	return nil
}

// Policy returns the parsed lock policy.
func (c Config) Policy() ledger.LockPolicy {
	p, err := ledger.ParseLockPolicy(c.LockPolicy)
	if err != nil {
		return ledger.LockWithdrawalsOnly
	}
	return p
}

// EngineOptions translates the configuration into engine options.
func (c Config) EngineOptions() []engine.Option {
	return []engine.Option{
		engine.WithWorkers(c.Workers),
		engine.WithBuffer(c.Buffer),
		engine.WithLockPolicy(c.Policy()),
	}
}
