package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"github.com/openfroyo/actuator/pkg/telemetry"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Supported configuration file extensions.
var supportedExtensions = map[string]bool{
	".yaml": true,
	".yml":  true,
	".json": true,
	".cue":  true,
	".star": true,
}

// IsConfigFile reports whether path has a supported configuration extension.
func IsConfigFile(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// Loader reads actuator configuration from YAML, JSON, CUE or Starlark
// files and validates it.
type Loader struct {
	cue       *cue.Context
	schemas   *SchemaRegistry
	starlark  *StarlarkEvaluator
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewLoader creates a new configuration loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		cue:       cuecontext.New(),
		schemas:   NewSchemaRegistry(),
		starlark:  NewStarlarkEvaluator(30 * time.Second),
		validator: validator.New(),
		logger:    logger.With().Str("component", "config-loader").Logger(),
	}
}

// Schemas returns the loader's schema registry.
func (l *Loader) Schemas() *SchemaRegistry {
	return l.schemas
}

// Load reads path, which may be a file or a directory. Files in a directory
// are read in lexical order and their actors concatenated.
func (l *Loader) Load(ctx context.Context, path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source %s: %w", path, err)
	}

	var files []string
	if info.IsDir() {
		files, err = l.listDirectory(path)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no configuration files found in %s", path)
		}
	} else {
		files = []string{path}
	}

	var merged *Config
	for _, file := range files {
		cfg, err := l.LoadFile(ctx, file)
		if err != nil {
			return nil, err
		}
		if merged == nil {
			merged = cfg
			continue
		}
		if err := merged.merge(cfg); err != nil {
			return nil, fmt.Errorf("merging %s: %w", file, err)
		}
	}

	if err := l.validate(merged); err != nil {
		return nil, err
	}

	l.logger.Info().
		Int("files", len(files)).
		Int("actors", len(merged.Actors)).
		Msg("Configuration loaded")

	return merged, nil
}

// LoadFile reads a single configuration file.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	tree, err := l.parse(ctx, path, content)
	if err != nil {
		return nil, err
	}

	cfg, err := l.decode(ctx, path, tree)
	if err != nil {
		return nil, err
	}
	cfg.SourceFiles = []string{path}

	l.logger.Debug().
		Str("path", path).
		Int("actors", len(cfg.Actors)).
		Msg("Configuration file parsed")

	return cfg, nil
}

// Parse decodes inline content of the given format ("yaml", "json", "cue"
// or "star") and validates it.
func (l *Loader) Parse(ctx context.Context, format string, content []byte) (*Config, error) {
	name := "inline." + strings.TrimPrefix(format, ".")
	if !IsConfigFile(name) {
		return nil, fmt.Errorf("unsupported configuration format: %s", format)
	}

	tree, err := l.parse(ctx, name, content)
	if err != nil {
		return nil, err
	}
	cfg, err := l.decode(ctx, name, tree)
	if err != nil {
		return nil, err
	}
	if err := l.validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse turns file content into a generic tree of maps, slices and scalars.
func (l *Loader) parse(ctx context.Context, path string, content []byte) (map[string]interface{}, error) {
	var (
		raw interface{}
		err error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &raw)
	case ".json":
		raw, err = decodeJSON(content)
	case ".cue":
		raw, err = l.parseCUE(path, content)
	case ".star":
		var globals map[string]interface{}
		if globals, err = l.starlark.Evaluate(ctx, path, string(content)); err == nil {
			raw = globals
		}
	default:
		return nil, fmt.Errorf("unsupported configuration file: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if raw == nil {
		return map[string]interface{}{}, nil
	}
	normalized, err := normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	tree, ok := normalized.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("failed to parse %s: top level must be a mapping, got %T", path, normalized)
	}
	return tree, nil
}

// parseCUE evaluates a CUE file and exports it as JSON.
func (l *Loader) parseCUE(path string, content []byte) (interface{}, error) {
	val := l.cue.CompileBytes(content, cue.Filename(path))
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, convertCUEErrors(err)
	}

	data, err := val.MarshalJSON()
	if err != nil {
		return nil, convertCUEErrors(err)
	}
	return decodeJSON(data)
}

// decode validates tree against the config schema and converts it.
func (l *Loader) decode(ctx context.Context, path string, tree map[string]interface{}) (*Config, error) {
	if err := l.schemas.ValidateAgainstSchema(ctx, "config", tree); err != nil {
		return nil, ValidationError{File: path, Message: err.Error()}
	}

	data, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", path, err)
	}

	cfg := &Config{Telemetry: telemetry.DefaultConfig()}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.DefaultConfig()
	}

	// json.Number leaves are turned back into int64 or float64.
	for i := range cfg.Actors {
		for j := range cfg.Actors[i].Values {
			v := &cfg.Actors[i].Values[j]
			for k, s := range v.Slots {
				if v.Slots[k], err = normalize(s); err != nil {
					return nil, err
				}
			}
			for k := range v.Calls {
				if v.Calls[k].Data == nil {
					continue
				}
				data, err := normalize(v.Calls[k].Data)
				if err != nil {
					return nil, err
				}
				v.Calls[k].Data = data.(map[string]interface{})
			}
		}
	}

	cfg.LoadedAt = time.Now()
	return cfg, nil
}

// validate applies struct tags and actor defaults, then checks cross-actor
// constraints.
func (l *Loader) validate(cfg *Config) error {
	for i := range cfg.Actors {
		ApplyDefaults(&cfg.Actors[i])
	}

	if err := l.validator.Struct(cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if schedule := cfg.HomeAssistant.RefreshSchedule; schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return ValidationError{
				Path:    "homeassistant.refresh_schedule",
				Message: fmt.Sprintf("invalid cron schedule %q: %v", schedule, err),
			}
		}
	}
	if cfg.Telemetry != nil {
		if err := cfg.Telemetry.Validate(); err != nil {
			return fmt.Errorf("invalid telemetry configuration: %w", err)
		}
	}

	seen := make(map[string]bool, len(cfg.Actors))
	for i, ac := range cfg.Actors {
		if seen[ac.EntityID] {
			return ValidationError{
				Path:    fmt.Sprintf("actors.%d.entity_id", i),
				Message: fmt.Sprintf("duplicate actor %s", ac.EntityID),
			}
		}
		seen[ac.EntityID] = true
	}
	return nil
}

// merge appends other's actors and takes other's non-empty sections.
func (c *Config) merge(other *Config) error {
	c.Actors = append(c.Actors, other.Actors...)
	c.SourceFiles = append(c.SourceFiles, other.SourceFiles...)
	if other.HomeAssistant != (HomeAssistantConfig{}) {
		if c.HomeAssistant != (HomeAssistantConfig{}) {
			return fmt.Errorf("homeassistant is configured in more than one file")
		}
		c.HomeAssistant = other.HomeAssistant
	}
	if other.Policy != nil {
		if c.Policy != nil {
			return fmt.Errorf("policy is configured in more than one file")
		}
		c.Policy = other.Policy
	}
	return nil
}

// listDirectory returns the configuration files directly under dir, sorted.
func (l *Loader) listDirectory(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !IsConfigFile(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

func decodeJSON(data []byte) (interface{}, error) {
	var raw interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// normalize converts YAML mappings with non-string keys into
// map[string]interface{} and json.Number into int64 or float64.
func normalize(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("mapping key %v must be a string", k)
			}
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		return t.Float64()
	case int:
		return int64(t), nil
	default:
		return v, nil
	}
}

// convertCUEErrors flattens CUE errors into a single ValidationError list.
func convertCUEErrors(err error) error {
	var validationErrors []string
	for _, e := range cueerrors.Errors(err) {
		ve := ValidationError{Message: cueerrors.Details(e, nil)}
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		validationErrors = append(validationErrors, ve.Error())
	}
	if len(validationErrors) == 0 {
		return err
	}
	return fmt.Errorf("%s", strings.Join(validationErrors, "; "))
}
