package policy

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Loader reads call policies from .rego files and from JSON or YAML
// policy definitions.
type Loader struct {
	logger      zerolog.Logger
	watcher     *fsnotify.Watcher
	reloadDelay time.Duration
}

// NewLoader creates a new policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger:      logger.With().Str("component", "policy-loader").Logger(),
		reloadDelay: 500 * time.Millisecond,
	}
}

// SetReloadDelay overrides the debounce delay used by Watch.
func (l *Loader) SetReloadDelay(d time.Duration) {
	l.reloadDelay = d
}

func isPolicyFile(path string) bool {
	switch filepath.Ext(path) {
	case ".rego", ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// LoadFromPaths loads policies from files and directories. A named file that
// fails to load is an error; a broken file found in a directory is skipped.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Policy, error) {
	var policies []Policy
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", root, err)
		}

		if !info.IsDir() {
			p, err := l.loadFromFile(ctx, root)
			if err != nil {
				return nil, fmt.Errorf("failed to load from path %s: %w", root, err)
			}
			policies = append(policies, *p)
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !isPolicyFile(path) {
				return err
			}
			p, loadErr := l.loadFromFile(ctx, path)
			if loadErr != nil {
				l.logger.Warn().Err(loadErr).Str("path", path).Msg("Skipping policy file")
				return nil
			}
			policies = append(policies, *p)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", root, err)
		}
	}

	l.logger.Info().
		Int("total", len(policies)).
		Int("sources", len(paths)).
		Msg("Call policies loaded")

	return policies, nil
}

func (l *Loader) loadFromFile(_ context.Context, path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var p *Policy
	switch filepath.Ext(path) {
	case ".rego":
		p = regoPolicy(path, string(data))
	case ".json":
		p, err = definedPolicy(data, json.Unmarshal)
	case ".yaml", ".yml":
		p, err = definedPolicy(data, yaml.Unmarshal)
	default:
		err = fmt.Errorf("unsupported file type: %s", path)
	}
	if err != nil {
		return nil, err
	}

	l.logger.Debug().Str("path", path).Str("policy", p.Name).Msg("Policy loaded from file")
	return p, nil
}

// regoPolicy names a bare Rego file after its base name. The leading comment
// block becomes the description.
func regoPolicy(path, source string) *Policy {
	now := time.Now()
	return &Policy{
		Name:        strings.TrimSuffix(filepath.Base(path), ".rego"),
		Description: leadingComment(source),
		Rego:        source,
		Severity:    SeverityError,
		Enabled:     true,
		Metadata:    map[string]interface{}{"source": path},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func definedPolicy(data []byte, unmarshal func([]byte, any) error) (*Policy, error) {
	var p Policy
	if err := unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy definition: %w", err)
	}
	if p.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "is required"}
	}
	if p.Rego == "" {
		return nil, &ValidationError{Field: "rego", Message: "is required", Value: p.Name}
	}
	if p.Severity == "" {
		p.Severity = SeverityError
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	return &p, nil
}

func leadingComment(source string) string {
	var parts []string
	scanner := bufio.NewScanner(strings.NewReader(source))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		text, isComment := strings.CutPrefix(line, "#")
		if !isComment {
			if line != "" && len(parts) > 0 {
				break
			}
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Watch reloads the policies under paths whenever a policy file changes and
// passes them to reloadFn. Bursts of events are debounced.
func (l *Loader) Watch(ctx context.Context, paths []string, reloadFn func([]Policy) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	l.watcher = watcher

	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || path == root {
				return watcher.Add(path)
			}
			return nil
		})
		if err != nil {
			l.logger.Warn().Err(err).Str("path", root).Msg("Cannot watch policy path")
		}
	}

	go l.run(ctx, paths, reloadFn)

	l.logger.Info().Int("paths", len(paths)).Msg("Watching policy paths")
	return nil
}

func (l *Loader) run(ctx context.Context, paths []string, reloadFn func([]Policy) error) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	reload := func() {
		policies, err := l.LoadFromPaths(ctx, paths)
		if err == nil {
			err = reloadFn(policies)
		}
		if err != nil {
			l.logger.Error().Err(err).Msg("Failed to reload policies")
			return
		}
		l.logger.Info().Int("count", len(policies)).Msg("Policies reloaded")
	}

	for {
		select {
		case <-ctx.Done():
			_ = l.watcher.Close()
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if !isPolicyFile(event.Name) || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			l.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Policy file changed")
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(l.reloadDelay, reload)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// StopWatching stops watching for file changes.
func (l *Loader) StopWatching() error {
	if l.watcher == nil {
		return nil
	}
	return l.watcher.Close()
}
