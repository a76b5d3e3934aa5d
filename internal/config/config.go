// Package config loads the runtime's layered configuration: a base YAML
// file, an optional local overlay, and environment variable overrides,
// precedence env > local > base. Grounded on the teacher's
// engine/config/unified_config.go defaults-and-validate shape and its
// engine/config/runtime.go fsnotify-based hot reload, narrowed to the
// settings this runtime actually needs (spec.md §6, "Process I/O").
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Location mirrors internal/sun.Location's fields so this package does not
// need to import internal/sun just to read a config file shaped like one.
type Location struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Altitude  float64 `yaml:"altitude"`
}

// Controller is one entry of the per-controller bootstrap settings: an id
// a controller.Registry entry is expected to be built under, its kind
// (selecting which concrete Controller constructor cmd/flowmesh uses), and
// free-form settings the constructor interprets (host/port/token/etc).
type Controller struct {
	ID       string         `yaml:"id"`
	Kind     string         `yaml:"kind"`
	Settings map[string]any `yaml:"settings"`
}

// Config is the complete runtime configuration.
type Config struct {
	FlowDir     string       `yaml:"flow_dir"`
	HotReload   bool         `yaml:"hot_reload"`
	Location    Location     `yaml:"location"`
	LogLevel    string       `yaml:"log_level"`
	MetricsAddr string       `yaml:"metrics_addr"`
	Controllers []Controller `yaml:"controllers"`
}

// Defaults returns a Config with sensible defaults, the way the teacher's
// Defaults()/ApplyDefaults() pair seeds every layer before overlays apply.
func Defaults() Config {
	return Config{
		FlowDir:     "./flows",
		HotReload:   true,
		LogLevel:    "info",
		MetricsAddr: ":2112",
	}
}

// Validate checks invariants Load cannot fix by defaulting: an empty flow
// directory path, an out-of-range latitude/longitude, or an unrecognized
// log level are all configuration mistakes, not runtime conditions.
func (c Config) Validate() error {
	if strings.TrimSpace(c.FlowDir) == "" {
		return fmt.Errorf("config: flow_dir cannot be empty")
	}
	if c.Location.Latitude < -90 || c.Location.Latitude > 90 {
		return fmt.Errorf("config: latitude %v out of range [-90, 90]", c.Location.Latitude)
	}
	if c.Location.Longitude < -180 || c.Location.Longitude > 180 {
		return fmt.Errorf("config: longitude %v out of range [-180, 180]", c.Location.Longitude)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log level '%s'", c.LogLevel)
	}
	for _, ctrl := range c.Controllers {
		if strings.TrimSpace(ctrl.ID) == "" {
			return fmt.Errorf("config: controller entry missing id")
		}
		if strings.TrimSpace(ctrl.Kind) == "" {
			return fmt.Errorf("config: controller '%s' missing kind", ctrl.ID)
		}
	}
	return nil
}

// Load reads basePath, merges localPath over it if localPath exists, applies
// defaults for anything still unset, then layers environment variables on
// top (precedence env > local > base), and validates the result.
func Load(basePath, localPath string) (Config, error) {
	cfg := Defaults()

	if err := mergeFile(&cfg, basePath); err != nil {
		return Config{}, fmt.Errorf("config: base file: %w", err)
	}
	if localPath != "" {
		if _, err := os.Stat(localPath); err == nil {
			if err := mergeFile(&cfg, localPath); err != nil {
				return Config{}, fmt.Errorf("config: local overlay: %w", err)
			}
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnv overrides the handful of settings an operator most plausibly
// wants to flip per-environment without editing YAML: flow directory, hot
// reload toggle, log level, and metrics address.
func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("FLOWMESH_FLOW_DIR"); ok {
		cfg.FlowDir = v
	}
	if v, ok := os.LookupEnv("FLOWMESH_HOT_RELOAD"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.HotReload = b
		}
	}
	if v, ok := os.LookupEnv("FLOWMESH_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("FLOWMESH_METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
}

// Watcher re-reads the config directory on file-write events and pushes
// the reloaded Config on Changes, the same directory-watch-over-file-watch
// approach the teacher's HotReloadSystem uses (a renamed-then-recreated
// file, common with editors and atomic config deploys, still fires under
// the parent directory).
type Watcher struct {
	basePath  string
	localPath string
	watcher   *fsnotify.Watcher

	mu      sync.Mutex
	closed  bool
	Changes chan Config
	Errors  chan error
}

// Watch starts watching basePath's (and, if set, localPath's) directory for
// writes and returns a Watcher. Callers must call Run to start delivering
// events and Close to release the underlying fsnotify watcher.
func Watch(basePath, localPath string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: creating watcher: %w", err)
	}

	dirs := map[string]struct{}{filepath.Dir(basePath): {}}
	if localPath != "" {
		dirs[filepath.Dir(localPath)] = struct{}{}
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("config: watching %s: %w", dir, err)
		}
	}

	return &Watcher{
		basePath:  basePath,
		localPath: localPath,
		watcher:   fsw,
		Changes:   make(chan Config, 1),
		Errors:    make(chan error, 1),
	}, nil
}

// Run blocks, reloading and publishing on Changes whenever basePath or
// localPath is written, until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.Changes)
	defer close(w.Errors)

	relevant := func(name string) bool {
		return name == w.basePath || (w.localPath != "" && name == w.localPath)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !relevant(ev.Name) || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.basePath, w.localPath)
			if err != nil {
				select {
				case w.Errors <- err:
				default:
				}
				continue
			}
			select {
			case <-w.Changes:
			default:
			}
			w.Changes <- cfg
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.Errors <- err:
			default:
			}
		}
	}
}

// Close releases the underlying fsnotify watcher. Safe to call more than
// once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.watcher.Close()
}
