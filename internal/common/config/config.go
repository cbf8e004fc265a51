// Package config provides a configuration manager that loads and watches a JSON configuration file.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Conf represents the dynamic configuration of the adapter.
type Conf struct {
	// AllowedHosts restricts the metadata API hosts a data source may point to.
	// An empty list allows every host.
	AllowedHosts []string `json:"allowedHosts"`
}

// Manager loads the configuration and keeps it current.
type Manager struct {
	config     Conf
	allowSet   map[string]struct{}
	lock       sync.RWMutex
	configPath string

	log *slog.Logger
}

type options struct {
	Logger *slog.Logger
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// New creates a new configuration manager for the file at path.
// An empty path gives a manager with the default configuration.
func New(path string, args ...Options) *Manager {
	opts := options{
		Logger: slog.Default(),
	}

	for _, opt := range args {
		opt(&opts)
	}

	return &Manager{
		configPath: path,
		log:        opts.Logger,
	}
}

// Load reads the configuration file and replaces the current configuration.
// It does nothing when the manager has no path.
func (cm *Manager) Load() error {
	if cm.configPath == "" {
		return nil
	}

	file, err := os.Open(cm.configPath)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer file.Close()

	var newConfig Conf
	if err := json.NewDecoder(file).Decode(&newConfig); err != nil {
		return fmt.Errorf("decoding config JSON: %w", err)
	}

	set := make(map[string]struct{}, len(newConfig.AllowedHosts))
	hosts := make([]string, 0, len(newConfig.AllowedHosts))
	for _, h := range newConfig.AllowedHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if _, dup := set[h]; dup {
			continue
		}
		set[h] = struct{}{}
		hosts = append(hosts, h)
	}
	newConfig.AllowedHosts = hosts

	cm.lock.Lock()
	cm.config = newConfig
	cm.allowSet = set
	cm.lock.Unlock()

	cm.log.Info("Configuration loaded", "config", newConfig)
	return nil
}

// Watch starts watching the configuration file for changes.
//
// It returns two channels: one for configuration changes which result in a successful load and another for unrecoverable watcher errors.
func (cm *Manager) Watch(ctx context.Context) (changes <-chan struct{}, errors <-chan error, err error) {
	if cm.configPath == "" {
		return nil, nil, fmt.Errorf("no configuration file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create watcher: %v", err)
	}

	configDir := filepath.Dir(cm.configPath)
	if err := watcher.Add(configDir); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("failed to add directory %s to watcher: %v", configDir, err)
	}

	cm.log.Info("Watching configuration directory", "dir", configDir)
	changesCh := make(chan struct{}, 1)
	errorsCh := make(chan error, 1)

	if err := cm.Load(); err != nil {
		cm.log.Warn("Error loading initial config", "err", err)
	}

	target := filepath.Clean(cm.configPath)
	go func() {
		defer close(changesCh)
		defer close(errorsCh)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				cm.log.Info("Configuration watcher stopped")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					errorsCh <- fmt.Errorf("watcher events channel closed unexpectedly")
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if filepath.Clean(event.Name) != target {
					continue
				}

				cm.log.Debug("Configuration file changed. Reloading...")
				if err := cm.Load(); err != nil {
					cm.log.Warn("Error reloading config", "err", err)
					continue
				}

				select {
				case changesCh <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					errorsCh <- fmt.Errorf("watcher errors channel closed unexpectedly")
					return
				}
				cm.log.Warn("Watcher error", "err", err)
			}
		}
	}()

	return changesCh, errorsCh, nil
}

// AllowList returns the normalized allowed hosts.
func (cm *Manager) AllowList() []string {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	return cm.config.AllowedHosts
}

// IsAllowed reports whether host may be used as a metadata API host.
func (cm *Manager) IsAllowed(host string) bool {
	cm.lock.RLock()
	defer cm.lock.RUnlock()

	if len(cm.allowSet) == 0 {
		return true
	}
	_, ok := cm.allowSet[strings.ToLower(host)]
	return ok
}
