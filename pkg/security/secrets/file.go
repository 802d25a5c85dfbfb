package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileProvider reads secrets from one-file-per-secret directories, the
// layout Kubernetes secret mounts produce. Files must be mode 0600 or
// 0400; anything looser is refused rather than read. With Watch
// enabled an fsnotify watcher invalidates the read cache whenever the
// directory changes, so rotated mounts take effect without a restart.
type FileProvider struct {
	BasePath string
	Watch    bool

	mu      sync.RWMutex
	loaded  map[string]string
	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// NewFileProvider builds a file provider rooted at basePath,
// optionally watching it for changes.
func NewFileProvider(basePath string, watch bool) (*FileProvider, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat base path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("base path is not a directory: %s", basePath)
	}

	p := &FileProvider{
		BasePath: basePath,
		Watch:    watch,
		loaded:   make(map[string]string),
		stop:     make(chan struct{}),
	}

	if watch {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create file watcher: %w", err)
		}
		if err := watcher.Add(basePath); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch directory: %w", err)
		}
		p.watcher = watcher
		go p.watchLoop()
	}

	slog.Info("file secret provider started", "path", basePath, "watch", watch)
	return p, nil
}

// GetSecret reads <BasePath>/<name>, caching the trimmed contents. The
// resolved path must stay inside BasePath and the file must carry
// owner-only permissions.
func (p *FileProvider) GetSecret(ctx context.Context, name string) (string, error) {
	p.mu.RLock()
	if value, ok := p.loaded[name]; ok {
		p.mu.RUnlock()
		return value, nil
	}
	p.mu.RUnlock()

	path := filepath.Join(p.BasePath, name)
	if err := p.checkWithinBase(path); err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("secret file not found: %s", name)
		}
		return "", fmt.Errorf("failed to stat secret file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret path is not a regular file: %s", name)
	}
	if mode := info.Mode().Perm(); mode != 0600 && mode != 0400 {
		return "", fmt.Errorf("insecure permissions on %s: %o (expected 0600 or 0400)", path, mode)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}
	value := strings.TrimSpace(string(data))

	p.mu.Lock()
	p.loaded[name] = value
	p.mu.Unlock()
	return value, nil
}

func (p *FileProvider) checkWithinBase(path string) error {
	absBase, err := filepath.Abs(p.BasePath)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve secret path: %w", err)
	}
	if absPath != absBase && !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return fmt.Errorf("invalid secret path: directory traversal detected")
	}
	return nil
}

// ListSecrets returns the regular-file names under BasePath.
func (p *FileProvider) ListSecrets(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(p.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Provider returns "file".
func (p *FileProvider) Provider() string { return "file" }

// Supports reports whether a regular file with this name exists under
// BasePath.
func (p *FileProvider) Supports(name string) bool {
	info, err := os.Stat(filepath.Join(p.BasePath, name))
	return err == nil && info.Mode().IsRegular()
}

// Refresh drops the read cache so every secret is re-read on next use.
func (p *FileProvider) Refresh(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = make(map[string]string)
	return nil
}

// Close stops the watcher, if one is running.
func (p *FileProvider) Close() error {
	if p.watcher != nil {
		close(p.stop)
		return p.watcher.Close()
	}
	return nil
}

func (p *FileProvider) watchLoop() {
	for {
		select {
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				slog.Debug("secret file changed, dropping cache", "file", filepath.Base(event.Name))
				p.Refresh(context.Background())
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("secret file watcher error", "error", err)
		case <-p.stop:
			return
		}
	}
}
