// internal/hostfns/hostfns.go
package hostfns

import (
	"context"
	"errors"
	"fmt"
	"os"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cdpipe/pkg/devtools"
)

// ErrInvalidArgs is the rejection for a call whose arguments have the wrong shape.
var ErrInvalidArgs = errors.New("invalid arguments")

// Binder exposes host functions to a page. Both *devtools.Session and *browser.Browser
// satisfy it.
type Binder interface {
	Bind(ctx context.Context, name string, fn devtools.HostFunc) error
}

// Files gives the page plain filesystem access with the permissions of this process.
type Files struct {
	logger *zap.Logger
}

// NewFiles creates the file host functions.
func NewFiles(logger *zap.Logger) *Files {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Files{logger: logger.Named("hostfns")}
}

// Register binds readFile, writeFile and readDir, stopping at the first failure.
func (f *Files) Register(ctx context.Context, b Binder) error {
	for _, fn := range []struct {
		name string
		impl devtools.HostFunc
	}{
		{"readFile", f.ReadFile},
		{"writeFile", f.WriteFile},
		{"readDir", f.ReadDir},
	} {
		if err := b.Bind(ctx, fn.name, fn.impl); err != nil {
			return fmt.Errorf("failed to bind %s: %w", fn.name, err)
		}
	}
	return nil
}

// ReadFile takes (path) and resolves with the file's contents as text.
func (f *Files) ReadFile(args []devtools.Value) (any, error) {
	path, err := stringArg(args, 0)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	f.logger.Debug("readFile", zap.String("path", path), zap.Int("bytes", len(data)))
	return string(data), nil
}

// WriteFile takes (path, content), replaces the file and resolves with true.
func (f *Files) WriteFile(args []devtools.Value) (any, error) {
	path, err := stringArg(args, 0)
	if err != nil {
		return nil, err
	}
	content, err := stringArg(args, 1)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	f.logger.Debug("writeFile", zap.String("path", path), zap.Int("bytes", len(content)))
	return true, nil
}

// ReadDir takes (dir) and resolves with the names of its entries.
func (f *Files) ReadDir(args []devtools.Value) (any, error) {
	dir, err := stringArg(args, 0)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	f.logger.Debug("readDir", zap.String("dir", dir), zap.Int("entries", len(names)))
	return names, nil
}

func stringArg(args []devtools.Value, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%w: missing argument %d", ErrInvalidArgs, i)
	}
	var s string
	if err := json.Unmarshal(args[i], &s); err != nil {
		return "", fmt.Errorf("%w: argument %d is not a string", ErrInvalidArgs, i)
	}
	return s, nil
}
