// internal/browser/url.go
package browser

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// NormalizeURL passes anything with a scheme through untouched and turns a local path,
// relative to the working directory, into a file:// URL. Non-ASCII characters and
// spaces in the path are percent-encoded.
func NormalizeURL(target string) (string, error) {
	// A one-letter scheme is a Windows drive, not a URL.
	if u, err := url.Parse(target); err == nil && len(u.Scheme) > 1 {
		return target, nil
	}

	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", target, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String(), nil
}
