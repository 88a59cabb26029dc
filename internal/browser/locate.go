// internal/browser/locate.go
package browser

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
)

// ErrBrowserNotFound is returned when no Chromium-family binary can be found.
var ErrBrowserNotFound = errors.New("no chromium-based browser found; set browser.path")

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// Locate resolves the browser binary. An explicit path must exist and is used as is.
// Otherwise the well-known install locations for the current OS are tried, then the
// usual executable names on PATH.
func Locate(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("browser.path %q: %w", explicit, err)
		}
		return explicit, nil
	}

	for _, p := range knownPaths(goruntime.GOOS) {
		if isExecutable(p) {
			return p, nil
		}
	}
	for _, name := range executableNames(goruntime.GOOS) {
		if p, err := lookPath(name); err == nil {
			return p, nil
		}
	}
	return "", ErrBrowserNotFound
}

// knownPaths lists absolute install locations, most preferred first.
func knownPaths(goos string) []string {
	switch goos {
	case "darwin":
		home, _ := os.UserHomeDir()
		paths := []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
		}
		if home != "" {
			paths = append(paths, filepath.Join(home, "Applications/Google Chrome.app/Contents/MacOS/Google Chrome"))
		}
		return paths
	case "windows":
		var paths []string
		for _, env := range []string{"LOCALAPPDATA", "PROGRAMFILES", "PROGRAMFILES(X86)"} {
			root := os.Getenv(env)
			if root == "" {
				continue
			}
			paths = append(paths,
				filepath.Join(root, `Google\Chrome\Application\chrome.exe`),
				filepath.Join(root, `Chromium\Application\chrome.exe`),
				filepath.Join(root, `Microsoft\Edge\Application\msedge.exe`),
			)
		}
		return paths
	default:
		return []string{
			"/usr/bin/google-chrome-stable",
			"/usr/bin/google-chrome",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
			"/usr/bin/microsoft-edge",
		}
	}
}

// executableNames lists names looked up on PATH after the known paths miss.
func executableNames(goos string) []string {
	if goos == "windows" {
		return []string{"chrome", "chrome.exe", "msedge"}
	}
	return []string{
		"google-chrome-stable",
		"google-chrome",
		"chromium",
		"chromium-browser",
		"microsoft-edge",
	}
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if goruntime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0o111 != 0
}
