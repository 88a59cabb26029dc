// internal/browser/args.go
package browser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/xkilldash9x/cdpipe/internal/config"
)

// DefaultArgs quiets the background services, prompts and throttling that get in the
// way of an app-style window.
var DefaultArgs = []string{
	"--disable-background-networking",
	"--disable-background-timer-throttling",
	"--disable-backgrounding-occluded-windows",
	"--disable-breakpad",
	"--disable-client-side-phishing-detection",
	"--disable-default-apps",
	"--disable-dev-shm-usage",
	"--disable-infobars",
	"--disable-extensions",
	"--disable-features=site-per-process",
	"--disable-hang-monitor",
	"--disable-ipc-flooding-protection",
	"--disable-popup-blocking",
	"--disable-prompt-on-repost",
	"--disable-renderer-backgrounding",
	"--disable-sync",
	"--disable-translate",
	"--disable-windows10-custom-titlebar",
	"--metrics-recording-only",
	"--no-first-run",
	"--no-default-browser-check",
	"--safebrowsing-disable-auto-update",
	"--password-store=basic",
	"--use-mock-keychain",
}

// noCacheArgs keep local pages fresh across reloads while they are being edited.
var noCacheArgs = []string{
	"--disable-application-cache",
	"--disk-cache-size=1",
	"--media-cache-size=1",
	"--disable-cache",
	"--disable-offline-load-stale-cache",
	"--disable-gpu-program-cache",
	"--aggressive-cache-discard",
}

// Content is what the window shows first: a URL or an inline HTML document.
type Content struct {
	url  string
	html string
}

// URL content is loaded as given.
func URL(u string) Content { return Content{url: u} }

// HTML content is served as a data: URL.
func HTML(doc string) Content { return Content{html: doc} }

// String returns the address the browser is pointed at.
func (c Content) String() string {
	if c.html != "" {
		return "data:text/html," + url.PathEscape(c.html)
	}
	if c.url == "" {
		return "about:blank"
	}
	return c.url
}

// isRemote reports whether the content is fetched over http(s).
func (c Content) isRemote() bool {
	return c.html == "" && (strings.HasPrefix(c.url, "http://") || strings.HasPrefix(c.url, "https://"))
}

// BuildArgs assembles the command line: defaults, profile dir, window size, cache
// flags for local content, user args, the debugging pipe and finally the page. The
// page is opened as an app window unless kiosk or headless mode is on.
func BuildArgs(cfg config.BrowserConfig, content Content, userDataDir string) []string {
	args := make([]string, 0, len(DefaultArgs)+len(noCacheArgs)+len(cfg.Args)+6)
	args = append(args, DefaultArgs...)
	args = append(args, "--user-data-dir="+userDataDir)
	if cfg.Width > 0 && cfg.Height > 0 {
		args = append(args, fmt.Sprintf("--window-size=%d,%d", cfg.Width, cfg.Height))
	}
	if cfg.Headless {
		args = append(args, "--headless=new", "--hide-scrollbars", "--mute-audio")
	}
	if cfg.Kiosk {
		args = append(args, "--kiosk")
	}
	if cfg.DisableCacheForLocal && !content.isRemote() {
		args = append(args, noCacheArgs...)
	}
	args = append(args, cfg.Args...)
	args = append(args, "--remote-debugging-pipe")

	page := content.String()
	if cfg.Kiosk || cfg.Headless {
		args = append(args, page)
	} else {
		args = append(args, "--app="+page)
	}
	return args
}
