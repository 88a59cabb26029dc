// internal/browser/args_test.go
package browser

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/cdpipe/internal/config"
)

func TestContent(t *testing.T) {
	assert.Equal(t, "https://example.com/", URL("https://example.com/").String())
	assert.Equal(t, "about:blank", Content{}.String())
	assert.Equal(t, "data:text/html,%3Cp%3Ehi%20there%3C%2Fp%3E", HTML("<p>hi there</p>").String())

	assert.True(t, URL("http://localhost:8080").isRemote())
	assert.True(t, URL("https://example.com").isRemote())
	assert.False(t, URL("file:///tmp/index.html").isRemote())
	assert.False(t, HTML("<p>x</p>").isRemote())
}

func TestBuildArgs(t *testing.T) {
	t.Run("App Window", func(t *testing.T) {
		cfg := config.BrowserConfig{Width: 800, Height: 600, Args: []string{"--lang=en-US"}}
		args := BuildArgs(cfg, URL("https://example.com/"), "/tmp/profile")

		require.GreaterOrEqual(t, len(args), len(DefaultArgs)+4)
		assert.Equal(t, DefaultArgs, args[:len(DefaultArgs)])
		assert.Contains(t, args, "--user-data-dir=/tmp/profile")
		assert.Contains(t, args, "--window-size=800,600")
		assert.NotContains(t, args, "--kiosk")
		assert.NotContains(t, args, "--disable-cache")

		n := len(args)
		assert.Equal(t, "--app=https://example.com/", args[n-1])
		assert.Equal(t, "--remote-debugging-pipe", args[n-2])
		assert.Equal(t, "--lang=en-US", args[n-3], "user args come right before the pipe flag")
	})

	t.Run("Kiosk Passes URL Bare", func(t *testing.T) {
		args := BuildArgs(config.BrowserConfig{Kiosk: true}, URL("https://example.com/"), "/p")
		assert.Contains(t, args, "--kiosk")
		assert.Equal(t, "https://example.com/", args[len(args)-1])
	})

	t.Run("Headless Passes URL Bare", func(t *testing.T) {
		args := BuildArgs(config.BrowserConfig{Headless: true}, URL("https://example.com/"), "/p")
		assert.Contains(t, args, "--headless=new")
		assert.Equal(t, "https://example.com/", args[len(args)-1])
	})

	t.Run("Window Size Needs Both Dimensions", func(t *testing.T) {
		for _, cfg := range []config.BrowserConfig{{Width: 800}, {Height: 600}, {}} {
			args := BuildArgs(cfg, URL("https://example.com/"), "/p")
			assert.False(t, slices.ContainsFunc(args, func(a string) bool {
				return strings.HasPrefix(a, "--window-size")
			}), "unexpected window size for %+v", cfg)
		}
	})

	t.Run("Cache Disabled For Local Content", func(t *testing.T) {
		cfg := config.BrowserConfig{DisableCacheForLocal: true}

		local := BuildArgs(cfg, URL("file:///srv/app/index.html"), "/p")
		for _, a := range noCacheArgs {
			assert.Contains(t, local, a)
		}

		remote := BuildArgs(cfg, URL("https://example.com/"), "/p")
		assert.NotContains(t, remote, "--disable-cache")

		off := BuildArgs(config.BrowserConfig{}, URL("file:///srv/app/index.html"), "/p")
		assert.NotContains(t, off, "--disable-cache")
	})
}
