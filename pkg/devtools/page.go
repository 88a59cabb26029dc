// pkg/devtools/page.go
package devtools

import (
	"context"
	"errors"
	"fmt"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/css"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	json "github.com/go-json-experiment/json"
)

// ErrHeadless is returned by window operations on a session without a window.
var ErrHeadless = errors.New("devtools: no window in headless mode")

// Navigate loads url in the attached page. A navigation the browser refuses outright
// (bad scheme, DNS failure) is reported as *JSError carrying the browser's error text.
func (s *Session) Navigate(ctx context.Context, url string) error {
	var res page.NavigateReturns
	if err := s.callInto(ctx, page.CommandNavigate, page.Navigate(url), &res); err != nil {
		return err
	}
	if res.ErrorText != "" {
		text, _ := json.Marshal(res.ErrorText)
		return &JSError{Value: text}
	}
	return nil
}

// Evaluate runs expr in the page, awaits it if it yields a promise and returns the
// result by value. A thrown exception or an Error result comes back as *JSError.
func (s *Session) Evaluate(ctx context.Context, expr string) (Value, error) {
	return s.Call(ctx, runtime.CommandEvaluate, runtime.Evaluate(expr).
		WithAwaitPromise(true).
		WithReturnByValue(true))
}

// InjectStylesheet adds a stylesheet with the given text to the main frame.
func (s *Session) InjectStylesheet(ctx context.Context, text string) error {
	var tree page.GetFrameTreeReturns
	if err := s.callInto(ctx, page.CommandGetFrameTree, page.GetFrameTree(), &tree); err != nil {
		return err
	}
	if tree.FrameTree == nil || tree.FrameTree.Frame == nil {
		return errors.New("frame tree has no main frame")
	}

	var sheet css.CreateStyleSheetReturns
	if err := s.callInto(ctx, css.CommandCreateStyleSheet, css.CreateStyleSheet(tree.FrameTree.Frame.ID), &sheet); err != nil {
		return err
	}

	_, err := s.Call(ctx, css.CommandSetStyleSheetText, css.SetStyleSheetText(sheet.StyleSheetID, text))
	return err
}

// SetBounds moves, resizes or changes the state of the page window. For any state
// other than normal only the state is sent; geometry is ignored.
func (s *Session) SetBounds(ctx context.Context, b browser.Bounds) error {
	windowID := s.WindowID()
	if windowID == 0 {
		return ErrHeadless
	}
	if b.WindowState != "" && b.WindowState != browser.WindowStateNormal {
		_, err := s.Call(ctx, browser.CommandSetWindowBounds, setWindowStateParams{
			WindowID: windowID,
			Bounds:   windowState{State: b.WindowState},
		})
		return err
	}
	_, err := s.Call(ctx, browser.CommandSetWindowBounds, browser.SetWindowBounds(windowID, &b))
	return err
}

// setWindowStateParams changes only the window state. The browser rejects geometry
// combined with a minimized, maximized or fullscreen state.
type setWindowStateParams struct {
	WindowID browser.WindowID `json:"windowId"`
	Bounds   windowState      `json:"bounds"`
}

type windowState struct {
	State browser.WindowState `json:"windowState"`
}

// Bounds reports the current geometry and state of the page window.
func (s *Session) Bounds(ctx context.Context) (browser.Bounds, error) {
	windowID := s.WindowID()
	if windowID == 0 {
		return browser.Bounds{}, ErrHeadless
	}
	var res browser.GetWindowBoundsReturns
	if err := s.callInto(ctx, browser.CommandGetWindowBounds, browser.GetWindowBounds(windowID), &res); err != nil {
		return browser.Bounds{}, err
	}
	if res.Bounds == nil {
		return browser.Bounds{}, fmt.Errorf("%s reply carried no bounds", browser.CommandGetWindowBounds)
	}
	return *res.Bounds, nil
}

// Close asks the browser to close without waiting for it to answer. The process
// exit is observed through the launcher, and Done closes once the target is gone.
func (s *Session) Close() {
	s.sendAsync(browser.CommandClose, browser.Close())
}
