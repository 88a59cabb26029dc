//go:build !linux

// internal/browser/process_other.go
package browser

import "os/exec"

func killWithParent(*exec.Cmd) {}
