// Package desktop talks to the host OS: the foreground window title and window screenshots.
package desktop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// ErrNoForegroundWindow means the OS reported no active window.
var ErrNoForegroundWindow = errors.New("no foreground window")

// Runner executes an external command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		return out, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, err
}

// commandTimeout bounds each OS query so a wedged helper cannot stall a tick.
const commandTimeout = 2 * time.Second

// Desktop reads the active window title and captures it to an image.
type Desktop struct {
	goos string
	run  Runner
}

// New returns a Desktop for the running OS.
func New() *Desktop {
	return &Desktop{goos: runtime.GOOS, run: execRunner}
}

// NewWithRunner is used by tests to fake the platform tools.
func NewWithRunner(goos string, run Runner) *Desktop {
	return &Desktop{goos: goos, run: run}
}

// ActiveTitle returns the title of the foreground window.
func (d *Desktop) ActiveTitle(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var out []byte
	var err error
	switch d.goos {
	case "darwin":
		out, err = d.run(ctx, "osascript", "-e",
			`tell application "System Events" to get name of first window of (first application process whose frontmost is true)`)
	case "windows":
		out, err = d.run(ctx, "powershell", "-NoProfile", "-Command", windowsTitleScript)
	default:
		out, err = d.run(ctx, "xdotool", "getactivewindow", "getwindowname")
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(out), "\r\n"), nil
}

// Screenshot captures the foreground window into path (PNG).
// It returns ErrNoForegroundWindow when the window cannot be resolved.
func (d *Desktop) Screenshot(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*commandTimeout)
	defer cancel()

	switch d.goos {
	case "darwin":
		out, err := d.run(ctx, "osascript", "-e",
			`tell application "System Events" to get id of first window of (first application process whose frontmost is true)`)
		id := strings.TrimSpace(string(out))
		if err != nil || id == "" {
			return ErrNoForegroundWindow
		}
		_, err = d.run(ctx, "screencapture", "-x", "-l", id, path)
		return err
	case "windows":
		// Single quotes are doubled inside a PowerShell literal string
		quoted := strings.ReplaceAll(path, "'", "''")
		_, err := d.run(ctx, "powershell", "-NoProfile", "-Command", fmt.Sprintf(windowsShotScript, quoted))
		return err
	default:
		out, err := d.run(ctx, "xdotool", "getactivewindow")
		id := strings.TrimSpace(string(out))
		if err != nil || id == "" {
			return ErrNoForegroundWindow
		}
		// ImageMagick's import grabs a single window by X id
		_, err = d.run(ctx, "import", "-window", id, path)
		return err
	}
}

const windowsTitleScript = `Add-Type @"
using System; using System.Runtime.InteropServices; using System.Text;
public class W { [DllImport("user32.dll")] public static extern IntPtr GetForegroundWindow();
[DllImport("user32.dll")] public static extern int GetWindowText(IntPtr h, StringBuilder s, int n); }
"@
$h=[W]::GetForegroundWindow(); $sb=New-Object System.Text.StringBuilder 512; [void][W]::GetWindowText($h,$sb,512); $sb.ToString()`

const windowsShotScript = `Add-Type -AssemblyName System.Drawing
Add-Type @"
using System; using System.Runtime.InteropServices;
public struct R { public int L; public int T; public int Ri; public int B; }
public class W { [DllImport("user32.dll")] public static extern IntPtr GetForegroundWindow();
[DllImport("user32.dll")] public static extern bool GetWindowRect(IntPtr h, out R r); }
"@
$h=[W]::GetForegroundWindow(); if ($h -eq [IntPtr]::Zero) { exit 2 }
$r=New-Object R; [void][W]::GetWindowRect($h,[ref]$r)
$bmp=New-Object System.Drawing.Bitmap ($r.Ri-$r.L),($r.B-$r.T)
$g=[System.Drawing.Graphics]::FromImage($bmp); $g.CopyFromScreen($r.L,$r.T,0,0,$bmp.Size)
$bmp.Save('%s',[System.Drawing.Imaging.ImageFormat]::Png)`
