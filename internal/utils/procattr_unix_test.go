//go:build !windows

package utils

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"testing"
	"time"
)

const groupHelperEnv = "PROCTOR_GROUP_INTERRUPT_HELPER"

func TestChildCommandsRunInOwnProcessGroup(t *testing.T) {
	cmds := map[string]*exec.Cmd{
		"safe":   NewSafeCommandContext(context.Background(), "python3").Cmd,
		"camera": NewFFmpegCameraCmd(context.Background(), "0"),
		"viewer": NewFFplayCmd(context.Background(), "Proctor", false),
	}
	for name, cmd := range cmds {
		if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
			t.Errorf("%s: child does not get its own process group", name)
		}
	}
}

// Runs the interrupt scenario in a re-executed test binary that leads its own process
// group, so the group-wide SIGINT never reaches the test runner.
func TestChildSurvivesGroupInterrupt(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	self, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	cmd := exec.Command(self, "-test.run=^TestGroupInterruptHelper$", "-test.v")
	cmd.Env = append(os.Environ(), groupHelperEnv+"=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("helper failed: %v\n%s", err, out)
	}
	if !strings.Contains(string(out), "--- PASS: TestGroupInterruptHelper") {
		t.Fatalf("helper did not run:\n%s", out)
	}
}

func TestGroupInterruptHelper(t *testing.T) {
	if os.Getenv(groupHelperEnv) != "1" {
		t.Skip("only runs inside TestChildSurvivesGroupInterrupt")
	}

	// A handler, unlike signal.Ignore, is not inherited across exec.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT)
	defer signal.Stop(sigs)

	sc := NewSafeCommandContext(context.Background(), "sleep", "30")
	if err := sc.Cmd.Start(); err != nil {
		t.Fatal(err)
	}
	exited := make(chan error, 1)
	go func() { exited <- sc.Cmd.Wait() }()
	defer func() { _ = sc.Cmd.Process.Kill() }()

	pgid, err := syscall.Getpgid(sc.Cmd.Process.Pid)
	if err != nil {
		t.Fatal(err)
	}
	if pgid == syscall.Getpgrp() {
		t.Fatalf("child shares our process group %d", pgid)
	}

	// What a terminal does on Ctrl+C: signal every process in the foreground group.
	if err := syscall.Kill(0, syscall.SIGINT); err != nil {
		t.Fatal(err)
	}
	select {
	case <-sigs:
	case <-time.After(2 * time.Second):
		t.Fatal("interrupt never delivered to this process")
	}

	select {
	case err := <-exited:
		t.Fatalf("child exited after group interrupt: %v", err)
	case <-time.After(300 * time.Millisecond):
	}
}
