package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	defer versionCmd.SetOut(nil)
	versionCmd.Run(versionCmd, nil)

	if !strings.HasPrefix(buf.String(), "nightwatch version ") {
		t.Errorf("unexpected version output %q", buf.String())
	}
}

func TestCompletionCommandArgs(t *testing.T) {
	if err := completionCmd.Args(completionCmd, []string{"bash"}); err != nil {
		t.Errorf("bash should be accepted: %v", err)
	}
	if err := completionCmd.Args(completionCmd, []string{"tcsh"}); err == nil {
		t.Error("tcsh should be rejected")
	}
}

func TestCompletionWritesScript(t *testing.T) {
	var buf bytes.Buffer
	completionCmd.SetOut(&buf)
	defer completionCmd.SetOut(nil)

	if err := completionCmd.RunE(completionCmd, []string{"bash"}); err != nil {
		t.Fatalf("completion failed: %v", err)
	}
	if !strings.Contains(buf.String(), "nightwatch") {
		t.Error("bash completion should mention the command name")
	}
}
