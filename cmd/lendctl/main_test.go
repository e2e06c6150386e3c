package main

import (
	"bytes"
	"strings"
	"testing"
)

func run(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	want := []string{"migrate", "policy seed", "policy activate", "policy list", "policy export", "shares reap", "admin create"}
	root := newRootCmd()
	for _, path := range want {
		cmd, rest, err := root.Find(strings.Fields(path))
		if err != nil || len(rest) != 0 || cmd.CommandPath() != "lendctl "+path {
			t.Errorf("%s: not registered (%v)", path, err)
		}
	}
}

func TestArgumentValidation(t *testing.T) {
	cases := [][]string{
		{"policy", "seed"},
		{"policy", "activate"},
		{"policy", "export", "a", "b"},
		{"admin", "create"},
		{"migrate", "extra"},
	}
	for _, args := range cases {
		if _, err := run(args...); err == nil {
			t.Errorf("%v: expected argument error", args)
		}
	}
}

func TestAdminCreateRejectsShortPassword(t *testing.T) {
	t.Setenv("LENDCTL_ADMIN_PASSWORD", "")
	_, err := run("admin", "create", "ops@example.com", "--password", "short")
	if err == nil || !strings.Contains(err.Error(), "at least") {
		t.Fatalf("expected password length error, got %v", err)
	}
}

func TestPolicySeedMissingFile(t *testing.T) {
	if _, err := run("policy", "seed", "does-not-exist.yaml"); err == nil {
		t.Fatal("expected error for missing seed file")
	}
}
