package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func setupCLI(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("BACKEND", "memory")
	t.Setenv("FALLBACK_BACKEND", "none")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOCAL_CACHE_PATH", filepath.Join(dir, "campusid.db"))
	t.Setenv("DEMO_PASSWORD", "demo-pass")
	t.Setenv("JWT_SECRET", "cli-test-secret")
}

func runCLI(t *testing.T, args ...string) (int, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(context.Background(), args, &out, &errOut)
	return code, out.String()
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	code, out := runCLI(t, args...)
	if code != 0 {
		t.Fatalf("campusid %s: exit %d, output %q", strings.Join(args, " "), code, out)
	}
	return out
}

func TestLoginSessionAcrossInvocations(t *testing.T) {
	setupCLI(t)

	if code, out := runCLI(t, "login", "-email", "multi@ono.ac.il", "-password", "wrong"); code != 1 || !strings.Contains(out, "✗") {
		t.Fatalf("expected failed login, got %d %q", code, out)
	}

	out := mustRun(t, "login", "-email", "multi@ono.ac.il", "-password", "demo-pass")
	if !strings.Contains(out, "Logged in as multi@ono.ac.il (demo, role lecturer)") {
		t.Fatalf("unexpected login output %q", out)
	}

	out = mustRun(t, "me")
	if !strings.Contains(out, "multi@ono.ac.il") || !strings.Contains(out, "student, lecturer") {
		t.Fatalf("unexpected me output %q", out)
	}

	mustRun(t, "role", "student")
	if out := mustRun(t, "role"); !strings.HasPrefix(out, "student") {
		t.Fatalf("expected student to be current, got %q", out)
	}
	if code, _ := runCLI(t, "role", "admin"); code != 1 {
		t.Fatalf("expected switching to an unheld role to fail")
	}

	mustRun(t, "logout")
	if code, _ := runCLI(t, "me"); code != 1 {
		t.Fatalf("expected me to fail after logout")
	}
}

func TestThemeLifecycle(t *testing.T) {
	setupCLI(t)
	mustRun(t, "login", "-email", "student@ono.ac.il", "-password", "demo-pass")

	if code, _ := runCLI(t, "theme", "confirm"); code != 1 {
		t.Fatalf("expected confirm without a session theme to fail")
	}

	mustRun(t, "theme", "set", "dark")
	if out := mustRun(t, "theme"); out != "dark (session)\n" {
		t.Fatalf("expected session theme, got %q", out)
	}
	mustRun(t, "theme", "confirm")

	mustRun(t, "logout")
	mustRun(t, "login", "-email", "student@ono.ac.il", "-password", "demo-pass")
	if out := mustRun(t, "theme", "show"); out != "dark (permanent)\n" {
		t.Fatalf("expected permanent theme after relogin, got %q", out)
	}

	mustRun(t, "theme", "forget")
	if out := mustRun(t, "theme"); !strings.HasSuffix(out, "(auto)\n") {
		t.Fatalf("expected automatic theme, got %q", out)
	}
}

func TestValidateCommand(t *testing.T) {
	setupCLI(t)

	if out := mustRun(t, "validate", "national_id", "123456782"); !strings.Contains(out, "✓") {
		t.Fatalf("unexpected output %q", out)
	}
	if code, out := runCLI(t, "validate", "national_id", "123456789"); code != 1 || !strings.Contains(out, "✗") {
		t.Fatalf("expected invalid check digit, got %d %q", code, out)
	}
	if code, _ := runCLI(t, "validate", "email"); code != 1 {
		t.Fatalf("expected usage error without a value")
	}
}

func TestStudentsRequireAdmin(t *testing.T) {
	setupCLI(t)

	if code, _ := runCLI(t, "students"); code != 1 {
		t.Fatalf("expected listing without a session to fail")
	}

	mustRun(t, "login", "-email", "student@ono.ac.il", "-password", "demo-pass")
	mustRun(t, "students", "list")
	if code, _ := runCLI(t, "students", "delete", "students_1"); code != 1 {
		t.Fatalf("expected student role to be refused writes")
	}

	mustRun(t, "login", "-email", "admin@ono.ac.il", "-password", "demo-pass")
	out := mustRun(t, "students", "add",
		"-full-name", "ישראל ישראלי",
		"-email", "israel@ono.ac.il",
		"-number", "CS12345",
		"-tracks", "cs",
	)
	if !strings.Contains(out, "✓ Created students_") {
		t.Fatalf("unexpected create output %q", out)
	}

	code, out := runCLI(t, "students", "add", "-full-name", "John", "-email", "bad", "-number", "CS12346", "-tracks", "cs")
	if code != 1 {
		t.Fatalf("expected invalid form to fail")
	}
	if !strings.Contains(out, "full_name:") || !strings.Contains(out, "email:") {
		t.Fatalf("expected field errors, got %q", out)
	}

	if code, out := runCLI(t, "students", "delete", "missing"); code != 1 || !strings.Contains(out, "not found") {
		t.Fatalf("expected missing delete to fail, got %d %q", code, out)
	}
}

func TestUnknownCommand(t *testing.T) {
	setupCLI(t)
	if code, _ := runCLI(t, "enroll"); code != 2 {
		t.Fatalf("expected usage exit code for unknown command")
	}
	if out := mustRun(t, "help"); !strings.Contains(out, "Usage: campusid") {
		t.Fatalf("expected usage, got %q", out)
	}
}
