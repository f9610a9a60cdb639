package env

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDurationFallbacks(t *testing.T) {
	t.Setenv(SyncInterval, "")
	if got := Duration(SyncInterval, 5*time.Minute); got != 5*time.Minute {
		t.Fatalf("unset duration, want 5m got %s", got)
	}
	t.Setenv(SyncInterval, "garbage")
	if got := Duration(SyncInterval, time.Minute); got != time.Minute {
		t.Fatalf("invalid duration, want 1m got %s", got)
	}
	t.Setenv(SyncInterval, "-3s")
	if got := Duration(SyncInterval, time.Minute); got != time.Minute {
		t.Fatalf("negative duration, want 1m got %s", got)
	}
	t.Setenv(SyncInterval, "90s")
	if got := Duration(SyncInterval, time.Minute); got != 90*time.Second {
		t.Fatalf("want 90s got %s", got)
	}
}

func TestBoolAndInt(t *testing.T) {
	t.Setenv("FIELDSYNC_TEST_BOOL", "Yes")
	if !Bool("FIELDSYNC_TEST_BOOL", false) {
		t.Fatalf("expected yes to parse as true")
	}
	t.Setenv("FIELDSYNC_TEST_BOOL", "maybe")
	if !Bool("FIELDSYNC_TEST_BOOL", true) {
		t.Fatalf("expected fallback for unknown value")
	}
	t.Setenv("FIELDSYNC_TEST_INT", " 42 ")
	if got := Int("FIELDSYNC_TEST_INT", 0); got != 42 {
		t.Fatalf("want 42 got %d", got)
	}
}

func TestPairs(t *testing.T) {
	t.Setenv(Tables, "trips=https://a.feishu.cn/base/x?table=t1, fuel = https://b ;bad; =skip")
	got := Pairs(Tables)
	if len(got) != 2 {
		t.Fatalf("expected 2 pairs, got %#v", got)
	}
	if got["trips"] != "https://a.feishu.cn/base/x?table=t1" {
		t.Fatalf("unexpected trips url %q", got["trips"])
	}
	if got["fuel"] != "https://b" {
		t.Fatalf("unexpected fuel url %q", got["fuel"])
	}
}

func writeDotEnv(t *testing.T, dir, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	return path
}

func unsetAfter(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		key := key
		t.Cleanup(func() { _ = os.Unsetenv(key) })
	}
}

func TestLoadFirstSkipsMissingAndKeepsExisting(t *testing.T) {
	root := t.TempDir()
	path := writeDotEnv(t, filepath.Join(root, "farm"),
		"FIELDSYNC_TEST_DOTENV_A=from-file\nFIELDSYNC_TEST_DOTENV_B=kept-by-env\n")
	unsetAfter(t, "FIELDSYNC_TEST_DOTENV_A")
	t.Setenv("FIELDSYNC_TEST_DOTENV_B", "from-env")

	got, err := loadFirst([]string{filepath.Join(root, "missing", ".env"), path})
	if err != nil {
		t.Fatalf("loadFirst: %v", err)
	}
	if got.Path != path {
		t.Fatalf("want path %s got %s", path, got.Path)
	}
	if strings.Join(got.Keys, ",") != "FIELDSYNC_TEST_DOTENV_A" {
		t.Fatalf("unexpected keys %v", got.Keys)
	}
	if v := os.Getenv("FIELDSYNC_TEST_DOTENV_A"); v != "from-file" {
		t.Fatalf("want from-file got %q", v)
	}
	if v := os.Getenv("FIELDSYNC_TEST_DOTENV_B"); v != "from-env" {
		t.Fatalf("existing variable overwritten: %q", v)
	}
}

func TestLoadFirstStopsOnMalformedFile(t *testing.T) {
	root := t.TempDir()
	bad := writeDotEnv(t, filepath.Join(root, "bad"), "FIELDSYNC_TEST_DOTENV_C='unterminated\n")
	good := writeDotEnv(t, filepath.Join(root, "good"), "FIELDSYNC_TEST_DOTENV_D=1\n")
	unsetAfter(t, "FIELDSYNC_TEST_DOTENV_C", "FIELDSYNC_TEST_DOTENV_D")

	if _, err := loadFirst([]string{bad, good}); err == nil {
		t.Fatalf("expected parse error for %s", bad)
	}
	if _, set := os.LookupEnv("FIELDSYNC_TEST_DOTENV_D"); set {
		t.Fatalf("search continued past a malformed file")
	}
}

func TestDotEnvCandidates(t *testing.T) {
	t.Setenv(EnvFile, " /etc/fieldsync/field.env ")
	got := dotEnvCandidates()
	if len(got) != 1 || got[0] != "/etc/fieldsync/field.env" {
		t.Fatalf("explicit file should win, got %v", got)
	}

	t.Setenv(EnvFile, "")
	if got := dotEnvCandidates(); len(got) != 0 {
		t.Fatalf("search must be disabled under go test, got %v", got)
	}

	dirs := ancestorsDotEnv(filepath.Join(string(filepath.Separator), "a", "b"))
	want := []string{
		filepath.Join(string(filepath.Separator), "a", "b", ".env"),
		filepath.Join(string(filepath.Separator), "a", ".env"),
		filepath.Join(string(filepath.Separator), ".env"),
	}
	if strings.Join(dirs, "|") != strings.Join(want, "|") {
		t.Fatalf("want %v got %v", want, dirs)
	}
}
