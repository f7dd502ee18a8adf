package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute %v: %v", args, err)
	}
	return out.String()
}

func TestBindToURL(t *testing.T) {
	cases := []struct {
		bind string
		want string
	}{
		{"127.0.0.1:7680", "http://127.0.0.1:7680"},
		{"0.0.0.0:8080", "http://127.0.0.1:8080"},
		{":9000", "http://127.0.0.1:9000"},
	}
	for _, tc := range cases {
		if got := bindToURL(tc.bind); got != tc.want {
			t.Errorf("bindToURL(%q) = %q, want %q", tc.bind, got, tc.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate short = %q", got)
	}
	long := strings.Repeat("x", 40)
	got := truncate(long, 10)
	if len(got) != 10 || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncate long = %q", got)
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"Name", "Count"}, [][]string{{"jacket", "3"}, {"hoodie"}}, 1)
	for _, want := range []string{"Name", "Count", "jacket", "hoodie"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out := runCommand(t, "config", "init", "--path", target)
	if !strings.Contains(out, target) {
		t.Fatalf("init output missing target path: %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}

	out = runCommand(t, "config", "validate", "--path", target)
	if !strings.Contains(out, "is valid") {
		t.Fatalf("validate output = %q", out)
	}
}

func TestStatusCommandJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","version":"test","queue_counts":{"pending":1}}`))
	}))
	defer srv.Close()

	out := runCommand(t, "status", "--json", "--server", srv.URL)
	if !strings.Contains(out, `"status": "ok"`) || !strings.Contains(out, `"pending": 1`) {
		t.Fatalf("status output = %q", out)
	}
}
