package staticassets

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func memFsWith(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for p, content := range files {
		if err := afero.WriteFile(fs, p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	return fs
}

func TestCollect(t *testing.T) {
	fs := memFsWith(t, map[string]string{
		"static/css/app.css": "body { color: red }",
		"static/js/app.js":   "console.log('hi')",
	})
	c := NewCollector(fs, []string{"static"}, "staticfiles", nil)

	res, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if res.Copied != 2 || res.Skipped != 0 {
		t.Errorf("result = %+v, want 2 copied", res)
	}

	// Plain copy exists.
	if ok, _ := afero.Exists(fs, "staticfiles/css/app.css"); !ok {
		t.Error("logical copy missing")
	}

	// Manifest maps logical -> hashed, and the hashed file exists.
	data, err := afero.ReadFile(fs, "staticfiles/"+ManifestName)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	hashed, ok := m.Paths["css/app.css"]
	if !ok {
		t.Fatalf("manifest missing css/app.css: %v", m.Paths)
	}
	if !strings.HasPrefix(hashed, "css/app.") || !strings.HasSuffix(hashed, ".css") {
		t.Errorf("hashed name = %q", hashed)
	}
	if ok, _ := afero.Exists(fs, "staticfiles/"+hashed); !ok {
		t.Errorf("hashed copy %s missing", hashed)
	}
}

func TestCollect_EarlierSourceWins(t *testing.T) {
	fs := memFsWith(t, map[string]string{
		"static/css/app.css": "app override",
		"vendor/css/app.css": "vendor default",
		"vendor/css/lib.css": "lib",
	})
	c := NewCollector(fs, []string{"static", "vendor"}, "out", nil)

	res, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if res.Copied != 2 || res.Skipped != 1 {
		t.Errorf("result = %+v, want copied=2 skipped=1", res)
	}
	data, _ := afero.ReadFile(fs, "out/css/app.css")
	if string(data) != "app override" {
		t.Errorf("content = %q, earlier source should win", data)
	}
}

func TestCollect_StableHashes(t *testing.T) {
	fs := memFsWith(t, map[string]string{"static/a.txt": "same"})
	c := NewCollector(fs, []string{"static"}, "out", nil)

	if _, err := c.Collect(context.Background()); err != nil {
		t.Fatalf("first Collect: %v", err)
	}
	first, _ := afero.ReadFile(fs, "out/"+ManifestName)
	if _, err := c.Collect(context.Background()); err != nil {
		t.Fatalf("second Collect: %v", err)
	}
	second, _ := afero.ReadFile(fs, "out/"+ManifestName)
	if string(first) != string(second) {
		t.Error("manifest should be identical across runs with unchanged content")
	}
}

func TestCollect_MissingSourceIsWarningOnly(t *testing.T) {
	fs := memFsWith(t, map[string]string{"static/a.txt": "x"})
	c := NewCollector(fs, []string{"static", "nope"}, "out", nil)
	res, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if res.Copied != 1 {
		t.Errorf("copied = %d, want 1", res.Copied)
	}
}

func TestCollect_ConfigErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	if _, err := NewCollector(fs, nil, "out", nil).Collect(context.Background()); err == nil {
		t.Error("no sources should fail")
	}
	if _, err := NewCollector(fs, []string{"static"}, "", nil).Collect(context.Background()); err == nil {
		t.Error("empty root should fail")
	}
}

func TestCollect_Cancelled(t *testing.T) {
	fs := memFsWith(t, map[string]string{"static/a.txt": "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewCollector(fs, []string{"static"}, "out", nil).Collect(ctx); err == nil {
		t.Error("cancelled context should abort collection")
	}
}

func TestVerify(t *testing.T) {
	fs := memFsWith(t, map[string]string{"static/a.txt": "x"})
	c := NewCollector(fs, []string{"static"}, "out", nil)
	if _, err := c.Collect(context.Background()); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	n, err := Verify(fs, "out")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if n != 1 {
		t.Errorf("entries = %d, want 1", n)
	}

	if _, err := Verify(fs, "missing-root"); err == nil {
		t.Error("Verify should fail for a missing root")
	}
}

func TestHashedName(t *testing.T) {
	testCases := []struct {
		logical string
		want    string
	}{
		{"css/app.css", "css/app.abcdef123456.css"},
		{"favicon.ico", "favicon.abcdef123456.ico"},
		{"fonts/noext", "fonts/noext.abcdef123456"},
	}
	for _, tc := range testCases {
		t.Run(tc.logical, func(t *testing.T) {
			if got := hashedName(tc.logical, "abcdef123456"); got != tc.want {
				t.Errorf("hashedName = %q, want %q", got, tc.want)
			}
		})
	}
}
