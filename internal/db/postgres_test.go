package db

import (
	"strings"
	"testing"
)

func TestWithParams(t *testing.T) {
	got, err := WithParams("postgres://localhost:5432/zento?sslmode=require", map[string]string{
		"search_path": "tenant_laura",
	})
	if err != nil {
		t.Fatalf("WithParams: %v", err)
	}
	if !strings.Contains(got, "search_path=tenant_laura") {
		t.Errorf("WithParams() = %q, missing search_path", got)
	}
	if !strings.Contains(got, "sslmode=require") {
		t.Errorf("WithParams() = %q, dropped existing param", got)
	}
}

func TestWithParams_Override(t *testing.T) {
	got, err := WithParams("postgres://localhost/zento?search_path=public", map[string]string{
		"search_path": "tenant_a",
	})
	if err != nil {
		t.Fatalf("WithParams: %v", err)
	}
	if strings.Contains(got, "search_path=public") {
		t.Errorf("WithParams() = %q, should have replaced search_path", got)
	}
	if !strings.Contains(got, "search_path=tenant_a") {
		t.Errorf("WithParams() = %q, missing new search_path", got)
	}
}

func TestWithParams_InvalidDSN(t *testing.T) {
	if _, err := WithParams("postgres://bad\x7fhost/db", map[string]string{"a": "b"}); err == nil {
		t.Error("WithParams should reject an unparseable DSN")
	}
}

func TestMigrateDSN(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{"postgresql scheme", "postgresql://u:p@h/db", "postgres://u:p@h/db"},
		{"postgres scheme", "postgres://u:p@h/db", "postgres://u:p@h/db"},
		{"other", "mysql://h/db", "mysql://h/db"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MigrateDSN(tc.in); got != tc.want {
				t.Errorf("MigrateDSN(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestMigrationFS_BothTreesPresent(t *testing.T) {
	for _, dir := range []string{"migrations/shared", "migrations/tenant"} {
		fsys := SharedMigrationFS
		if dir == "migrations/tenant" {
			fsys = TenantMigrationFS
		}
		entries, err := fsys.ReadDir(dir)
		if err != nil {
			t.Fatalf("ReadDir(%s): %v", dir, err)
		}
		if len(entries) == 0 {
			t.Errorf("%s: no embedded migrations", dir)
		}
		for _, e := range entries {
			name := e.Name()
			if !strings.HasSuffix(name, ".up.sql") && !strings.HasSuffix(name, ".down.sql") {
				t.Errorf("%s: unexpected file %s", dir, name)
			}
		}
	}
}
