package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/rosterimport/internal/core"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return out.String(), err
}

func useMemoryStore(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir()) // keep a developer's .env out of the test
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("EFFECT_BATCH_DELAY", "0s")
	t.Setenv("ACCOUNT_BCRYPT_COST", "4")
	t.Setenv("LOG_LEVEL", "error")
}

func TestKindsCmd(t *testing.T) {
	out, err := run(t, "", "kinds")
	if err != nil {
		t.Fatalf("kinds: %v", err)
	}
	for _, plural := range []string{"students", "teachers", "classes", "subjects", "parents"} {
		if !strings.Contains(out, plural) {
			t.Errorf("output missing %s:\n%s", plural, out)
		}
	}
}

func TestTemplateCmd(t *testing.T) {
	out, err := run(t, "", "template", "parents")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	if !strings.HasPrefix(out, "firstName,lastName,phone") {
		t.Errorf("template = %q", out)
	}

	path := filepath.Join(t.TempDir(), "students.csv")
	if _, err := run(t, "", "template", "students", "-o", path); err != nil {
		t.Fatalf("template -o: %v", err)
	}
	if data, err := os.ReadFile(path); err != nil || len(data) == 0 {
		t.Errorf("template file not written: %v", err)
	}

	if _, err := run(t, "", "template", "bursars"); err == nil {
		t.Error("unknown kind accepted")
	}
}

func TestImportCmd(t *testing.T) {
	useMemoryStore(t)

	csv := "firstName,lastName,phone\nAda,Obi,08011112222\nBen,Eze,bad\n"
	out, err := run(t, csv, "import", "parents", "-", "--json")
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	var result core.ImportResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if result.Succeeded != 1 || result.Total != 2 || len(result.Errors) != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestImportCmd_Text(t *testing.T) {
	useMemoryStore(t)

	out, err := run(t, "firstName,lastName,phone\nAda,Obi,08011112222\n", "import", "parents", "-", "--dry-run")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.HasPrefix(out, "Validated 1 of 1 parents") {
		t.Errorf("output = %q", out)
	}
}

func TestMigrateCmd(t *testing.T) {
	useMemoryStore(t)
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "roster.db"))

	out, err := run(t, "", "migrate")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if strings.TrimSpace(out) != "ok" {
		t.Errorf("output = %q", out)
	}
}

func TestResetCmd_RequiresConfirmation(t *testing.T) {
	useMemoryStore(t)

	if _, err := run(t, "", "reset"); err == nil {
		t.Fatal("reset ran without --yes")
	}
	out, err := run(t, "", "reset", "--yes")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !strings.Contains(out, "students") {
		t.Errorf("output = %q", out)
	}
}
