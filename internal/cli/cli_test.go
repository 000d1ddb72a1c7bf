package cli

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"cookbook/internal/cookbook"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := NewRootCmd()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRootRunsTutorialOnMock(t *testing.T) {
	out, errOut, err := execute(t, "--mock")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, want := range []string{"Add Porridge for breakfast", "Porridge was 4 stars", "Porridge removed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q, got: %s", want, out)
		}
	}
	if errOut != "" {
		t.Errorf("unexpected stderr: %s", errOut)
	}
}

func TestRootRejectsMissingConnection(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "")

	_, _, err := execute(t, "--config", filepath.Join("testdata", "empty.json"))
	if !errors.Is(err, cookbook.ErrConfiguration) {
		t.Fatalf("execute error = %v, want ErrConfiguration", err)
	}
}

func TestRootMigratesAndRunsAgainstSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookbook.db")

	out, _, err := execute(t, "--connection", path, "--migrate")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "Porridge removed") {
		t.Fatalf("tutorial did not finish: %s", out)
	}
}

func TestListRendersTable(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantOut []string
	}{
		{
			name:    "all dishes",
			args:    []string{"list", "--mock"},
			wantOut: []string{"Buttermilk Pancakes", "Tomato Soup", "Green Salad", "(3 rows)"},
		},
		{
			name:    "title filter",
			args:    []string{"list", "--mock", "--title", "Soup"},
			wantOut: []string{"Tomato Soup", "(1 rows)"},
		},
		{
			name:    "no match",
			args:    []string{"list", "--mock", "--title", "Porridge"},
			wantOut: []string{"(0 rows)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, tt.args...)
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			for _, want := range tt.wantOut {
				if !strings.Contains(out, want) {
					t.Errorf("output should contain %q, got: %s", want, out)
				}
			}
		})
	}
}

func TestMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookbook.db")

	steps := []struct {
		args []string
		want string
	}{
		{[]string{"migrate", "status", "--connection", path}, "schema version 0"},
		{[]string{"migrate", "--connection", path}, "schema version 1"},
		{[]string{"migrate", "up", "--connection", path}, "schema version 1"},
		{[]string{"migrate", "down", "--connection", path}, "schema version 0"},
	}
	for _, step := range steps {
		out, _, err := execute(t, step.args...)
		if err != nil {
			t.Fatalf("%v: %v", step.args, err)
		}
		if !strings.Contains(out, step.want) {
			t.Fatalf("%v: output %q, want %q", step.args, out, step.want)
		}
	}
}

func TestMigrateRejectsMockAndUnknownAction(t *testing.T) {
	if _, _, err := execute(t, "migrate", "--mock"); !errors.Is(err, errMockMigrate) {
		t.Fatalf("execute error = %v, want errMockMigrate", err)
	}
	if _, _, err := execute(t, "migrate", "sideways", "--mock"); err == nil {
		t.Fatal("expected error for unknown migrate action")
	}
}
