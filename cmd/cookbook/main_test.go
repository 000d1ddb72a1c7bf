package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestRunRunsTutorialOnMock(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"--mock"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr: %s)", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Porridge removed") {
		t.Fatalf("unexpected output: %s", stdout.String())
	}
}

func TestRunReturnsErrorCodeOnFailure(t *testing.T) {
	original := newRootCmd
	t.Cleanup(func() { newRootCmd = original })

	newRootCmd = func() *cobra.Command {
		return &cobra.Command{
			Use:           "cookbook",
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(*cobra.Command, []string) error {
				return errors.New("store unreachable")
			},
		}
	}

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), nil, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "store unreachable") {
		t.Fatalf("stderr should carry the error, got: %s", stderr.String())
	}
}
