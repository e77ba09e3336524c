package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/samcharles93/speculate/internal/version"
)

func TestPrintVersion(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	info := version.Info{Version: "1.2.0", Commit: "abc123", GoVersion: "go1.26", Modified: true}
	printVersion(&buf, info, []string{"hash", "linear"})
	out := buf.String()
	for _, want := range []string{"speculate 1.2.0", "abc123 (modified)", "go1.26", "hash, linear"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "built") {
		t.Fatalf("empty build time printed:\n%s", out)
	}
}
