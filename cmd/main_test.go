package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestToolsCommandPrintsManifestTools(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "tools.yaml")
	if err := os.WriteFile(manifest, []byte("tools:\n  - name: echo\n    description: Say it back.\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"tools", "--manifest", manifest})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	var descs []map[string]any
	if err := json.Unmarshal(out.Bytes(), &descs); err != nil {
		t.Fatalf("output %q is not JSON: %v", out.String(), err)
	}
	if len(descs) != 1 || descs[0]["name"] != "echo" || descs[0]["description"] != "Say it back." {
		t.Fatalf("descriptors=%v, want echo override", descs)
	}
}

func TestToolsCommandRequiresBackendWithoutManifest(t *testing.T) {
	t.Setenv("ASSISTANT_BACKEND_URL", "")
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"tools"})
	if err := root.Execute(); err == nil {
		t.Fatal("Execute err=nil, want config validation error")
	}
}
