package builder

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/qobs-build/mgen/internal/builder/gen"
	"github.com/qobs-build/mgen/internal/msg"
	"github.com/stretchr/testify/require"
)

// writeTree creates files (path relative to root -> content) under root
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// captureMessages redirects msg output into a buffer for the duration of the test
func captureMessages(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := msg.SetOutput(&buf)
	t.Cleanup(func() { msg.SetOutput(prev) })
	return &buf
}

// ruleByName fails the test if name is not present exactly once
func ruleByName(t *testing.T, rules []gen.Rule, name string) gen.Rule {
	t.Helper()
	var found []gen.Rule
	for _, r := range rules {
		if r.Name == name {
			found = append(found, r)
		}
	}
	require.Len(t, found, 1, "rule %s", name)
	return found[0]
}

func in(root string, elem ...string) string {
	return filepath.Join(append([]string{root}, elem...)...)
}
