package module

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, root, dir, content string) {
	t.Helper()
	modDir := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(modDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modDir, manifestFileName), []byte(content), 0o644))
}

func TestDiscoverSkipsDirsWithoutManifest(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "no-manifest"), 0o755))
	writeManifest(t, root, "kalshi", `{"name":"kalshi","jobs":[{"queue":"ingest","name":"poll","schedule":"*/5 * * * *"}]}`)

	manifests, failed, err := Discover(root)
	require.NoError(t, err)
	assert.Empty(t, failed)
	require.Len(t, manifests, 1)
	assert.Equal(t, "kalshi", manifests[0].Name)
}

func TestDiscoverRecordsMalformedManifestWithoutAborting(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "broken", `not json`)
	writeManifest(t, root, "kalshi", `{"name":"kalshi","jobs":[]}`)

	manifests, failed, err := Discover(root)
	require.NoError(t, err)
	require.Contains(t, failed, "broken")
	require.Len(t, manifests, 1)
	assert.Equal(t, "kalshi", manifests[0].Name)
}

func TestDiscoverDefaultsNameToDirWhenManifestOmitsIt(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "kalshi", `{"jobs":[]}`)

	manifests, _, err := Discover(root)
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	assert.Equal(t, "kalshi", manifests[0].Name)
}

func writeYAMLManifest(t *testing.T, root, dir, content string) {
	t.Helper()
	modDir := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(modDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modDir, manifestFileNameYAML), []byte(content), 0o644))
}

func TestDiscoverAcceptsYAMLManifest(t *testing.T) {
	root := t.TempDir()
	writeYAMLManifest(t, root, "kalshi", "name: kalshi\njobs:\n  - queue: ingest\n    name: poll\n    schedule: \"*/5 * * * *\"\n")

	manifests, failed, err := Discover(root)
	require.NoError(t, err)
	assert.Empty(t, failed)
	require.Len(t, manifests, 1)
	assert.Equal(t, "kalshi", manifests[0].Name)
	require.Len(t, manifests[0].Jobs, 1)
	assert.Equal(t, "poll", manifests[0].Jobs[0].Name)
}

func TestDiscoverPrefersJSONOverYAMLWhenBothPresent(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "kalshi", `{"name":"kalshi-json","jobs":[]}`)
	writeYAMLManifest(t, root, "kalshi", "name: kalshi-yaml\njobs: []\n")

	manifests, _, err := Discover(root)
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	assert.Equal(t, "kalshi-json", manifests[0].Name)
}
