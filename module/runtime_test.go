package module

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadResolvesRegisteredEntry(t *testing.T) {
	RegisterEntry("kalshi-entry-test", HandlerTable{
		"ingest": {"poll": func(ctx *JobContext, data []byte) (*HandlerResult, error) { return nil, nil }},
	})

	manifests := []Manifest{
		{Name: "kalshi", Runtime: &RuntimeConfig{Entry: "kalshi-entry-test"}},
	}
	runtimes, failed := Load(manifests, nil)
	assert.Empty(t, failed)
	require.Contains(t, runtimes, "kalshi")

	_, ok := runtimes["kalshi"].HandlerFor("ingest", "poll")
	assert.True(t, ok)
}

func TestLoadRecordsFailureForUnregisteredEntry(t *testing.T) {
	manifests := []Manifest{
		{Name: "kalshi", Runtime: &RuntimeConfig{Entry: "does-not-exist"}},
	}
	runtimes, failed := Load(manifests, nil)
	require.Contains(t, failed, "kalshi")
	require.Contains(t, runtimes, "kalshi")
	_, ok := runtimes["kalshi"].HandlerFor("ingest", "poll")
	assert.False(t, ok)
}

func TestLoadKeepsManifestWithNoRuntimeEntry(t *testing.T) {
	manifests := []Manifest{{Name: "kalshi"}}
	runtimes, failed := Load(manifests, nil)
	assert.Empty(t, failed)
	require.Contains(t, runtimes, "kalshi")
	_, ok := runtimes["kalshi"].HandlerFor("ingest", "poll")
	assert.False(t, ok)
}

func TestRegisterAndLookupEntry(t *testing.T) {
	table := HandlerTable{"ingest": {"poll": func(ctx *JobContext, data []byte) (*HandlerResult, error) { return nil, nil }}}
	RegisterEntry("lookup-test-entry", table)

	got, ok := LookupEntry("lookup-test-entry")
	require.True(t, ok)
	_, ok = got["ingest"]["poll"]
	assert.True(t, ok)

	_, ok = LookupEntry("never-registered")
	assert.False(t, ok)
}
