package modelstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldforge/extract-cli/internal/tagger"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testModel(weight float64) *tagger.Model {
	return &tagger.Model{
		Version: 1,
		Tags:    []string{"O", "B-total", "I-total"},
		Weights: map[string]map[string]float64{"w=total:": {"B-total": weight}},
		Trained: 12,
		Epochs:  12,
	}
}

func TestRegistry_ActiveWithoutModel(t *testing.T) {
	r := New(t.TempDir())

	_, err := r.Active("tpl-1")
	assert.True(t, eris.Is(err, ErrNoModel))

	_, err = r.ActiveVersion("tpl-1")
	assert.True(t, eris.Is(err, ErrNoModel))
}

func TestRegistry_SaveThenActivate(t *testing.T) {
	r := New(t.TempDir())

	v1, err := r.Save("tpl-1", testModel(0.5))
	require.NoError(t, err)
	assert.Equal(t, 1, v1)

	// Saved but not yet activated.
	_, err = r.Active("tpl-1")
	assert.True(t, eris.Is(err, ErrNoModel))

	require.NoError(t, r.Activate("tpl-1", v1))

	entry, err := r.Active("tpl-1")
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Version)
	assert.InDelta(t, 0.5, entry.Model.Weights["w=total:"]["B-total"], 0.0001)
}

func TestRegistry_VersionsMonotonic(t *testing.T) {
	r := New(t.TempDir())

	v1, err := r.Save("tpl-1", testModel(0.1))
	require.NoError(t, err)
	v2, err := r.Save("tpl-1", testModel(0.2))
	require.NoError(t, err)
	assert.Equal(t, v1+1, v2)

	require.NoError(t, r.Activate("tpl-1", v2))
	version, err := r.ActiveVersion("tpl-1")
	require.NoError(t, err)
	assert.Equal(t, v2, version)
}

func TestRegistry_ActivationSwapsForNewReaders(t *testing.T) {
	r := New(t.TempDir())

	v1, err := r.Save("tpl-1", testModel(0.1))
	require.NoError(t, err)
	require.NoError(t, r.Activate("tpl-1", v1))

	before, err := r.Active("tpl-1")
	require.NoError(t, err)

	v2, err := r.Save("tpl-1", testModel(0.9))
	require.NoError(t, err)
	require.NoError(t, r.Activate("tpl-1", v2))

	after, err := r.Active("tpl-1")
	require.NoError(t, err)
	assert.Equal(t, v2, after.Version)

	// The snapshot held from before activation is unchanged.
	assert.Equal(t, v1, before.Version)
	assert.InDelta(t, 0.1, before.Model.Weights["w=total:"]["B-total"], 0.0001)
}

func TestRegistry_RefusesEmptyModel(t *testing.T) {
	r := New(t.TempDir())

	_, err := r.Save("tpl-1", &tagger.Model{})
	assert.Error(t, err)
}

func TestRegistry_CorruptArtifact(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)

	v1, err := r.Save("tpl-1", testModel(0.5))
	require.NoError(t, err)
	require.NoError(t, r.Activate("tpl-1", v1))

	// Corrupt the artifact on disk and force a reload through a fresh
	// registry (the old one serves its cache).
	path := filepath.Join(dir, "tpl-1", "v1.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	fresh := New(dir)
	_, err = fresh.Active("tpl-1")
	assert.True(t, eris.Is(err, ErrCorrupt))
}

func TestRegistry_CorruptPointer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tpl-1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tpl-1", "active"), []byte("garbage"), 0o644))

	r := New(dir)
	_, err := r.Active("tpl-1")
	assert.True(t, eris.Is(err, ErrCorrupt))
}

func TestRegistry_ActivateMissingVersion(t *testing.T) {
	r := New(t.TempDir())
	assert.Error(t, r.Activate("tpl-1", 7))
}
