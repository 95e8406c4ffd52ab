package training

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neatrace/neatrace/sim"
)

func TestGenomeJSON_RoundTrip(t *testing.T) {
	g := testGenome(7, 8, 0.5)

	gj := GenomeToJSON(g)
	got := GenomeFromJSON(gj, phenotypeGenomeConfig(8, 2))

	assert.Equal(t, g.Key, got.Key)
	require.Len(t, got.Nodes, len(g.Nodes))
	require.Len(t, got.Connections, len(g.Connections))
	for key, n := range g.Nodes {
		assert.Equal(t, n.Activation, got.Nodes[key].Activation)
		assert.Equal(t, n.Bias, got.Nodes[key].Bias)
	}
	for key, c := range g.Connections {
		assert.Equal(t, c.Weight, got.Connections[key].Weight)
		assert.Equal(t, c.Enabled, got.Connections[key].Enabled)
	}
}

func TestExportImportRacer_RoundTrip_NetworkActivates(t *testing.T) {
	cfg := sim.DefaultCarConfig()
	g := testGenome(3, cfg.NumInputs(), 0.75)
	path := filepath.Join(t.TempDir(), "best.racer")

	err := ExportRacer(path, "champ", GenomeToJSON(g), &cfg, 42, 3, "oval.track", DefaultFitnessSource)
	require.NoError(t, err)

	racer, err := ImportRacer(path)
	require.NoError(t, err)

	assert.Equal(t, "champ", racer.Name)
	assert.Equal(t, 42, racer.Generation)
	assert.Equal(t, cfg.NumInputs(), racer.Config.NumInputs())
	assert.Equal(t, cfg.MaxSpeed, racer.Config.MaxSpeed)

	// The rebuilt network must accept the config's input arity and produce
	// two outputs, with no evolution config file involved
	inputs := make([]float64, racer.Config.NumInputs())
	for i := range inputs {
		inputs[i] = 0.5
	}
	out, err := racer.Network.Activate(inputs)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.NotEqual(t, 0.0, out[0])
}

func TestExportRacer_FileSchema(t *testing.T) {
	cfg := sim.DefaultCarConfig()
	g := testGenome(1, cfg.NumInputs(), 0.3)
	path := filepath.Join(t.TempDir(), "schema.racer")

	require.NoError(t, ExportRacer(path, "schema", GenomeToJSON(g), &cfg, 7, 2, "loop.track", "car.laps"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.EqualValues(t, RacerVersion, raw["version"])
	assert.Equal(t, "schema", raw["name"])
	assert.Equal(t, "loop.track", raw["training_track"])
	assert.Equal(t, "car.laps", raw["fitness_source"])
	assert.NotEmpty(t, raw["exported_at"])
	assert.Contains(t, raw, "car_config")
	assert.Contains(t, raw, "genome")
}

func TestImportRacer_VersionMismatch_Error(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.racer")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99}`), 0o644))

	_, err := ImportRacer(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestImportRacer_MissingFile_Error(t *testing.T) {
	_, err := ImportRacer(filepath.Join(t.TempDir(), "nope.racer"))
	assert.Error(t, err)
}

func TestImportRacer_DriftConfig_ExtraInput(t *testing.T) {
	cfg := sim.DefaultCarConfig()
	cfg.DriftEnabled = true
	g := testGenome(5, cfg.NumInputs(), 0.2)
	path := filepath.Join(t.TempDir(), "drift.racer")

	require.NoError(t, ExportRacer(path, "drifter", GenomeToJSON(g), &cfg, 1, 1, "", ""))

	racer, err := ImportRacer(path)
	require.NoError(t, err)
	assert.True(t, racer.Config.DriftEnabled)
	assert.Equal(t, cfg.NumInputs(), racer.Config.NumInputs())

	out, err := racer.Network.Activate(make([]float64, racer.Config.NumInputs()))
	require.NoError(t, err)
	assert.Len(t, out, 2)
}
