// Racer export: one genome's network plus the exact run configuration it was
// evolved under, serialized as standalone JSON. A .racer file is consumable
// by the race package with no dependency on the trainer or the population.

package training

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/baldhumanity/neat-go/neat"
	"github.com/baldhumanity/neat-go/neat/nn"

	"github.com/neatrace/neatrace/sim"
)

// RacerVersion tags the .racer file layout.
const RacerVersion = 1

// RacerFile is the on-disk .racer schema.
type RacerFile struct {
	Version       int            `json:"version"`
	Name          string         `json:"name"`
	ExportedAt    string         `json:"exported_at"`
	CarConfig     map[string]any `json:"car_config"`
	Genome        GenomeJSON     `json:"genome"`
	Generation    int            `json:"generation"`
	SpeciesCount  int            `json:"species_count"`
	TrainingTrack string         `json:"training_track"`
	FitnessSource string         `json:"fitness_source,omitempty"`
}

// GenomeJSON is the portable genome encoding inside a .racer file.
type GenomeJSON struct {
	Key         int        `json:"key"`
	Fitness     float64    `json:"fitness"`
	Nodes       []NodeJSON `json:"nodes"`
	Connections []ConnJSON `json:"connections"`
}

type NodeJSON struct {
	Key         int     `json:"key"`
	Bias        float64 `json:"bias"`
	Response    float64 `json:"response"`
	Activation  string  `json:"activation"`
	Aggregation string  `json:"aggregation"`
}

type ConnJSON struct {
	Key     [2]int  `json:"key"` // [in_node, out_node]
	Weight  float64 `json:"weight"`
	Enabled bool    `json:"enabled"`
}

// GenomeToJSON serializes a genome's nodes and connections.
func GenomeToJSON(g *neat.Genome) GenomeJSON {
	gj := GenomeJSON{Key: g.Key, Fitness: g.Fitness}
	for _, node := range g.Nodes {
		gj.Nodes = append(gj.Nodes, NodeJSON{
			Key:         node.Key,
			Bias:        node.Bias,
			Response:    node.Response,
			Activation:  node.Activation,
			Aggregation: node.Aggregation,
		})
	}
	for key, conn := range g.Connections {
		gj.Connections = append(gj.Connections, ConnJSON{
			Key:     [2]int{key.InNodeID, key.OutNodeID},
			Weight:  conn.Weight,
			Enabled: conn.Enabled,
		})
	}
	return gj
}

// GenomeFromJSON rebuilds a genome under the given config.
func GenomeFromJSON(gj GenomeJSON, gc *neat.GenomeConfig) *neat.Genome {
	g := neat.NewGenome(gj.Key, gc)
	g.Fitness = gj.Fitness
	for _, n := range gj.Nodes {
		g.Nodes[n.Key] = &neat.NodeGene{
			Key:         n.Key,
			Bias:        n.Bias,
			Response:    n.Response,
			Activation:  n.Activation,
			Aggregation: n.Aggregation,
		}
	}
	for _, c := range gj.Connections {
		key := neat.ConnectionKey{InNodeID: c.Key[0], OutNodeID: c.Key[1]}
		g.Connections[key] = &neat.ConnectionGene{
			Key:     key,
			Weight:  c.Weight,
			Enabled: c.Enabled,
		}
	}
	return g
}

// ExportRacer writes a .racer file for one genome. The genome is taken in
// its serialized form so callers can export a detached copy while the live
// population keeps evolving.
func ExportRacer(path, name string, g GenomeJSON, cfg *sim.CarConfig,
	generation, speciesCount int, trackName, fitnessSource string) error {

	rf := RacerFile{
		Version:       RacerVersion,
		Name:          name,
		ExportedAt:    time.Now().UTC().Format(time.RFC3339),
		CarConfig:     ConfigToMap(cfg),
		Genome:        g,
		Generation:    generation,
		SpeciesCount:  speciesCount,
		TrainingTrack: trackName,
		FitnessSource: fitnessSource,
	}
	data, err := json.MarshalIndent(rf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize racer: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write racer file %q: %w", path, err)
	}
	return nil
}

// Racer is an imported .racer file with its network rebuilt and ready to
// drive.
type Racer struct {
	Name       string
	Config     sim.CarConfig
	Genome     *neat.Genome
	Network    *nn.FeedForwardNetwork
	Generation int
}

// ImportRacer loads a .racer file and rebuilds an activatable network. Only
// the car config recorded at export time is needed to reconstruct the
// network's input/output keys; no evolution config file is involved.
func ImportRacer(path string) (*Racer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read racer file %q: %w", path, err)
	}
	var rf RacerFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse racer file %q: %w", path, err)
	}
	if rf.Version != RacerVersion {
		return nil, fmt.Errorf("unsupported racer version %d (want %d)", rf.Version, RacerVersion)
	}

	cfg, err := ConfigFromMap(sim.DefaultCarConfig(), rf.CarConfig)
	if err != nil {
		return nil, fmt.Errorf("racer %q has invalid car config: %w", rf.Name, err)
	}

	gc := phenotypeGenomeConfig(cfg.NumInputs(), 2)
	genome := GenomeFromJSON(rf.Genome, gc)
	network, err := nn.CreateFeedForwardNetwork(genome)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild network for racer %q: %w", rf.Name, err)
	}

	return &Racer{
		Name:       rf.Name,
		Config:     cfg,
		Genome:     genome,
		Network:    network,
		Generation: rf.Generation,
	}, nil
}

// phenotypeGenomeConfig builds the minimal genome config needed to turn a
// deserialized genome into a network: input/output keys and the feed-forward
// flag. Mutation and initialization parameters are irrelevant for playback.
func phenotypeGenomeConfig(numInputs, numOutputs int) *neat.GenomeConfig {
	gc := &neat.GenomeConfig{
		NumInputs:   numInputs,
		NumOutputs:  numOutputs,
		FeedForward: true,
	}
	gc.InputKeys = make([]int, numInputs)
	for i := range gc.InputKeys {
		gc.InputKeys[i] = -(i + 1)
	}
	gc.OutputKeys = make([]int, numOutputs)
	for i := range gc.OutputKeys {
		gc.OutputKeys[i] = i
	}
	gc.NodeKeyIndex = numOutputs
	return gc
}
