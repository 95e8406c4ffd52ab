// Training checkpoints: a version-tagged gob+gzip payload bundling the
// population, the evolution-internal state (species, reproduction counters),
// the generation index, the run configuration it was evolved under, and the
// fitness history. Everything needed for an exact resume.

package training

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/baldhumanity/neat-go/neat"

	"github.com/neatrace/neatrace/sim"
)

// CheckpointVersion tags the checkpoint payload layout.
const CheckpointVersion = 1

// Checkpoint is the persisted training state.
type Checkpoint struct {
	Version     int
	Generation  int
	CarConfig   sim.CarConfig
	History     []GenerationRecord
	BestFitness float64

	// Evolution-internal state, in the algorithm's own exported types.
	Population   map[int]*neat.Genome
	SpeciesSet   *neat.SpeciesSet
	Reproduction *neat.Reproduction
	BestGenome   *neat.Genome
}

func registerCheckpointTypes() {
	gob.Register(map[int]*neat.Genome{})
	gob.Register(map[neat.ConnectionKey]*neat.ConnectionGene{})
	gob.Register(map[int]*neat.NodeGene{})
	gob.Register(map[int]*neat.Species{})
	gob.Register(map[int]int{})
	gob.Register([]int{})
}

// SaveCheckpoint writes the checkpoint to path, gzip-compressed.
func SaveCheckpoint(path string, cp *Checkpoint) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file %q: %w", path, err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	registerCheckpointTypes()
	if err := gob.NewEncoder(gz).Encode(cp); err != nil {
		gz.Close()
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finish checkpoint file %q: %w", path, err)
	}
	return nil
}

// LoadCheckpoint reads and validates a checkpoint payload. Genome config
// references are not restored by gob; the caller re-links them against a
// freshly loaded evolution config before building networks.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file %q: %w", path, err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file %q: %w", path, err)
	}
	defer gz.Close()

	registerCheckpointTypes()
	cp := &Checkpoint{}
	if err := gob.NewDecoder(gz).Decode(cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if cp.Version != CheckpointVersion {
		return nil, fmt.Errorf("unsupported checkpoint version %d (want %d)", cp.Version, CheckpointVersion)
	}
	if len(cp.Population) == 0 {
		return nil, fmt.Errorf("checkpoint contains no population")
	}
	return cp, nil
}

// relinkGenomes re-attaches the genome config pointer gob cannot persist.
func relinkGenomes(cp *Checkpoint, gc *neat.GenomeConfig) {
	for _, g := range cp.Population {
		g.Config = gc
	}
	if cp.BestGenome != nil {
		cp.BestGenome.Config = gc
	}
}
