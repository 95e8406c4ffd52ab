package training

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/baldhumanity/neat-go/neat"

	"github.com/neatrace/neatrace/sim"
)

// testGenome hand-builds a minimal fully connected genome: every input wired
// straight to both outputs with a fixed weight.
func testGenome(key, numInputs int, weight float64) *neat.Genome {
	gc := phenotypeGenomeConfig(numInputs, 2)
	g := neat.NewGenome(key, gc)
	for _, out := range gc.OutputKeys {
		g.Nodes[out] = &neat.NodeGene{
			Key:         out,
			Bias:        0,
			Response:    1,
			Activation:  "tanh",
			Aggregation: "sum",
		}
	}
	for _, in := range gc.InputKeys {
		for _, out := range gc.OutputKeys {
			ck := neat.ConnectionKey{InNodeID: in, OutNodeID: out}
			g.Connections[ck] = &neat.ConnectionGene{Key: ck, Weight: weight, Enabled: true}
		}
	}
	return g
}

// testTrack is an all-road strip with two gates, wide enough not to crash a
// gently weaving network within a short generation.
func testTrack() *sim.Track {
	t := sim.NewTrack(400, 200)
	for y := 0; y < 200; y++ {
		for x := 0; x < 400; x++ {
			t.SetRoad(x, y)
		}
	}
	t.StartX = 50
	t.StartY = 100
	t.StartAngle = 0
	t.Gates = []sim.Gate{
		{X1: 100, Y1: 0, X2: 100, Y2: 200},
		{X1: 200, Y1: 0, X2: 200, Y2: 200},
	}
	return t
}

// testCarConfig keeps generations short so trainer tests finish quickly.
func testCarConfig() sim.CarConfig {
	cfg := sim.DefaultCarConfig()
	cfg.MaxTicks = 120
	cfg.StallTimeout = 120
	return cfg
}

// writeTestEvolutionConfig writes a small-population evolution config and
// returns its path.
func writeTestEvolutionConfig(t *testing.T) string {
	t.Helper()
	content := `[NEAT]
pop_size               = 12
fitness_criterion      = max
fitness_threshold      = 1e12
reset_on_extinction    = true
no_fitness_termination = true

[DefaultGenome]
num_inputs  = 8
num_outputs = 2
num_hidden  = 0
feed_forward = true
compatibility_disjoint_coefficient = 1.0
compatibility_weight_coefficient   = 0.5
conn_add_prob    = 0.2
conn_delete_prob = 0.1
node_add_prob    = 0.1
node_delete_prob = 0.05
single_structural_mutation = false
structural_mutation_surer  = default
initial_connection         = full_direct
bias_init_mean    = 0.0
bias_init_stdev   = 1.0
bias_init_type    = gaussian
bias_replace_rate = 0.1
bias_mutate_rate  = 0.7
bias_mutate_power = 0.5
bias_max_value    = 30.0
bias_min_value    = -30.0
response_init_mean    = 1.0
response_init_stdev   = 0.0
response_init_type    = gaussian
response_replace_rate = 0.0
response_mutate_rate  = 0.0
response_mutate_power = 0.0
response_max_value    = 30.0
response_min_value    = -30.0
activation_default     = tanh
activation_options     = tanh
activation_mutate_rate = 0.0
aggregation_default     = sum
aggregation_options     = sum
aggregation_mutate_rate = 0.0
weight_init_mean    = 0.0
weight_init_stdev   = 1.0
weight_init_type    = gaussian
weight_replace_rate = 0.1
weight_mutate_rate  = 0.8
weight_mutate_power = 0.5
weight_max_value    = 30.0
weight_min_value    = -30.0
enabled_default           = True
enabled_mutate_rate       = 0.01
enabled_rate_to_true_add  = 0.0
enabled_rate_to_false_add = 0.0

[DefaultReproduction]
elitism            = 2
survival_threshold = 0.2
min_species_size   = 2

[DefaultSpeciesSet]
compatibility_threshold = 3.0

[DefaultStagnation]
species_fitness_func = max
max_stagnation       = 20
species_elitism      = 2
`
	path := filepath.Join(t.TempDir(), "neat.ini")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write evolution config: %v", err)
	}
	return path
}
