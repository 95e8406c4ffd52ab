// Bridges evolved NEAT genomes to the sim.Controller contract.

package training

import (
	"fmt"
	"math"
	"sort"

	"github.com/baldhumanity/neat-go/neat"
	"github.com/baldhumanity/neat-go/neat/nn"

	"github.com/neatrace/neatrace/sim"
)

// NetworkController drives one car with one genome's feed-forward network.
// Raw network outputs are squashed through tanh into [-1, 1].
type NetworkController struct {
	net *nn.FeedForwardNetwork
}

// NewNetworkController builds the phenotype network for a genome.
func NewNetworkController(g *neat.Genome) (*NetworkController, error) {
	net, err := nn.CreateFeedForwardNetwork(g)
	if err != nil {
		return nil, fmt.Errorf("failed to build network for genome %d: %w", g.Key, err)
	}
	return &NetworkController{net: net}, nil
}

// Drive maps the input vector to (steering, throttle).
func (c *NetworkController) Drive(inputs []float64) (float64, float64, error) {
	out, err := c.net.Activate(inputs)
	if err != nil {
		return 0, 0, err
	}
	if len(out) < 2 {
		return 0, 0, fmt.Errorf("network produced %d outputs, want 2", len(out))
	}
	return math.Tanh(out[0]), math.Tanh(out[1]), nil
}

// sortedGenomeKeys returns the population's genome keys in ascending order.
// The arena index of every car, controller, and fitness value within a
// generation follows this order.
func sortedGenomeKeys(genomes map[int]*neat.Genome) []int {
	keys := make([]int, 0, len(genomes))
	for k := range genomes {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// buildControllers creates one controller per genome, in sorted key order.
func buildControllers(genomes map[int]*neat.Genome, keys []int) ([]sim.Controller, error) {
	controllers := make([]sim.Controller, len(keys))
	for i, k := range keys {
		c, err := NewNetworkController(genomes[k])
		if err != nil {
			return nil, err
		}
		controllers[i] = c
	}
	return controllers, nil
}
