// Package classifier routes documents between the two extraction paths.
//
// A pre-trained gradient-boosted decision-tree ensemble scores each document
// with an OCR probability in [0,1] from structural features (never from the
// extracted text). The Router thresholds that probability into a Route.
//
// The model artifact is a JSON file produced by the training pipeline:
//
//	{
//	  "num_features": 7,
//	  "bias": 0.0,
//	  "trees": [
//	    {"nodes": [
//	      {"feature": 0, "threshold": 10, "left": 1, "right": 2},
//	      {"leaf": true, "value": -0.53},
//	      {"leaf": true, "value": 0.71}
//	    ]}
//	  ]
//	}
//
// Scoring is deterministic: identical bytes and identical artifact always
// produce the identical probability, regardless of processing order or
// concurrency. A loaded Model is read-only and safe to share by reference.
package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Node is one decision or leaf in a tree. Decision nodes send a sample left
// when features[Feature] < Threshold, right otherwise.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Leaf      bool    `json:"leaf"`
	Value     float64 `json:"value"`
}

// Tree is a single regression tree; Nodes[0] is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Model is the loaded ensemble. Bias is added to the summed leaf values
// before the sigmoid.
type Model struct {
	NumFeatures int     `json:"num_features"`
	Bias        float64 `json:"bias"`
	Trees       []Tree  `json:"trees"`
}

// LoadModel reads and validates a model artifact. Artifacts declaring a
// feature layout other than the one Features produces are rejected here,
// so Score never sees a vector narrower than the trees expect.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return &m, nil
}

func (m *Model) validate() error {
	// The artifact must be trained on the exact feature layout Features
	// produces; Score indexes the vector by the artifact's node features.
	if m.NumFeatures != FeatureCount {
		return fmt.Errorf("num_features = %d, want %d", m.NumFeatures, FeatureCount)
	}
	for ti, tr := range m.Trees {
		if len(tr.Nodes) == 0 {
			return fmt.Errorf("tree %d has no nodes", ti)
		}
		for ni, n := range tr.Nodes {
			if n.Leaf {
				continue
			}
			if n.Feature < 0 || n.Feature >= m.NumFeatures {
				return fmt.Errorf("tree %d node %d: feature %d out of range", ti, ni, n.Feature)
			}
			if n.Left < 0 || n.Left >= len(tr.Nodes) || n.Right < 0 || n.Right >= len(tr.Nodes) {
				return fmt.Errorf("tree %d node %d: child index out of range", ti, ni)
			}
		}
	}
	return nil
}

// Score returns the OCR probability for a feature vector.
func (m *Model) Score(features []float64) float64 {
	margin := m.Bias
	for i := range m.Trees {
		margin += m.Trees[i].eval(features)
	}
	return sigmoid(margin)
}

func (t *Tree) eval(features []float64) float64 {
	i := 0
	// Trees are validated at load time; depth is bounded by the node count.
	for steps := 0; steps <= len(t.Nodes); steps++ {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if features[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return 0
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
