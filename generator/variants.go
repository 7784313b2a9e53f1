package generator

import (
	"fmt"
	"time"
)

// Model selects the generator variant. Variants differ in accuracy and
// latency; the human-review variant produces no automated outcome and routes
// the dispute to an expert instead.
type Model string

const (
	ModelBasic       Model = "basic"
	ModelAdvanced    Model = "advanced"
	ModelLegal       Model = "legal"
	ModelHumanReview Model = "human_review"
)

// Spec carries the per-variant characteristics used by the orchestrator and
// the heuristic implementation.
type Spec struct {
	Model    Model
	Accuracy float64
	Latency  time.Duration
	Human    bool
}

var specs = map[Model]Spec{
	ModelBasic:       {Model: ModelBasic, Accuracy: 0.72, Latency: 2 * time.Second},
	ModelAdvanced:    {Model: ModelAdvanced, Accuracy: 0.87, Latency: 8 * time.Second},
	ModelLegal:       {Model: ModelLegal, Accuracy: 0.93, Latency: 15 * time.Second},
	ModelHumanReview: {Model: ModelHumanReview, Accuracy: 0.99, Human: true},
}

// SpecFor returns the characteristics of a model variant.
func SpecFor(m Model) (Spec, bool) {
	s, ok := specs[m]
	return s, ok
}

// ParseModel validates a configured model name.
func ParseModel(name string) (Model, error) {
	m := Model(name)
	if _, ok := specs[m]; !ok {
		return "", fmt.Errorf("generator: unknown model %q", name)
	}
	return m, nil
}
