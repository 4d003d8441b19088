// Package partition implements the pure, synchronous classification
// that assigns a PartitionPath to a cluster from one representative
// neuron and a context object, per spec §4.1. It has no side effects
// and touches no files.
package partition

import (
	"strings"
	"time"

	"neuronstore/pkg/common"
)

// Context carries the signals the partitioner needs that are not part
// of a persisted NeuronSnapshot — learning rate and fatigue are computed
// by the external neural runtime (out of this engine's scope, per
// spec §1) and passed in by the caller alongside the current time.
type Context struct {
	Now          time.Time
	LearningRate float64
	Fatigue      float64
}

// classifier keyword vocabularies — disjoint, declaration order is the
// tie-break order for equal scores.
var functionalVocab = []struct {
	name     string
	keywords []string
}{
	{common.FunctionalSensory, []string{"sensory", "vision", "visual", "audio", "auditory", "touch", "tactile", "smell", "olfactory", "taste", "perception"}},
	{common.FunctionalMotor, []string{"motor", "movement", "muscle", "action", "locomotion", "reflex", "coordination"}},
	{common.FunctionalMemory, []string{"memory", "recall", "storage", "encoding", "retention", "consolidation"}},
	{common.FunctionalAssociation, []string{"association", "link", "relation", "pattern", "inference", "reasoning"}},
}

// Classify computes the PartitionPath for a cluster from its
// representative neuron and the supplied context. An empty
// representative neuron (no id, concept tag, concepts or connections,
// as an empty cluster produces) yields the sentinel path.
func Classify(representative common.NeuronSnapshot, ctx Context) common.PartitionPath {
	if isEmpty(representative) {
		return common.SentinelPartition()
	}
	return common.PartitionPath{
		Functional: classifyFunctional(representative),
		Plasticity: classifyPlasticity(representative, ctx),
		Topology:   classifyTopology(representative),
		Temporal:   classifyTemporal(representative, ctx),
	}
}

func isEmpty(n common.NeuronSnapshot) bool {
	return n.ID == "" &&
		len(n.InputWeights) == 0 &&
		len(n.OutputConnections) == 0 &&
		len(n.AssociatedConcepts) == 0 &&
		n.ConceptTag == ""
}

func classifyFunctional(n common.NeuronSnapshot) string {
	pool := make([]string, 0, len(n.AssociatedConcepts)+1)
	pool = append(pool, n.AssociatedConcepts...)
	if n.ConceptTag != "" {
		pool = append(pool, n.ConceptTag)
	}
	joined := strings.ToLower(strings.Join(pool, " "))

	bestScore := 0
	bestName := common.FunctionalGeneral
	for _, v := range functionalVocab {
		score := 0
		for _, kw := range v.keywords {
			score += strings.Count(joined, kw)
		}
		if score > bestScore {
			bestScore = score
			bestName = v.name
		}
	}
	return bestName
}

// adaptationLevel is the mean of three normalized signals, per spec §4.1:
// activation saturation, input-weight saturation, and importance.
func adaptationLevel(n common.NeuronSnapshot) float64 {
	activation := clamp01(float64(n.ActivationCount) / 100.0)
	inputs := clamp01(float64(len(n.InputWeights)) / 50.0)
	importance := clamp01(n.Importance)
	return (activation + inputs + importance) / 3.0
}

func classifyPlasticity(n common.NeuronSnapshot, ctx Context) string {
	adapt := adaptationLevel(n)
	switch {
	case ctx.LearningRate > 0.7 && ctx.Fatigue < 0.3:
		return common.PlasticityHighAdaptive
	case ctx.Fatigue >= 0.6:
		return common.PlasticityLowFatigued
	case adapt > 0.8:
		return common.PlasticityStableMature
	case adapt > 0.5:
		return common.PlasticityModeratePlastic
	default:
		return common.PlasticityBaseline
	}
}

func classifyTopology(n common.NeuronSnapshot) string {
	connectionCount := len(n.InputWeights) + len(n.OutputConnections)
	variance := weightVariance(n.InputWeights)

	switch {
	case connectionCount > 50:
		return common.TopologyHub
	case connectionCount > 20 && variance > 0.1:
		return common.TopologyBridge
	case n.Importance > 0.8 && connectionCount <= 20:
		return common.TopologySpecialized
	case connectionCount >= 5:
		return common.TopologyModular
	default:
		return common.TopologyPeripheral
	}
}

func weightVariance(weights map[string]float64) float64 {
	if len(weights) == 0 {
		return 0
	}
	var sum float64
	for _, w := range weights {
		sum += w
	}
	mean := sum / float64(len(weights))

	var sqDiff float64
	for _, w := range weights {
		d := w - mean
		sqDiff += d * d
	}
	return sqDiff / float64(len(weights))
}

func classifyTemporal(n common.NeuronSnapshot, ctx Context) string {
	now := ctx.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	daysSinceCreated := daysBetween(n.CreatedAt, now)
	daysSinceLastUsed := daysBetween(n.LastUsedAt, now)
	activationRate := float64(n.ActivationCount) / float64(maxInt(1, daysSinceCreated))

	switch {
	case daysSinceLastUsed <= 1 && activationRate > 5:
		return common.TemporalActiveFrequent
	case daysSinceLastUsed <= 7:
		return common.TemporalRecentModerate
	case daysSinceCreated > 30 && n.Importance > 0.7:
		return common.TemporalConsolidatedImportant
	case daysSinceLastUsed <= 30:
		return common.TemporalArchivedRecent
	default:
		return common.TemporalDormant
	}
}

func daysBetween(t, now time.Time) int {
	if t.IsZero() {
		return 0
	}
	d := now.Sub(t)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
