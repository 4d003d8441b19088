// Package compaction implements the CompactionPlanner described in
// spec §4.8: a plan-only pass over cluster metadata that proposes
// relocating dormant or cooling clusters to a quieter temporal
// sub-partition, without ever moving data itself (the engine executes,
// or does not, on its own schedule — see the Open Question recorded in
// DESIGN.md).
//
// Grounded on the teacher's compaction-threshold style in
// hybrid_store.go's background compaction goroutine, generalized from
// "merge SSTables below a size threshold" to "propose a temporal
// reclassification below an age threshold".
package compaction

import (
	"time"

	"neuronstore/pkg/common"
)

// Planner proposes relocations for clusters that have gone quiet.
type Planner struct {
	dormantAfter time.Duration
	recentAfter  time.Duration
}

// New constructs a Planner using the configured dormant/recent
// thresholds (spec §6: DormantAfterDays, RecentAfterDays).
func New(dormantAfterDays, recentAfterDays int) *Planner {
	return &Planner{
		dormantAfter: time.Duration(dormantAfterDays) * 24 * time.Hour,
		recentAfter:  time.Duration(recentAfterDays) * 24 * time.Hour,
	}
}

// Plan inspects every cluster in metadata and proposes a relocation
// under two rules: a cluster idle for at least the dormant threshold
// moves to dormant (unless it is already dormant or
// consolidated_important), and an active_frequent cluster idle for at
// least the recent threshold moves to recent_moderate. No other
// temporal change is proposed; a dormant cluster is not moved out of
// dormant however recently it was accessed. Plan never mutates metadata
// or moves files; the caller decides whether and when to execute a plan.
func (p *Planner) Plan(clusters []common.ClusterMetadata, now time.Time) []common.RelocationPlan {
	var plans []common.RelocationPlan

	for _, meta := range clusters {
		idle := now.Sub(meta.LastAccessed)
		target := p.targetTemporal(idle, meta.Partition.Temporal)
		if target == "" || target == meta.Partition.Temporal {
			continue
		}

		to := meta.Partition
		to.Temporal = target

		plans = append(plans, common.RelocationPlan{
			ClusterID: meta.ID,
			From:      meta.Partition,
			To:        to,
			Reason:    reasonFor(target, idle),
		})
	}

	return plans
}

func (p *Planner) targetTemporal(idle time.Duration, current string) string {
	switch {
	case idle >= p.dormantAfter:
		if current == common.TemporalDormant || current == common.TemporalConsolidatedImportant {
			return ""
		}
		return common.TemporalDormant
	case idle >= p.recentAfter:
		if current == common.TemporalActiveFrequent {
			return common.TemporalRecentModerate
		}
		return ""
	default:
		return ""
	}
}

func reasonFor(target string, idle time.Duration) string {
	switch target {
	case common.TemporalDormant:
		return "idle for " + idle.Round(time.Hour).String() + ", proposing relocation to dormant"
	case common.TemporalRecentModerate:
		return "idle for " + idle.Round(time.Hour).String() + ", proposing cooldown from active_frequent"
	default:
		return "idle for " + idle.Round(time.Hour).String()
	}
}
