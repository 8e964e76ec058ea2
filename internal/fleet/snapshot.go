package fleet

import (
	"time"

	"github.com/google/uuid"

	"github.com/angeloszaimis/uptime-monitor/internal/endpoint"
	"github.com/angeloszaimis/uptime-monitor/internal/healthcheck"
)

// Snapshot is the complete set of outcomes for one cycle.
type Snapshot struct {
	CycleID     uuid.UUID             `json:"cycleId"`
	StartedAt   time.Time             `json:"startedAt"`
	CompletedAt time.Time             `json:"completedAt"`
	Outcomes    []healthcheck.Outcome `json:"outcomes"`
}

type Stats struct {
	Total             int     `json:"total"`
	OnlineCount       int     `json:"onlineCount"`
	IssueCount        int     `json:"issueCount"`
	AvgResponseTimeMs float64 `json:"avgResponseTimeMs"`
}

// Stats aggregates the snapshot. The average covers only outcomes that carry
// a response time and is zero when none do.
func (s *Snapshot) Stats() Stats {
	stats := Stats{Total: len(s.Outcomes)}

	var (
		sum   int64
		timed int
	)
	for _, out := range s.Outcomes {
		switch {
		case out.Status == healthcheck.StatusOnline:
			stats.OnlineCount++
		case out.Status.IsIssue():
			stats.IssueCount++
		}

		if out.ResponseTimeMs != nil {
			sum += *out.ResponseTimeMs
			timed++
		}
	}

	if timed > 0 {
		stats.AvgResponseTimeMs = float64(sum) / float64(timed)
	}

	return stats
}

// Outcome returns the outcome for endpoint id.
func (s *Snapshot) Outcome(id int) (healthcheck.Outcome, bool) {
	for _, out := range s.Outcomes {
		if out.EndpointID == id {
			return out, true
		}
	}
	return healthcheck.Outcome{}, false
}

// Pending builds the snapshot shown before the first cycle completes: every
// endpoint is checking.
func Pending(endpoints []endpoint.Endpoint) *Snapshot {
	outcomes := make([]healthcheck.Outcome, len(endpoints))
	for i, e := range endpoints {
		outcomes[i] = healthcheck.Outcome{
			EndpointID: e.ID,
			Status:     healthcheck.StatusChecking,
		}
	}
	return &Snapshot{Outcomes: outcomes}
}
