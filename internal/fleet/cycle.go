package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/iter"
	"github.com/sourcegraph/conc/panics"

	"github.com/angeloszaimis/uptime-monitor/internal/endpoint"
	"github.com/angeloszaimis/uptime-monitor/internal/healthcheck"
)

// Prober checks one URL. *healthcheck.Prober satisfies it.
type Prober interface {
	Probe(ctx context.Context, target string, timeout time.Duration) (healthcheck.Outcome, error)
}

// InternalError wraps a failure of the probing code itself, as opposed to
// the target being unreachable.
type InternalError struct {
	EndpointID int
	Err        error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("endpoint %d: internal error: %v", e.EndpointID, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// CycleOptions tunes a single cycle. A zero MaxConcurrency runs one goroutine
// per endpoint.
type CycleOptions struct {
	Timeout        time.Duration
	MaxConcurrency int
}

// RunCycle probes every endpoint concurrently and returns once all probes
// have settled. The snapshot has exactly one outcome per endpoint, in the
// order given.
func RunCycle(ctx context.Context, endpoints []endpoint.Endpoint, prober Prober, opts CycleOptions) Snapshot {
	snap := Snapshot{
		CycleID:   uuid.New(),
		StartedAt: time.Now().UTC(),
	}

	workers := opts.MaxConcurrency
	if workers <= 0 {
		workers = len(endpoints)
	}

	mapper := iter.Mapper[endpoint.Endpoint, healthcheck.Outcome]{MaxGoroutines: workers}
	snap.Outcomes = mapper.Map(endpoints, func(e *endpoint.Endpoint) healthcheck.Outcome {
		return probeEndpoint(ctx, *e, prober, opts.Timeout)
	})

	snap.CompletedAt = time.Now().UTC()
	return snap
}

func probeEndpoint(ctx context.Context, e endpoint.Endpoint, prober Prober, timeout time.Duration) healthcheck.Outcome {
	var (
		out healthcheck.Outcome
		err error
	)

	if recovered := panics.Try(func() {
		out, err = prober.Probe(ctx, e.URL, timeout)
	}); recovered != nil {
		err = recovered.AsError()
	}

	if err == nil && !out.Status.Valid() {
		err = fmt.Errorf("prober returned unknown status %q", out.Status)
	}
	if err != nil {
		out = errorOutcome(&InternalError{EndpointID: e.ID, Err: err})
	}

	out.EndpointID = e.ID
	return out
}

func errorOutcome(err *InternalError) healthcheck.Outcome {
	return healthcheck.Outcome{
		Status:    healthcheck.StatusError,
		CheckedAt: time.Now().UTC(),
		Error:     err.Error(),
		ErrorType: "InternalError",
	}
}
