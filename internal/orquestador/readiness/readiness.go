// Package readiness aggregates the liveness of the three downstream
// collaborators into a single verdict: the orchestrator is ready iff every
// collaborator answers its health probe in time.
package readiness

import (
	"context"
	"sync"
	"time"
)

// DefaultTimeout bounds each individual probe. A collaborator that cannot
// answer a health check within this window counts as down.
const DefaultTimeout = 2 * time.Second

// Probe is one named downstream health check.
type Probe struct {
	Nombre string
	Check  func(ctx context.Context) error
}

// EstadoServicio is one collaborator's probe outcome.
type EstadoServicio struct {
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	LatenciaMS int64  `json:"latencia_ms"`
}

// Reporte is the aggregated readiness verdict.
type Reporte struct {
	Ready     bool                      `json:"ready"`
	Servicios map[string]EstadoServicio `json:"servicios"`
}

// Aggregator fans health probes out concurrently and reduces them to a
// single ready/not-ready answer.
type Aggregator struct {
	probes  []Probe
	timeout time.Duration
}

func New(probes ...Probe) *Aggregator {
	return &Aggregator{probes: probes, timeout: DefaultTimeout}
}

// WithTimeout overrides the per-probe deadline.
func (a *Aggregator) WithTimeout(d time.Duration) *Aggregator {
	a.timeout = d
	return a
}

// Check runs every probe concurrently, each under its own deadline, and
// waits for all of them. There is no short-circuit on the first failure:
// the report always names every collaborator, so an operator sees which
// ones are down, not just that one is.
func (a *Aggregator) Check(ctx context.Context) Reporte {
	reporte := Reporte{
		Ready:     true,
		Servicios: make(map[string]EstadoServicio, len(a.probes)),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, p := range a.probes {
		wg.Add(1)
		go func() {
			defer wg.Done()

			pctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			inicio := time.Now()
			err := p.Check(pctx)
			estado := EstadoServicio{
				OK:         err == nil,
				LatenciaMS: time.Since(inicio).Milliseconds(),
			}
			if err != nil {
				estado.Error = err.Error()
			}

			mu.Lock()
			reporte.Servicios[p.Nombre] = estado
			if err != nil {
				reporte.Ready = false
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	return reporte
}
