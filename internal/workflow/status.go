package workflow

import (
	"context"

	"quill/internal/queue"
	"quill/internal/stage"
)

// StatusSummary captures orchestrator and queue state for the CLI.
type StatusSummary struct {
	QueueStats  map[queue.Status]int
	Eligible    int
	StageHealth map[stage.Name]stage.Health
	LastError   string
	LastOutcome *Outcome
}

// Status reports queue counts, stage health and the most recent run.
func (o *Orchestrator) Status(ctx context.Context) (StatusSummary, error) {
	summary := StatusSummary{StageHealth: make(map[stage.Name]stage.Health)}
	health, err := o.store.Health(ctx)
	if err != nil {
		return summary, err
	}
	stats, err := o.store.Stats(ctx)
	if err != nil {
		return summary, err
	}
	summary.QueueStats = stats
	summary.Eligible = health.Eligible

	for _, name := range stage.Sequence() {
		handler := o.stages.handler(name)
		if handler == nil {
			summary.StageHealth[name] = stage.Down(name, "no handler registered")
			continue
		}
		health := handler.HealthCheck(ctx)
		health.Stage = name
		summary.StageHealth[name] = health
	}

	o.mu.RLock()
	if o.lastErr != nil {
		summary.LastError = o.lastErr.Error()
	}
	summary.LastOutcome = o.lastOutcome
	o.mu.RUnlock()
	return summary, nil
}
