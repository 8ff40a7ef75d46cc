package observability

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/push"
)

// Job is the Pushgateway job name for pipeline runs.
const Job = "covid_risk_etl"

// Push sends the run's metrics to a Pushgateway, replacing the previous
// run's group.
func (m *Metrics) Push(ctx context.Context, url, instance string) error {
	g := m.Gatherer()
	if g == nil {
		return errors.New("metrics are not registered")
	}
	p := push.New(url, Job).Gatherer(g)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
