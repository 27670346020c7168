package ports

import (
	"context"

	"github.com/ghalamif/NetPulse/internal/domain"
)

// DiagnosisInput is everything a generator may look at. Baseline is nil when
// there is no sample yet or the window was insufficient.
type DiagnosisInput struct {
	Latest    domain.Sample
	Anomalies []domain.Anomaly
	Baseline  *domain.Baseline
}

type Diagnosis struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Diagnoser turns the latest sample and its anomalies into a short explanation.
type Diagnoser interface {
	Diagnose(ctx context.Context, in DiagnosisInput) (Diagnosis, error)
	Name() string
}
