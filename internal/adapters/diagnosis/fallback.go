package diagnosis

import (
	"context"

	"github.com/ghalamif/NetPulse/internal/ports"
)

// Fallback serves the secondary generator whenever the primary one errors.
type Fallback struct {
	primary    ports.Diagnoser
	secondary  ports.Diagnoser
	onFallback func(err error)
}

// WithFallback wraps primary. onFallback may be nil.
func WithFallback(primary, secondary ports.Diagnoser, onFallback func(err error)) *Fallback {
	if secondary == nil {
		secondary = NewRuleBased()
	}
	return &Fallback{primary: primary, secondary: secondary, onFallback: onFallback}
}

func (f *Fallback) Name() string { return f.primary.Name() + "+" + f.secondary.Name() }

func (f *Fallback) Diagnose(ctx context.Context, in ports.DiagnosisInput) (ports.Diagnosis, error) {
	d, err := f.primary.Diagnose(ctx, in)
	if err == nil {
		return d, nil
	}
	if f.onFallback != nil {
		f.onFallback(err)
	}
	d, ferr := f.secondary.Diagnose(ctx, in)
	if ferr != nil {
		return ports.Diagnosis{}, ferr
	}
	d.Source += " (fallback)"
	return d, nil
}

var _ ports.Diagnoser = (*Fallback)(nil)
