package circulation

import (
	"log/slog"
	"time"
)

// Observer receives the outcome of every ledger operation. The metrics
// package implements it with Prometheus collectors.
type Observer interface {
	ObserveOperation(op string, err error)
	ObserveStock(totals Totals)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, error) {}
func (nopObserver) ObserveStock(Totals)            {}

// Options are the ambient dependencies shared by the ledgers.
type Options struct {
	Logger   *slog.Logger
	Observer Observer
	Now      func() time.Time
}

// WithDefaults fills unset fields.
func (o Options) WithDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Outcome labels an operation result for logs and metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsNotFound(err):
		return "not_found"
	case IsClientError(err):
		return "rejected"
	default:
		return "error"
	}
}
