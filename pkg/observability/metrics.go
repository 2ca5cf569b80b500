package observability

import "context"

// Metrics hands out instruments by name. Asking twice for the same name
// returns an instrument bound to the same series.
type Metrics interface {
	Counter(name, description, unit string) Counter
	Histogram(name, description, unit string) Histogram
	UpDownCounter(name, description, unit string) UpDownCounter
}

type Counter interface {
	Add(ctx context.Context, value int64, fields ...Field)
	Increment(ctx context.Context, fields ...Field)
}

type Histogram interface {
	Record(ctx context.Context, value float64, fields ...Field)
}

// UpDownCounter tracks a value that can go both ways, such as in-flight calls.
type UpDownCounter interface {
	Add(ctx context.Context, value int64, fields ...Field)
}
