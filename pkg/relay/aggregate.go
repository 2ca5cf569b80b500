package relay

// AggregateResult is the outcome of a fan-out, in configured peer order.
type AggregateResult struct {
	SourceService string        `json:"source_service_name"`
	Outcomes      []CallOutcome `json:"outcomes"`
}

// Build assembles an AggregateResult. The outcomes slice is copied.
func Build(sourceService string, outcomes []CallOutcome) AggregateResult {
	out := make([]CallOutcome, len(outcomes))
	copy(out, outcomes)
	return AggregateResult{SourceService: sourceService, Outcomes: out}
}

// Failures counts the outcomes with an error.
func (r AggregateResult) Failures() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Failed() {
			n++
		}
	}
	return n
}
