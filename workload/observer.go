package workload

// Phase is the stage a run is in.
type Phase int32

const (
	PhaseInit Phase = iota
	PhaseLoad
	PhaseCompact
	PhaseRead
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseLoad:
		return "load"
	case PhaseCompact:
		return "compact"
	case PhaseRead:
		return "read"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Observer receives run events. Wrote is called from every writer goroutine;
// implementations must be safe for concurrent use.
type Observer interface {
	PhaseChanged(p Phase)
	Wrote(bytes int)
	Flushed(round int)
	Compacted(res CompactResult)
	Sampled(s Sample)
}

type nopObserver struct{}

func (nopObserver) PhaseChanged(Phase)      {}
func (nopObserver) Wrote(int)               {}
func (nopObserver) Flushed(int)             {}
func (nopObserver) Compacted(CompactResult) {}
func (nopObserver) Sampled(Sample)          {}

// NopObserver discards every event.
var NopObserver Observer = nopObserver{}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return NopObserver
	}
	return o
}

// Observers fans events out to several observers.
type Observers []Observer

func (obs Observers) PhaseChanged(p Phase) {
	for _, o := range obs {
		o.PhaseChanged(p)
	}
}

func (obs Observers) Wrote(bytes int) {
	for _, o := range obs {
		o.Wrote(bytes)
	}
}

func (obs Observers) Flushed(round int) {
	for _, o := range obs {
		o.Flushed(round)
	}
}

func (obs Observers) Compacted(res CompactResult) {
	for _, o := range obs {
		o.Compacted(res)
	}
}

func (obs Observers) Sampled(s Sample) {
	for _, o := range obs {
		o.Sampled(s)
	}
}
