package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ls4154/rangetest/workload"
)

// Status is the run state served on /status and pushed to websocket clients.
type Status struct {
	RunID      string          `json:"run_id"`
	Engine     string          `json:"engine"`
	Phase      string          `json:"phase"`
	StartedAt  time.Time       `json:"started_at"`
	Writes     int64           `json:"writes"`
	WriteBytes int64           `json:"write_bytes"`
	Flushes    int             `json:"flushes"`
	Compaction *CompactionInfo `json:"compaction,omitempty"`
	LastSample *SampleInfo     `json:"last_sample,omitempty"`
	Totals     ReadTotals      `json:"totals"`
}

type CompactionInfo struct {
	Policy  string  `json:"policy"`
	Begin   string  `json:"begin,omitempty"`
	End     string  `json:"end,omitempty"`
	Seconds float64 `json:"seconds"`
}

type SampleInfo struct {
	Time     time.Time `json:"time"`
	Found    uint64    `json:"found"`
	Missed   uint64    `json:"missed"`
	Errors   uint64    `json:"errors"`
	QPS      float64   `json:"qps"`
	P99Micro int64     `json:"p99_us,omitempty"`
}

type ReadTotals struct {
	Found  uint64 `json:"found"`
	Missed uint64 `json:"missed"`
	Errors uint64 `json:"errors"`
}

// Event is one websocket message.
type Event struct {
	Type   string  `json:"type"`
	Status *Status `json:"status,omitempty"`
}

// Metrics exports run events to prometheus and keeps the latest Status.
// It implements workload.Observer.
type Metrics struct {
	reg *prometheus.Registry

	phase          prometheus.Gauge
	writes         prometheus.Counter
	writeBytes     prometheus.Counter
	flushes        prometheus.Counter
	compactions    prometheus.Counter
	compactSeconds prometheus.Gauge
	getFound       prometheus.Counter
	getMissed      prometheus.Counter
	getErrors      prometheus.Counter
	getQPS         prometheus.Gauge
	getP99         prometheus.Gauge

	nwrites atomic.Int64
	nbytes  atomic.Int64

	mu     sync.RWMutex
	status Status
	hub    *Hub
}

var _ workload.Observer = (*Metrics)(nil)

func NewMetrics(runID, engine string) *Metrics {
	labels := prometheus.Labels{"run_id": runID, "engine": engine}
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "rangetest_phase",
			Help:        "Current phase (0=init 1=load 2=compact 3=read 4=done)",
			ConstLabels: labels,
		}),
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "rangetest_writes_total",
			Help:        "Records written during the load phase",
			ConstLabels: labels,
		}),
		writeBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "rangetest_write_bytes_total",
			Help:        "Key and value bytes written during the load phase",
			ConstLabels: labels,
		}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "rangetest_flushes_total",
			Help:        "Memtable flushes requested by the load phase",
			ConstLabels: labels,
		}),
		compactions: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "rangetest_compactions_total",
			Help:        "Manual range compactions issued",
			ConstLabels: labels,
		}),
		compactSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "rangetest_compaction_seconds",
			Help:        "Duration of the last manual compaction",
			ConstLabels: labels,
		}),
		getFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "rangetest_get_found_total",
			Help:        "Lookups counted as found",
			ConstLabels: labels,
		}),
		getMissed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "rangetest_get_missed_total",
			Help:        "Lookups counted as missed",
			ConstLabels: labels,
		}),
		getErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "rangetest_get_errors_total",
			Help:        "Lookups that failed with an error other than not-found",
			ConstLabels: labels,
		}),
		getQPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "rangetest_get_qps",
			Help:        "Lookup rate over the last reporting interval",
			ConstLabels: labels,
		}),
		getP99: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "rangetest_get_p99_seconds",
			Help:        "p99 lookup latency over the last reporting interval",
			ConstLabels: labels,
		}),
		status: Status{
			RunID:     runID,
			Engine:    engine,
			Phase:     workload.PhaseInit.String(),
			StartedAt: time.Now(),
		},
	}
	m.reg.MustRegister(
		m.phase,
		m.writes,
		m.writeBytes,
		m.flushes,
		m.compactions,
		m.compactSeconds,
		m.getFound,
		m.getMissed,
		m.getErrors,
		m.getQPS,
		m.getP99,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// AttachHub makes every subsequent event get broadcast on h.
func (m *Metrics) AttachHub(h *Hub) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hub = h
}

func (m *Metrics) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Metrics) snapshotLocked() Status {
	st := m.status
	st.Writes = m.nwrites.Load()
	st.WriteBytes = m.nbytes.Load()
	if st.Compaction != nil {
		c := *st.Compaction
		st.Compaction = &c
	}
	if st.LastSample != nil {
		s := *st.LastSample
		st.LastSample = &s
	}
	return st
}

// update applies fn to the status and broadcasts the result as an event of
// type typ.
func (m *Metrics) update(typ string, fn func(*Status)) {
	m.mu.Lock()
	fn(&m.status)
	st := m.snapshotLocked()
	hub := m.hub
	m.mu.Unlock()

	if hub != nil {
		hub.Broadcast(Event{Type: typ, Status: &st})
	}
}

func (m *Metrics) PhaseChanged(p workload.Phase) {
	m.phase.Set(float64(p))
	m.update("phase", func(st *Status) { st.Phase = p.String() })
}

func (m *Metrics) Wrote(bytes int) {
	m.nwrites.Add(1)
	m.nbytes.Add(int64(bytes))
	m.writes.Inc()
	m.writeBytes.Add(float64(bytes))
}

func (m *Metrics) Flushed(int) {
	m.flushes.Inc()
	m.update("flush", func(st *Status) { st.Flushes++ })
}

func (m *Metrics) Compacted(res workload.CompactResult) {
	m.compactions.Inc()
	m.compactSeconds.Set(res.Elapsed.Seconds())
	m.update("compaction", func(st *Status) {
		st.Compaction = &CompactionInfo{
			Policy:  res.Policy.String(),
			Begin:   string(res.Begin),
			End:     string(res.End),
			Seconds: res.Elapsed.Seconds(),
		}
	})
}

func (m *Metrics) Sampled(s workload.Sample) {
	m.getFound.Add(float64(s.Found))
	m.getMissed.Add(float64(s.Missed))
	m.getErrors.Add(float64(s.Errors))
	m.getQPS.Set(s.QPS)
	m.getP99.Set(s.P99.Seconds())
	m.update("sample", func(st *Status) {
		st.LastSample = &SampleInfo{
			Time:     s.Time,
			Found:    s.Found,
			Missed:   s.Missed,
			Errors:   s.Errors,
			QPS:      s.QPS,
			P99Micro: s.P99.Microseconds(),
		}
		st.Totals.Found += s.Found
		st.Totals.Missed += s.Missed
		st.Totals.Errors += s.Errors
	})
}
