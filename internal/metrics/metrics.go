package metrics

import (
	"sort"
	"sync"
	"time"
)

const maxSamples = 1000

type Metrics struct {
	mutex         sync.RWMutex
	probes        map[string]int64
	statuses      map[string]map[string]int64
	lastStatus    map[string]string
	transitions   map[string]int64
	responseTimes map[string][]time.Duration
	cycles        int64
	skippedCycles int64
	cycleTimes    []time.Duration
	proxyFetches  int64
	proxyFailures int64
	proxyCodes    map[int]int64
	proxyTimes    []time.Duration
	startTime     time.Time
}

type Snapshot struct {
	Uptime    time.Duration              `json:"uptime"`
	Cycles    CycleMetrics               `json:"cycles"`
	Endpoints map[string]EndpointMetrics `json:"endpoints"`
	Proxy     ProxyMetrics               `json:"proxy"`
}

type CycleMetrics struct {
	Completed    int64         `json:"completed"`
	Skipped      int64         `json:"skipped"`
	LastDuration time.Duration `json:"last_duration"`
	AvgDuration  time.Duration `json:"avg_duration"`
}

type EndpointMetrics struct {
	Probes       int64            `json:"probes"`
	Status       string           `json:"status"`
	Transitions  int64            `json:"transitions"`
	StatusCounts map[string]int64 `json:"status_counts"`
	AvgResponse  time.Duration    `json:"avg_response"`
	P50Response  time.Duration    `json:"p50_response"`
	P95Response  time.Duration    `json:"p95_response"`
	P99Response  time.Duration    `json:"p99_response"`
}

type ProxyMetrics struct {
	Fetches     int64         `json:"fetches"`
	Failures    int64         `json:"failures"`
	StatusCodes map[int]int64 `json:"status_codes"`
	AvgFetch    time.Duration `json:"avg_fetch"`
	P95Fetch    time.Duration `json:"p95_fetch"`
}

// RecordProbe counts one probe of endpoint. A zero duration means the probe
// produced no timing and is left out of the percentiles.
func (m *Metrics) RecordProbe(endpoint, status string, duration time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.probes[endpoint]++

	if m.statuses[endpoint] == nil {
		m.statuses[endpoint] = make(map[string]int64)
	}
	m.statuses[endpoint][status]++
	m.lastStatus[endpoint] = status

	if duration > 0 {
		m.responseTimes[endpoint] = appendBounded(m.responseTimes[endpoint], duration)
	}
}

func (m *Metrics) RecordTransition(endpoint string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.transitions[endpoint]++
}

func (m *Metrics) RecordCycle(duration time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.cycles++
	m.cycleTimes = appendBounded(m.cycleTimes, duration)
}

func (m *Metrics) RecordSkippedCycle() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.skippedCycles++
}

// RecordProxyFetch counts one proxy fetch. statusCode is zero when the
// upstream could not be reached.
func (m *Metrics) RecordProxyFetch(duration time.Duration, statusCode int, failed bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.proxyFetches++
	if failed {
		m.proxyFailures++
	}
	if statusCode != 0 {
		m.proxyCodes[statusCode]++
	}
	m.proxyTimes = appendBounded(m.proxyTimes, duration)
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:    time.Since(m.startTime),
		Endpoints: make(map[string]EndpointMetrics, len(m.probes)),
		Cycles: CycleMetrics{
			Completed:   m.cycles,
			Skipped:     m.skippedCycles,
			AvgDuration: average(m.cycleTimes),
		},
		Proxy: ProxyMetrics{
			Fetches:     m.proxyFetches,
			Failures:    m.proxyFailures,
			StatusCodes: make(map[int]int64, len(m.proxyCodes)),
			AvgFetch:    average(m.proxyTimes),
			P95Fetch:    percentile(sorted(m.proxyTimes), 0.95),
		},
	}
	if n := len(m.cycleTimes); n > 0 {
		snap.Cycles.LastDuration = m.cycleTimes[n-1]
	}
	for code, n := range m.proxyCodes {
		snap.Proxy.StatusCodes[code] = n
	}

	for endpoint, probes := range m.probes {
		em := EndpointMetrics{
			Probes:       probes,
			Status:       m.lastStatus[endpoint],
			Transitions:  m.transitions[endpoint],
			StatusCounts: make(map[string]int64, len(m.statuses[endpoint])),
		}
		for status, n := range m.statuses[endpoint] {
			em.StatusCounts[status] = n
		}

		if durations := sorted(m.responseTimes[endpoint]); len(durations) > 0 {
			em.AvgResponse = average(durations)
			em.P50Response = percentile(durations, 0.50)
			em.P95Response = percentile(durations, 0.95)
			em.P99Response = percentile(durations, 0.99)
		}

		snap.Endpoints[endpoint] = em
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		probes:        make(map[string]int64),
		statuses:      make(map[string]map[string]int64),
		lastStatus:    make(map[string]string),
		transitions:   make(map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		proxyCodes:    make(map[int]int64),
		startTime:     time.Now(),
	}
}

func appendBounded(durations []time.Duration, d time.Duration) []time.Duration {
	durations = append(durations, d)
	if len(durations) > maxSamples {
		durations = durations[1:]
	}
	return durations
}

func sorted(durations []time.Duration) []time.Duration {
	out := make([]time.Duration, len(durations))
	copy(out, durations)
	sort.Slice(out, func(i, j int) bool {
		return out[i] < out[j]
	})
	return out
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
