package authcore

import (
	"errors"
	"sync/atomic"
	"time"
)

// MetricID indexes an engine counter or histogram.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginLockedOut
	MetricLoginRateLimited
	MetricLoginInactive
	MetricRememberLoginSuccess
	MetricRememberLoginFailure
	MetricLogout
	MetricSessionCreated
	MetricAttemptRecorded
	MetricRehash
	MetricPasswordChangeSuccess
	MetricPasswordChangeFailure
	MetricPasswordResetSuccess
	MetricRecoveryRequest
	MetricRecoveryRateLimited
	MetricRecoveryCompleteSuccess
	MetricRecoveryCompleteFailure
	MetricRegisterSuccess
	MetricRegisterDuplicate
	MetricActivate
	MetricDeactivate
	MetricUserUpdated
	MetricUserDeleted
	MetricMembershipChange
	MetricGroupChange
	// MetricLoginLatency is the only histogram.
	MetricLoginLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters. A nil or disabled Metrics records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram id. Only MetricLoginLatency has buckets.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id != MetricLoginLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies the current values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricLoginLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricLoginLatency].buckets[i])
		}
		s.Histograms[MetricLoginLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// outcomeMetric picks the counter for a finished operation. err is already public.
func outcomeMetric(op Operation, err error) (MetricID, bool) {
	switch op {
	case OpLogin:
		switch {
		case err == nil:
			return MetricLoginSuccess, true
		case errors.Is(err, ErrLockedOut):
			return MetricLoginLockedOut, true
		case errors.Is(err, ErrRateLimited):
			return MetricLoginRateLimited, true
		case errors.Is(err, ErrAccountNotActive):
			return MetricLoginInactive, true
		default:
			return MetricLoginFailure, true
		}
	case OpLoginRemembered:
		if err == nil {
			return MetricRememberLoginSuccess, true
		}
		return MetricRememberLoginFailure, true
	case OpLogout:
		return MetricLogout, err == nil
	case OpChangePassword:
		if err == nil {
			return MetricPasswordChangeSuccess, true
		}
		return MetricPasswordChangeFailure, true
	case OpResetPassword:
		return MetricPasswordResetSuccess, err == nil
	case OpForgottenPassword:
		if errors.Is(err, ErrRateLimited) {
			return MetricRecoveryRateLimited, true
		}
		return MetricRecoveryRequest, err == nil
	case OpForgottenPasswordComplete:
		if err == nil {
			return MetricRecoveryCompleteSuccess, true
		}
		return MetricRecoveryCompleteFailure, true
	case OpRegister:
		if errors.Is(err, ErrDuplicateIdentity) {
			return MetricRegisterDuplicate, true
		}
		return MetricRegisterSuccess, err == nil
	case OpActivate:
		return MetricActivate, err == nil
	case OpDeactivate:
		return MetricDeactivate, err == nil
	case OpUpdateUser:
		return MetricUserUpdated, err == nil
	case OpDeleteUser:
		return MetricUserDeleted, err == nil
	case OpAddMember, OpRemoveMember:
		return MetricMembershipChange, err == nil
	case OpCreateGroup, OpUpdateGroup, OpDeleteGroup:
		return MetricGroupChange, err == nil
	default:
		return 0, false
	}
}
