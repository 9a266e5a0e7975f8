package authcore

import (
	"testing"
	"time"
)

func BenchmarkMetricsInc(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.Inc(MetricValidateSuccess)
	}
}

func BenchmarkMetricsIncDisabledParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricValidateSuccess)
		}
	})
}

func BenchmarkMetricsObserveValidateLatencyParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	d := 800 * time.Microsecond
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Observe(MetricValidateLatency, d)
		}
	})
}

// validate and login dominate production traffic
var hotPathMetricIDs = [...]MetricID{
	MetricValidateSuccess,
	MetricValidateSuccess,
	MetricValidateSuccess,
	MetricValidateFailure,
	MetricLoginSuccess,
	MetricLoginFailure,
	MetricSessionCreated,
	MetricLogout,
}

func BenchmarkMetricsIncHotPathParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		idx := 0
		for pb.Next() {
			m.Inc(hotPathMetricIDs[idx])
			idx++
			if idx == len(hotPathMetricIDs) {
				idx = 0
			}
		}
	})
}
