package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func getCounterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.(prometheus.Metric).Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func getCounterVecValue(cv *prometheus.CounterVec, labels ...string) float64 {
	c, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func getGaugeVecValue(gv *prometheus.GaugeVec, labels ...string) float64 {
	g, err := gv.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

func TestMetrics_TransfersStartedTotal(t *testing.T) {
	before := getCounterVecValue(TransfersStartedTotal, "video")
	TransfersStartedTotal.WithLabelValues("video").Inc()
	after := getCounterVecValue(TransfersStartedTotal, "video")

	if after != before+1 {
		t.Errorf("Expected video counter to increment by 1, got diff %.0f", after-before)
	}
}

func TestMetrics_TransfersFailedTotal(t *testing.T) {
	before := getCounterVecValue(TransfersFailedTotal, "insufficient_space")
	TransfersFailedTotal.WithLabelValues("insufficient_space").Inc()
	after := getCounterVecValue(TransfersFailedTotal, "insufficient_space")

	if after != before+1 {
		t.Errorf("Expected failure counter to increment by 1, got diff %.0f", after-before)
	}
}

func TestMetrics_TransfersInFlight(t *testing.T) {
	TransfersInFlight.WithLabelValues("support").Set(3)
	if v := getGaugeVecValue(TransfersInFlight, "support"); v != 3 {
		t.Errorf("Expected gauge 3, got %.0f", v)
	}
}

func TestMetrics_FilesCollectedTotal(t *testing.T) {
	before := getCounterValue(FilesCollectedTotal)
	FilesCollectedTotal.Add(2)
	after := getCounterValue(FilesCollectedTotal)

	if after != before+2 {
		t.Errorf("Expected counter to increment by 2, got diff %.0f", after-before)
	}
}
