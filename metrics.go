package ledkit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	outputWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledkit",
		Subsystem: "output",
		Name:      "writes_total",
		Help:      "Line driver writes per output line and result",
	}, []string{"line", "result"})

	outputState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ledkit",
		Subsystem: "output",
		Name:      "state",
		Help:      "Current state of output line (1 = on)",
	}, []string{"line"})
)

func recordWrite(line string, state bool, err error) {
	if err != nil {
		outputWrites.WithLabelValues(line, "error").Inc()
		return
	}
	outputWrites.WithLabelValues(line, "ok").Inc()
	if state {
		outputState.WithLabelValues(line).Set(1)
	} else {
		outputState.WithLabelValues(line).Set(0)
	}
}
