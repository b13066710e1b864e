package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// connectionState reports, per venue, whether the coordinator
// currently considers that venue's client connected (1) or not (0).
// Mirrors the reference's ExchangeConnections gauge in internal/bot/metrics.go.
var connectionState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "boxarb",
		Subsystem: "coordinator",
		Name:      "venue_connected",
		Help:      "1 if the coordinator's venue client is connected, 0 otherwise",
	},
	[]string{"venue"},
)

// rolloverState reports the coordinator's rollover phase as a gauge so
// an operator dashboard can alert on a rollover stuck mid-cancel.
var rolloverState = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "boxarb",
		Subsystem: "coordinator",
		Name:      "rollover_in_progress",
		Help:      "1 while a rollover's cancel/settle/subscribe sequence is running",
	},
)
