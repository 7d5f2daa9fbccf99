package session

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var operationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "livechat_session_operations_total",
		Help: "Session store operations by outcome.",
	},
	[]string{"operation", "outcome"},
)

func init() {
	prometheus.MustRegister(operationsTotal)
}

// observe records the outcome of operation.
func observe(operation string, err error) {
	outcome := "ok"
	if err != nil {
		var svcErr *Error
		if errors.As(err, &svcErr) {
			outcome = string(svcErr.Code)
			if svcErr.Reason != "" {
				outcome += ":" + string(svcErr.Reason)
			}
		} else {
			outcome = string(ErrorCodeInternal)
		}
	}
	operationsTotal.WithLabelValues(operation, outcome).Inc()
}
