// internal/service/reservation/application/metrics.go
package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_commit_total",
		Help: "Reservation commit attempts by outcome.",
	}, []string{"result"})

	insufficientStockTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_insufficient_stock_total",
		Help: "Commits rejected at the in-transaction stock recheck, by material.",
	}, []string{"material_id"})
)
