package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ResponseTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	CommissionsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_commissions_created_total",
			Help: "Commission records written, by plan and chain level",
		},
		[]string{"plan", "level"},
	)

	CommissionAmountTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_commission_amount_usd_total",
			Help: "Commission value credited to referrers in USD",
		},
		[]string{"plan"},
	)

	ChainWalkStops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_chain_walk_stops_total",
			Help: "Reasons a commission chain walk ended",
		},
		[]string{"reason"},
	)

	PayoutRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_payout_requests_total",
			Help: "Payout request outcomes",
		},
		[]string{"outcome"},
	)

	IntegrityFindings = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "referral_integrity_findings",
			Help: "Findings of the latest referral network audit",
		},
		[]string{"kind"},
	)
)
