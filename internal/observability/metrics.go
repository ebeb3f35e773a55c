package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreated           = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "rides_created_total", Help: "Rides published"})
	BookingRequestsCreated = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "booking_requests_total", Help: "Booking requests created"})
	BookingAccepts         = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "booking_accepts_total", Help: "Booking requests accepted"})
	BookingDeclines        = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "booking_declines_total", Help: "Booking requests declined"})
	BookingConflicts       = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "booking_conflicts_total", Help: "Booking decisions lost to seat races"})
	DemandsCreated         = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "demands_total", Help: "Ride demands created"})
	OffersCreated          = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "offers_total", Help: "Offers made against demands"})
	OffersAccepted         = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "offers_accepted_total", Help: "Offers accepted"})
	MatchesScored          = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "matches_scored_total", Help: "Candidate rides scored for demands"})
	MatchLatency           = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "carpool", Name: "match_latency_seconds", Help: "Ranking latency seconds"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carpool", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "carpool",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
