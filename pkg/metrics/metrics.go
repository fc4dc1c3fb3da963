package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "finboard", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "finboard", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	// LoginAttempts is labelled success, invalid or error.
	LoginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "finboard", Name: "auth_login_attempts_total", Help: "Login attempts by result."},
		[]string{"result"},
	)
	RefreshAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "finboard", Name: "auth_refresh_attempts_total", Help: "Token refresh attempts by result."},
		[]string{"result"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(LoginAttempts)
	reg.MustRegister(RefreshAttempts)
}
