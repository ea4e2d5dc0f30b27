package provider

import (
	"math/rand"
	"net/http"
	"time"
)

// Action is what the gateway does after a failed attempt.
type Action int

const (
	FailFast Action = iota
	RetrySame
	SkipToNext
)

func (a Action) String() string {
	switch a {
	case RetrySame:
		return "retry_same"
	case SkipToNext:
		return "skip_to_next"
	default:
		return "fail_fast"
	}
}

// Policy classifies upstream failures. Status 0 stands for a transport error.
type Policy struct {
	Transient  map[int]bool
	AltKey     map[int]bool
	SkipModel  map[int]bool
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     func() float64
}

func statusSet(codes ...int) map[int]bool {
	out := make(map[int]bool, len(codes))
	for _, c := range codes {
		out[c] = true
	}
	return out
}

func DefaultPolicy() Policy {
	return Policy{
		Transient: statusSet(
			http.StatusRequestTimeout,
			http.StatusConflict,
			http.StatusTooEarly,
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		),
		AltKey:     statusSet(http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests),
		SkipModel:  statusSet(http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusTooManyRequests),
		MaxRetries: 2,
		BaseDelay:  600 * time.Millisecond,
		MaxDelay:   15 * time.Second,
		Jitter:     func() float64 { return 0.7 + rand.Float64()*0.6 },
	}
}

// Decide classifies a failed attempt. multiModel is true when other candidate
// models are available to fall back to.
func (p Policy) Decide(status int, multiModel bool) Action {
	if multiModel && p.SkipModel[status] {
		return SkipToNext
	}
	if status == 0 || p.Transient[status] {
		return RetrySame
	}
	return FailFast
}

// ShouldSwapKey reports whether status warrants retrying with the alternate key.
func (p Policy) ShouldSwapKey(status int) bool {
	return p.AltKey[status]
}

// Backoff is the delay before retry n (1-based): base*(n+1)^2 with jitter.
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	factor := float64((n + 1) * (n + 1))
	jitter := 1.0
	if p.Jitter != nil {
		jitter = p.Jitter()
	}
	d := time.Duration(float64(p.BaseDelay) * factor * jitter)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
