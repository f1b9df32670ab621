package metrics

import (
	"time"

	obserrors "github.com/civicwatch/portal/internal/observability/errors"
	"github.com/civicwatch/portal/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultTimeout = "timeout"
)

// GuardMetric captures one route guard evaluation.
type GuardMetric struct {
	Route    string
	Decision string
	Reason   string
	Waited   time.Duration
}

// EmitGuardDecision counts guard outcomes and how long the request waited for them.
func EmitGuardDecision(sink statsd.Sink, in GuardMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"route":    in.Route,
		"decision": in.Decision,
	}
	if in.Reason != "" {
		tags["reason"] = in.Reason
	}

	sink.Count("guard.decision", 1, tags)
	if in.Waited > 0 {
		sink.Timing("guard.wait", in.Waited, CloneTags(tags))
	}
}

// EmitRoleFetch counts backend role lookups by outcome.
func EmitRoleFetch(sink statsd.Sink, err error) {
	if sink == nil {
		return
	}

	tags := map[string]string{"result": ResultSuccess}
	if err != nil {
		tags["result"] = ResultError
		tags["error_class"] = obserrors.Classify(err)
	}
	sink.Count("role.fetch", 1, tags)
}

// EmitForcedSignOut counts sessions ended by the backend rejecting their credential.
func EmitForcedSignOut(sink statsd.Sink, err error) {
	if sink == nil {
		return
	}
	sink.Count("session.forced_sign_out", 1, map[string]string{"error_class": obserrors.Classify(err)})
}

// EmitActivePortals reports how many browser sessions hold a live portal client.
func EmitActivePortals(sink statsd.Sink, n int) {
	if sink == nil {
		return
	}
	sink.Gauge("portal.active", float64(n), nil)
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
