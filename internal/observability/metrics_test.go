package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveQueryDefaultsToOK(t *testing.T) {
	before := testutil.ToFloat64(queriesTotal.WithLabelValues("ok"))
	ObserveQuery("", 0.4)
	if got := testutil.ToFloat64(queriesTotal.WithLabelValues("ok")); got != before+1 {
		t.Fatalf("queries ok = %v, want %v", got, before+1)
	}
}

func TestObserveAskAndInferenceCounters(t *testing.T) {
	beforeAsk := testutil.ToFloat64(askTotal.WithLabelValues("exhausted"))
	beforeCalls := testutil.ToFloat64(inferenceCallsTotal.WithLabelValues("timeout"))

	ObserveAsk("exhausted", 5)
	ObserveInferenceCall("timeout", 2*time.Second)

	if got := testutil.ToFloat64(askTotal.WithLabelValues("exhausted")); got != beforeAsk+1 {
		t.Fatalf("ask exhausted = %v", got)
	}
	if got := testutil.ToFloat64(inferenceCallsTotal.WithLabelValues("timeout")); got != beforeCalls+1 {
		t.Fatalf("inference timeout = %v", got)
	}
}

func TestSetActiveSessionsClampsNegative(t *testing.T) {
	SetActiveSessions(-3)
	if got := testutil.ToFloat64(activeSessions); got != 0 {
		t.Fatalf("active sessions = %v", got)
	}
	SetActiveSessions(4)
	if got := testutil.ToFloat64(activeSessions); got != 4 {
		t.Fatalf("active sessions = %v", got)
	}
}
