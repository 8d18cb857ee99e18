// Package metrics exposes the engine's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flowbot"

var (
	InboundEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inbound_events_total",
		Help:      "Inbound events by engine outcome.",
	}, []string{"outcome"})

	FlowTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "flow_transitions_total",
		Help:      "Flow lifecycle transitions (started, continued, restarted, expired, completed, handoff).",
	}, []string{"transition"})

	DispatchSteps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatch_steps_total",
		Help:      "Outbound steps sent to the channel by kind and result.",
	}, []string{"kind", "result"})

	RulesFired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "automation_rules_fired_total",
		Help:      "Automation rules fired by rule kind and response type.",
	}, []string{"kind", "response_type"})
)

func init() {
	prometheus.MustRegister(InboundEvents, FlowTransitions, DispatchSteps, RulesFired)
}
