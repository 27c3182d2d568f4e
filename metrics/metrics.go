// Package metrics exports placement, controller-client, and catalogue
// counters through prometheus/client_golang (SPEC_FULL.md's DOMAIN STACK:
// "metrics package: placement latency/outcome counters, catalogue gauges,
// controller retry counters"), grounded on the promauto registration
// style used by the retrieval pack's other_examples engine file.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wlmcore"

// Placement collects placement-engine outcome counters and latency.
type Placement struct {
	Attempts  prometheus.Counter
	Successes prometheus.Counter
	NoFit     prometheus.Counter
	Latency   prometheus.Histogram
}

// NewPlacement registers placement metrics against reg; if reg is nil the
// collectors are created but registered nowhere.
func NewPlacement(reg prometheus.Registerer) *Placement {
	f := promauto.With(reg)
	return &Placement{
		Attempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "placement", Name: "attempts_total",
			Help: "Total placement attempts.",
		}),
		Successes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "placement", Name: "successes_total",
			Help: "Placement attempts that selected a block.",
		}),
		NoFit: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "placement", Name: "no_fit_total",
			Help: "Placement attempts that ended in NO_FIT.",
		}),
		Latency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "placement", Name: "latency_seconds",
			Help:    "Wall-clock time spent in Engine.Place.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}
}

// Observe records the outcome of one Place call.
func (p *Placement) Observe(start time.Time, matched bool) {
	p.Attempts.Inc()
	if matched {
		p.Successes.Inc()
	} else {
		p.NoFit.Inc()
	}
	p.Latency.Observe(time.Since(start).Seconds())
}

// Controller collects controller-client retry counters. Only StandbyRetries
// is incremented (by ctrlclient.Client.SendRecvController); WithCancelRetry
// takes no Controller, so CancelRetries and TerminalErrors stay at zero.
type Controller struct {
	StandbyRetries prometheus.Counter
	CancelRetries  prometheus.Counter
	TerminalErrors prometheus.Counter
}

func NewController(reg prometheus.Registerer) *Controller {
	f := promauto.With(reg)
	return &Controller{
		StandbyRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "controller", Name: "standby_retries_total",
			Help: "Retries issued while the controller reported IN_STANDBY_MODE.",
		}),
		CancelRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "controller", Name: "cancel_retries_total",
			Help: "Retries issued by WithCancelRetry for a retriable RC.",
		}),
		TerminalErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "controller", Name: "terminal_errors_total",
			Help: "Operations that stopped immediately on a terminal RC.",
		}),
	}
}
