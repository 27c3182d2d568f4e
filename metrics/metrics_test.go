/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package metrics_test

import (
	"time"

	"github.com/gridforge/wlmcore/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	Expect(c.Write(&m)).To(Succeed())
	return m.GetCounter().GetValue()
}

var _ = Describe("Placement", func() {
	It("tallies attempts against successes and no-fit", func() {
		reg := prometheus.NewRegistry()
		p := metrics.NewPlacement(reg)

		p.Observe(time.Now(), true)
		p.Observe(time.Now(), false)

		Expect(counterValue(p.Attempts)).To(Equal(2.0))
		Expect(counterValue(p.Successes)).To(Equal(1.0))
		Expect(counterValue(p.NoFit)).To(Equal(1.0))
	})
})

var _ = Describe("Controller", func() {
	It("counts standby retries independently of cancel retries", func() {
		reg := prometheus.NewRegistry()
		c := metrics.NewController(reg)

		c.StandbyRetries.Inc()
		c.StandbyRetries.Inc()
		c.CancelRetries.Inc()

		Expect(counterValue(c.StandbyRetries)).To(Equal(2.0))
		Expect(counterValue(c.CancelRetries)).To(Equal(1.0))
		Expect(counterValue(c.TerminalErrors)).To(Equal(0.0))
	})
})
