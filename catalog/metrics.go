/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package catalog

import "github.com/prometheus/client_golang/prometheus"

// Catalogue satisfies prometheus.Collector directly (SPEC_FULL.md's
// DOMAIN STACK: "catalog.Catalogue is exposed as a prometheus.Collector
// reporting block counts by state and free-CPU budget"), so a process
// wires it into a registry alongside metrics.Placement/Controller without
// an extra adapter type.

var (
	blocksByStateDesc = prometheus.NewDesc(
		"wlmcore_catalog_blocks", "Block count by state.",
		[]string{"state"}, nil,
	)
	freeCPUsDesc = prometheus.NewDesc(
		"wlmcore_catalog_free_cpus", "Free CPU budget across the catalogue.",
		nil, nil,
	)
	totalCPUsDesc = prometheus.NewDesc(
		"wlmcore_catalog_total_cpus", "Total CPU budget across the catalogue.",
		nil, nil,
	)
)

func (c *Catalogue) Describe(ch chan<- *prometheus.Desc) {
	ch <- blocksByStateDesc
	ch <- freeCPUsDesc
	ch <- totalCPUsDesc
}

func (c *Catalogue) Collect(ch chan<- prometheus.Metric) {
	c.Lock()
	counts := c.StateCounts()
	free := c.FreeCPUBudget()
	total := c.TotalCPUBudget()
	c.Unlock()

	for state, n := range counts {
		ch <- prometheus.MustNewConstMetric(blocksByStateDesc, prometheus.GaugeValue, float64(n), state.String())
	}
	ch <- prometheus.MustNewConstMetric(freeCPUsDesc, prometheus.GaugeValue, float64(free))
	ch <- prometheus.MustNewConstMetric(totalCPUsDesc, prometheus.GaugeValue, float64(total))
}
