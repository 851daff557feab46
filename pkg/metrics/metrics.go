// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the prometheus collectors for the render pipeline.
// Collectors register with the default registry; pkg/web exposes them at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	patchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pickle_patch_duration_seconds",
		Help:    "Time spent in one reconciler patch pass",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
	})

	domOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pickle_dom_ops_total",
		Help: "Live DOM operations performed by the reconciler",
	}, []string{"op"})

	pendingRemovals = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pickle_pending_removals",
		Help: "Asynchronous removals whose before-remove hook has not finished",
	})

	removalErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pickle_removal_errors_total",
		Help: "Before-remove hooks that returned an error or were cancelled",
	})

	renders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pickle_renders_total",
		Help: "Render passes by outcome (ok, superseded, error)",
	}, []string{"outcome"})

	updates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pickle_updates_total",
		Help: "Outermost component updates",
	})

	snapshots = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pickle_snapshots_total",
		Help: "Snapshots pushed to time-travel history",
	})

	storageOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pickle_storage_ops_total",
		Help: "Persistence operations by backend and op",
	}, []string{"backend", "op"})

	liveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pickle_live_clients",
		Help: "Connected live view websocket clients",
	})
)

const (
	DomOpCreate = "create"
	DomOpMove   = "move"
	DomOpRemove = "remove"
	DomOpText   = "text"
	DomOpAttr   = "attr"
)

const (
	RenderOk         = "ok"
	RenderSuperseded = "superseded"
	RenderError      = "error"
)

func ObservePatch(dur time.Duration) {
	patchDuration.Observe(dur.Seconds())
}

func AddDomOps(op string, count int) {
	if count <= 0 {
		return
	}
	domOps.WithLabelValues(op).Add(float64(count))
}

func SetPendingRemovals(n int) {
	pendingRemovals.Set(float64(n))
}

func IncRemovalErrors() {
	removalErrors.Inc()
}

func IncRender(outcome string) {
	renders.WithLabelValues(outcome).Inc()
}

func IncUpdates() {
	updates.Inc()
}

func IncSnapshots() {
	snapshots.Inc()
}

func IncStorageOp(backend string, op string) {
	storageOps.WithLabelValues(backend, op).Inc()
}

func AddLiveClients(delta int) {
	liveClients.Add(float64(delta))
}
