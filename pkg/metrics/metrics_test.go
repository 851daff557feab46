// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(domOps.WithLabelValues(DomOpMove))
	AddDomOps(DomOpMove, 3)
	AddDomOps(DomOpMove, 0)
	AddDomOps(DomOpMove, -2)
	require.Equal(t, before+3, testutil.ToFloat64(domOps.WithLabelValues(DomOpMove)))

	okBefore := testutil.ToFloat64(renders.WithLabelValues(RenderOk))
	IncRender(RenderOk)
	require.Equal(t, okBefore+1, testutil.ToFloat64(renders.WithLabelValues(RenderOk)))

	SetPendingRemovals(4)
	require.Equal(t, float64(4), testutil.ToFloat64(pendingRemovals))
	SetPendingRemovals(0)

	clientsBefore := testutil.ToFloat64(liveClients)
	AddLiveClients(1)
	AddLiveClients(-1)
	require.Equal(t, clientsBefore, testutil.ToFloat64(liveClients))

	IncStorageOp("memory", "save")
	require.GreaterOrEqual(t, testutil.ToFloat64(storageOps.WithLabelValues("memory", "save")), float64(1))
}
