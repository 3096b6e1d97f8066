package proxypool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/credcheck/pkg/model"
)

func TestAssignRoundRobinsAcrossProxies(t *testing.T) {
	p := NewPool(map[string]string{"p1": "http://p1", "p2": "http://p2"})
	seen := map[string]int{}
	for i := 0; i < 20; i++ {
		a := p.Assign("task")
		require.False(t, a.Direct)
		seen[a.ProxyID]++
	}
	require.InDelta(t, 10, seen["p1"], 2)
	require.InDelta(t, 10, seen["p2"], 2)
}

func TestUnhealthyAfterConsecutiveTransientFailures(t *testing.T) {
	p := NewPool(map[string]string{"p1": "http://p1"})

	for i := 0; i < maxConsecutiveTransient; i++ {
		p.Report("p1", model.ProxyTransientFail)
	}

	a := p.Assign("task")
	require.True(t, a.Direct)
}

func TestUnhealthyImmediatelyOnPermanentFailure(t *testing.T) {
	p := NewPool(map[string]string{"p1": "http://p1"})
	p.Report("p1", model.ProxyPermanentFail)

	a := p.Assign("task")
	require.True(t, a.Direct)
}

func TestNoProxiesConfiguredFallsBackDirect(t *testing.T) {
	p := NewPool(nil)
	a := p.Assign("task")
	require.True(t, a.Direct)
}

func TestRecoveryAfterReportOK(t *testing.T) {
	p := NewPool(map[string]string{"p1": "http://p1"})
	p.Report("p1", model.ProxyPermanentFail)
	require.True(t, p.Assign("task").Direct)

	p.Report("p1", model.ProxyOK)
	a := p.Assign("task")
	require.Equal(t, "p1", a.ProxyID)
}
