package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEconomyRequestTokenImmediateStarvationGuard(t *testing.T) {
	e := NewEconomy(1, 0)

	require.True(t, e.RequestTokenImmediate(CPUToken, "a", 1))
	// No unused tokens left, and nothing queued ahead makes the pool
	// still refuse (unused <= len(requestList) with both at 0).
	require.False(t, e.RequestTokenImmediate(CPUToken, "b", 1))
}

func TestEconomyRequestTokenImmediateRespectsCutoff(t *testing.T) {
	e := NewEconomy(4, 0)
	e.SetPriorityCutoff(CPUToken, 5)
	require.False(t, e.RequestTokenImmediate(CPUToken, "a", 10))
	require.True(t, e.RequestTokenImmediate(CPUToken, "a", 5))
}

func TestEconomyDelayOKGrantsThroughResolveHead(t *testing.T) {
	var granted []TokenKind
	e := NewEconomy(1, 0)
	e.onGrantable = func(kind TokenKind) { granted = append(granted, kind) }

	e.RequestTokenDelayOK(CPUToken, "a", 1)
	require.Equal(t, []TokenKind{CPUToken}, granted)

	req, popped, ok := e.ResolveHeadOfRequestList(CPUToken)
	require.True(t, popped)
	require.True(t, ok)
	require.Equal(t, WaypointID("a"), req.Requester)
}

func TestEconomyFreezesRequestsAboveCutoff(t *testing.T) {
	e := NewEconomy(1, 0)
	e.SetPriorityCutoff(CPUToken, 5)
	e.RequestTokenDelayOK(CPUToken, "a", 10)

	_, popped, granted := e.ResolveHeadOfRequestList(CPUToken)
	require.True(t, popped)
	require.False(t, granted)
	require.Len(t, e.pool(CPUToken).frozenOut, 1)
}

func TestEconomySetPriorityCutoffThawsFrozenRequests(t *testing.T) {
	var granted []MessageKind
	e := NewEconomy(1, 0)
	e.onGrantable = func(kind TokenKind) { granted = append(granted, tokenRequestKindOf(kind)) }

	e.SetPriorityCutoff(CPUToken, 5)
	e.RequestTokenDelayOK(CPUToken, "a", 10)
	_, _, _ = e.ResolveHeadOfRequestList(CPUToken) // freezes it

	granted = nil
	e.SetPriorityCutoff(CPUToken, 20)
	require.Empty(t, e.pool(CPUToken).frozenOut)
	require.Equal(t, []MessageKind{CPUTokenRequest}, granted)
}

func TestEconomyGrantDelayTokensRespectsDeadline(t *testing.T) {
	e := NewEconomy(1, 0)
	e.RequestTokenDelayMillis(CPUToken, "a", 1, 1000, 500)

	e.GrantDelayTokens(CPUToken, 1499)
	require.Empty(t, e.pool(CPUToken).requestList)

	e.GrantDelayTokens(CPUToken, 1500)
	require.Len(t, e.pool(CPUToken).requestList, 1)
}

func TestEconomyReclaimWindow(t *testing.T) {
	e := NewEconomy(1, 0)
	require.True(t, e.RequestTokenImmediate(CPUToken, "a", 1))

	e.ArmReclaim(CPUToken)
	e.ReclaimToken()
	e.SettleReclaim()
	require.Zero(t, e.pool(CPUToken).unused, "reclaimed token should not have been returned to the pool")

	e.ArmReclaim(CPUToken)
	e.SettleReclaim()
	require.Equal(t, 1, e.pool(CPUToken).unused, "token not reclaimed should be given back")
}

func TestEconomyReclaimOutsideWindowPanics(t *testing.T) {
	e := NewEconomy(1, 0)
	require.Panics(t, func() { e.ReclaimToken() })
}
