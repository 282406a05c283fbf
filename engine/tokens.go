package engine

import "container/heap"

// TokenKind distinguishes the two token pools the economy tracks.
type TokenKind int

const (
	CPUToken TokenKind = iota
	DiskToken
)

func (k TokenKind) String() string {
	if k == DiskToken {
		return "disk"
	}
	return "cpu"
}

// TokenRequest is a pending grant, grounded on ExecEngineImp's
// TokenRequest.h. Tokens themselves are fungible counters in this port, so
// unlike the original's move-only Token handle, only the request side
// needs a distinct type.
type TokenRequest struct {
	Requester WaypointID
	Priority  int
}

// delayRequest additionally carries the millisecond deadline a
// RequestTokenDelayMillis call is scheduled to fire at, grounded on
// DelayTokenRequest.
type delayRequest struct {
	TokenRequest
	insertedMillis int64
	expectedMillis int64
	index          int
}

// delayHeap orders delayRequest entries by soonest expectedMillis first,
// tie-broken by insertion order, grounded on DelayTokenRequestComparator.
// A container/heap.Interface replaces the original's priority_queue plus
// its const_cast-based destructive pop, per the recommendation to avoid
// that pattern in a Go port.
type delayHeap []*delayRequest

func (h delayHeap) Len() int { return len(h) }
func (h delayHeap) Less(i, j int) bool {
	if h[i].expectedMillis != h[j].expectedMillis {
		return h[i].expectedMillis < h[j].expectedMillis
	}
	return h[i].insertedMillis < h[j].insertedMillis
}
func (h delayHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *delayHeap) Push(x interface{}) {
	r := x.(*delayRequest)
	r.index = len(*h)
	*h = append(*h, r)
}
func (h *delayHeap) Pop() interface{} {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return r
}

// tokenPool is one of the CPU or disk token economies, grounded on
// ExecEngineImp's unusedCPUTokens/requestListCPU/frozenOutFromCPU/
// delayRequestListCPU quadruple (and its disk counterpart).
type tokenPool struct {
	unused int

	requestList []TokenRequest
	frozenOut   []TokenRequest
	delayed     delayHeap

	priorityCutoff int
}

func newTokenPool(initialTokens int) *tokenPool {
	return &tokenPool{unused: initialTokens, priorityCutoff: 999}
}

// Economy owns both token pools and the single-slot reclaim window that
// HoppingData delivery arms around a waypoint's DoneProducing call,
// grounded on ExecEngineImp's holdMe/holdMeIsValid pair.
type Economy struct {
	pools [2]*tokenPool

	// onGrantable is invoked whenever a pool transitions from
	// possibly-unable-to-grant to possibly-able-to-grant, so the
	// dispatcher can enqueue a token-request message to actually resolve
	// the head of the pool's requestList. It is nil until the dispatcher
	// wires itself in.
	onGrantable func(kind TokenKind)

	reclaimKind    TokenKind
	reclaimArmed   bool
	reclaimGranted bool
}

// NewEconomy pre-loads cpuTokens CPU tokens and diskTokens disk tokens,
// grounded on ExecEngineImp's constructor preloading NUM_EXEC_ENGINE_THREADS
// CPU tokens and NUM_DISK_TOKENS disk tokens.
func NewEconomy(cpuTokens, diskTokens int) *Economy {
	return &Economy{pools: [2]*tokenPool{
		CPUToken:  newTokenPool(cpuTokens),
		DiskToken: newTokenPool(diskTokens),
	}}
}

func (e *Economy) pool(kind TokenKind) *tokenPool { return e.pools[kind] }

// RequestTokenImmediate grants a token synchronously if the requester's
// priority clears the cutoff and granting it would not starve the
// requests already queued ahead of it, grounded on
// ExecEngineImp::RequestTokenImmediate.
func (e *Economy) RequestTokenImmediate(kind TokenKind, requester WaypointID, priority int) bool {
	p := e.pool(kind)
	if priority > p.priorityCutoff {
		return false
	}
	if p.unused <= len(p.requestList) {
		return false
	}
	p.unused--
	return true
}

// RequestTokenDelayOK enqueues requester on the pool's FIFO and, if supply
// looks sufficient, asks the dispatcher to resolve the head of the list on
// its next turn, grounded on ExecEngineImp::RequestTokenDelayOK.
func (e *Economy) RequestTokenDelayOK(kind TokenKind, requester WaypointID, priority int) {
	p := e.pool(kind)
	p.requestList = append(p.requestList, TokenRequest{Requester: requester, Priority: priority})
	if p.unused >= len(p.requestList) {
		e.signalGrantable(kind)
	}
}

// RequestTokenDelayMillis schedules requester for a delay-OK request once
// delayMillis has elapsed, grounded on
// ExecEngineImp::RequestTokenDelayMillis.
func (e *Economy) RequestTokenDelayMillis(kind TokenKind, requester WaypointID, priority int, nowMillis, delayMillis int64) {
	p := e.pool(kind)
	heap.Push(&p.delayed, &delayRequest{
		TokenRequest:   TokenRequest{Requester: requester, Priority: priority},
		insertedMillis: nowMillis,
		expectedMillis: nowMillis + delayMillis,
	})
}

// GrantDelayTokens converts every delayed request whose deadline has
// elapsed into a delay-OK request, grounded on
// ExecEngineImp::GrantDelayTokens.
func (e *Economy) GrantDelayTokens(kind TokenKind, nowMillis int64) {
	p := e.pool(kind)
	for len(p.delayed) > 0 && p.delayed[0].expectedMillis <= nowMillis {
		r := heap.Pop(&p.delayed).(*delayRequest)
		e.RequestTokenDelayOK(kind, r.Requester, r.Priority)
	}
}

// ResolveHeadOfRequestList pops the request list's head and either freezes
// it (priority above cutoff) or grants it; if no unused token is left, the
// popped request is neither frozen nor granted and a warning is logged. It
// returns the request, whether a request was popped, and whether a grant
// happened. Called by the dispatcher in response to a
// CPUTokenRequest/DiskTokenRequest message, grounded on
// ExecEngineImp::DeliverSomeMessage's token-request case.
func (e *Economy) ResolveHeadOfRequestList(kind TokenKind) (TokenRequest, bool, bool) {
	p := e.pool(kind)
	if len(p.requestList) == 0 {
		return TokenRequest{}, false, false
	}
	req := p.requestList[0]
	p.requestList = p.requestList[1:]

	if req.Priority > p.priorityCutoff {
		p.frozenOut = append(p.frozenOut, req)
		return req, true, false
	}
	if p.unused == 0 {
		log.WithField("kind", kind).Warn("token request resolved with no unused tokens available")
		return req, true, false
	}
	p.unused--
	return req, true, true
}

// GiveBackToken returns a token to the pool and, if the returned token
// covers a queued request that no earlier signal covered (unused <=
// len(requestList)), signals the dispatcher to resolve its head, grounded
// on ExecEngineImp::GiveBackToken.
func (e *Economy) GiveBackToken(kind TokenKind) {
	p := e.pool(kind)
	p.unused++
	if p.unused <= len(p.requestList) {
		e.signalGrantable(kind)
	}
}

func (e *Economy) signalGrantable(kind TokenKind) {
	if e.onGrantable != nil {
		e.onGrantable(kind)
	}
}

// SetPriorityCutoff updates the cutoff and thaws every frozen request that
// now clears it, grounded on ExecEngineImp::SetPriorityCutoff. Draining the
// dispatcher afterward is the dispatcher's responsibility, not the
// economy's.
func (e *Economy) SetPriorityCutoff(kind TokenKind, cutoff int) {
	p := e.pool(kind)
	p.priorityCutoff = cutoff

	remaining := p.frozenOut[:0]
	for _, req := range p.frozenOut {
		if req.Priority <= cutoff {
			e.RequestTokenDelayOK(kind, req.Requester, req.Priority)
		} else {
			remaining = append(remaining, req)
		}
	}
	p.frozenOut = remaining
}

// GetPriorityCutoff returns the pool's current cutoff.
func (e *Economy) GetPriorityCutoff(kind TokenKind) int {
	return e.pool(kind).priorityCutoff
}

// ArmReclaim opens the reclaim window for one DoneProducing call, grounded
// on the holdMe/holdMeIsValid swap in ExecEngineImp::HoppingDataMsgReady.
func (e *Economy) ArmReclaim(kind TokenKind) {
	e.reclaimKind = kind
	e.reclaimArmed = true
	e.reclaimGranted = false
}

// ReclaimToken claims the token armed by ArmReclaim for reuse instead of
// letting it return to the general pool. Calling it outside an armed
// window is a programmer error and panics, grounded on
// ExecEngineImp::ReclaimToken's FATALIF(!holdMeIsValid).
func (e *Economy) ReclaimToken() {
	if !e.reclaimArmed {
		panic("engine: ReclaimToken called outside a done_producing reclaim window")
	}
	e.reclaimGranted = true
}

// SettleReclaim closes the reclaim window opened by ArmReclaim. If nothing
// claimed the token via ReclaimToken, it is given back to the pool.
func (e *Economy) SettleReclaim() {
	if !e.reclaimArmed {
		return
	}
	kind := e.reclaimKind
	claimed := e.reclaimGranted
	e.reclaimArmed = false
	e.reclaimGranted = false
	if !claimed {
		e.GiveBackToken(kind)
	}
}
