// This file contains the merge stage, the default source of a cluster cursor,
// which merges the results of the remote cursors into a single stream.

package clustercursor

import (
	"context"
	"sync"
	"time"

	"github.com/emirpasic/gods/trees/binaryheap"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentKills caps the kill requests in flight at once.
const maxConcurrentKills = 8

// mergeStage pulls results from the remote cursors.
//
// With a sort pattern it always returns the least buffered head among the
// remotes, and never before every live remote has a buffered head: a remote
// with an empty buffer is refilled first, as its next result may be the least.
// Without a sort pattern results are returned from whichever remote has one
// buffered, in round-robin order; the order is then unspecified.
//
// The merge stage is driven by a single consumer. Kill may be called while a
// getMore is in flight; the batch received afterwards is discarded.
type mergeStage struct {
	transport Transport
	ns        Namespace

	// cmp is nil if there is no sort pattern.
	cmp *SortKeyComparator

	tailableMode     TailableMode
	allowPartial     bool
	readPref         ReadPreference
	batchSize        int64
	awaitDataTimeout time.Duration

	// mu guards the fields below. It is not held during network round-trips.
	mu sync.Mutex

	remotes []*remoteCursorState

	// heads holds the remotes having buffered results, ordered by their heads.
	// Only used with a sort pattern.
	heads *binaryheap.Heap

	// nextRemote is where the round-robin scan starts when there is no sort.
	nextRemote int

	killed         bool
	partialResults bool
}

func newMergeStage(params *MergeParameters, transport Transport) (*mergeStage, error) {
	m := &mergeStage{
		transport:    transport,
		ns:           params.Namespace,
		tailableMode: params.TailableMode,
		allowPartial: params.AllowPartialResults,
		readPref:     params.readPreference(),
		batchSize:    params.getMoreBatchSize(),
	}

	if len(params.Sort) > 0 {
		cmp, err := NewSortKeyComparator(params.Sort, params.CompareWholeSortKey)
		if err != nil {
			return nil, err
		}
		m.cmp = cmp
		m.heads = binaryheap.NewWith(m.compareHeads)
	}

	m.remotes = make([]*remoteCursorState, len(params.Remotes))
	for i, rc := range params.Remotes {
		r := newRemoteCursorState(i, rc, m.cmp)
		m.remotes[i] = r
		if m.heads != nil && r.hasBufferedResult() {
			m.heads.Push(r)
		}
	}
	return m, nil
}

// compareHeads orders remotes by their buffered heads.
// Ties are broken by the order of the remotes.
func (m *mergeStage) compareHeads(a, b interface{}) int {
	ra, rb := a.(*remoteCursorState), b.(*remoteCursorState)
	if c := m.cmp.Compare(ra.peek().key, rb.peek().key); c != 0 {
		return c
	}
	return ra.index - rb.index
}

func (m *mergeStage) Next(ctx context.Context) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.killed {
		return Result{}, invalidStatef("merge of %s has been killed", m.ns)
	}
	if m.cmp != nil {
		return m.nextSorted(ctx)
	}
	return m.nextUnsorted(ctx)
}

func (m *mergeStage) nextSorted(ctx context.Context) (Result, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		pending, err := m.fillEmptyBuffers(ctx)
		if err != nil {
			return Result{}, err
		}
		if m.killed {
			return Result{}, invalidStatef("merge of %s was killed while fetching", m.ns)
		}

		if pending == 0 {
			v, ok := m.heads.Pop()
			if !ok {
				return EOF(), nil
			}
			r := v.(*remoteCursorState)
			res, err := r.nextBufferedResult()
			if err != nil {
				return Result{}, err
			}
			if r.hasBufferedResult() {
				m.heads.Push(r)
			}
			return DocResult(res.doc), nil
		}

		// Some live remote has nothing buffered: its next result may be the least.
		if m.tailableMode != Normal {
			return NotYetAvailable(), nil
		}
	}
}

func (m *mergeStage) nextUnsorted(ctx context.Context) (Result, error) {
	for fetched := false; ; fetched = true {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		if r := m.nextReadyRemote(); r != nil {
			res, err := r.nextBufferedResult()
			if err != nil {
				return Result{}, err
			}
			return DocResult(res.doc), nil
		}
		if m.allExhausted() {
			return EOF(), nil
		}
		if fetched && m.tailableMode != Normal {
			return NotYetAvailable(), nil
		}

		if _, err := m.fillEmptyBuffers(ctx); err != nil {
			return Result{}, err
		}
		if m.killed {
			return Result{}, invalidStatef("merge of %s was killed while fetching", m.ns)
		}
	}
}

// nextReadyRemote returns the next remote in round-robin order that has a
// buffered result, nil if there is none.
func (m *mergeStage) nextReadyRemote() *remoteCursorState {
	n := len(m.remotes)
	for i := 0; i < n; i++ {
		r := m.remotes[(m.nextRemote+i)%n]
		if r.hasBufferedResult() {
			m.nextRemote = (r.index + 1) % n
			return r
		}
	}
	return nil
}

func (m *mergeStage) allExhausted() bool {
	for _, r := range m.remotes {
		if r.hasBufferedResult() || !r.isExhausted() {
			return false
		}
	}
	return true
}

// fillEmptyBuffers requests a batch from every live remote whose buffer is
// empty. Returns the number of live remotes that still have nothing buffered.
// m.mu must be held.
func (m *mergeStage) fillEmptyBuffers(ctx context.Context) (pending int, err error) {
	for _, r := range m.remotes {
		if r.isExhausted() || r.hasBufferedResult() {
			continue
		}
		if err := m.requestMore(ctx, r); err != nil {
			return 0, err
		}
		if m.killed {
			return 0, nil
		}
		if !r.isExhausted() && !r.hasBufferedResult() {
			pending++
		}
	}
	return pending, nil
}

// requestMore fetches the next batch of r. m.mu must be held; it is released
// during the round-trip.
func (m *mergeStage) requestMore(ctx context.Context, r *remoteCursorState) error {
	req := GetMoreRequest{
		ShardID:        r.shardID,
		Host:           r.host,
		Namespace:      m.ns,
		CursorID:       r.cursorID,
		BatchSize:      m.batchSize,
		ReadPreference: m.readPref,
	}
	if m.tailableMode == TailableAwaitData {
		req.MaxAwaitTime = m.awaitDataTimeout
	}

	m.mu.Unlock()
	resp, err := m.transport.GetMore(ctx, req)
	m.mu.Lock()

	if m.killed || r.killed {
		return nil
	}

	if err != nil {
		getMoreCount.WithLabelValues(outcomeError).Inc()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rerr := r.remoteError(err)
		if !m.allowPartial {
			return rerr
		}
		r.markPartialFailure()
		m.partialResults = true
		partialResultsCount.Inc()
		zerolog.Ctx(ctx).Debug().Err(rerr).Str("namespace", m.ns.String()).
			Msg("dropping failed remote cursor, partial results allowed")
		return nil
	}

	getMoreCount.WithLabelValues(outcomeOK).Inc()
	hadBuffered := r.hasBufferedResult()
	r.addBatch(resp, m.cmp)
	if m.heads != nil && !hadBuffered && r.hasBufferedResult() {
		m.heads.Push(r)
	}
	return nil
}

func (m *mergeStage) Kill(ctx context.Context) {
	m.mu.Lock()
	if m.killed {
		m.mu.Unlock()
		return
	}
	m.killed = true

	var reqs []KillRequest
	for _, r := range m.remotes {
		if r.needsKill() {
			r.killed = true
			reqs = append(reqs, KillRequest{
				ShardID:   r.shardID,
				Host:      r.host,
				Namespace: m.ns,
				CursorID:  r.cursorID,
			})
		}
		r.buffer = nil
	}
	if m.heads != nil {
		m.heads.Clear()
	}
	m.mu.Unlock()

	killRemoteCursors(ctx, m.transport, reqs)
}

func (m *mergeStage) RemotesExhausted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.remotes {
		if !r.isExhausted() && !r.killed {
			return false
		}
	}
	return true
}

func (m *mergeStage) SetAwaitDataTimeout(d time.Duration) error {
	if m.tailableMode != TailableAwaitData {
		return invalidStatef("await data timeout requires a tailable, awaitData cursor, got %s", m.tailableMode)
	}
	m.mu.Lock()
	m.awaitDataTimeout = d
	m.mu.Unlock()
	return nil
}

func (m *mergeStage) PartialResultsReturned() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.partialResults
}

// killRemoteCursors sends the kill requests concurrently and waits for them.
// Failures are logged and never retried: a leaked remote cursor is reaped by
// its shard's cursor timeout.
func killRemoteCursors(ctx context.Context, transport Transport, reqs []KillRequest) {
	if len(reqs) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(maxConcurrentKills)
	for _, req := range reqs {
		req := req
		g.Go(func() error {
			if err := transport.KillCursor(ctx, req); err != nil {
				killCount.WithLabelValues(outcomeError).Inc()
				zerolog.Ctx(ctx).Warn().Err(err).
					Str("shard", string(req.ShardID)).
					Str("host", string(req.Host)).
					Int64("cursorId", req.CursorID).
					Msg("failed to kill remote cursor")
				return nil
			}
			killCount.WithLabelValues(outcomeOK).Inc()
			return nil
		})
	}
	_ = g.Wait()
}
