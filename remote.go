// This file contains the state kept for each remote cursor.

package clustercursor

import (
	"github.com/globalsign/mgo/bson"
)

// bufferedResult is a fetched but not yet consumed result of a remote.
type bufferedResult struct {
	doc bson.D

	// key is the extracted sort key, nil when there is no sort.
	key []interface{}
}

// remoteCursorState tracks one remote cursor. It is owned exclusively by the
// merge stage reading from it.
type remoteCursorState struct {
	// index of the remote in MergeParameters.Remotes, breaks sort key ties.
	index int

	shardID  ShardID
	host     HostAndPort
	cursorID int64

	// buffer holds the fetched but not yet consumed results, in remote order.
	buffer []bufferedResult

	// exhausted is set once the remote reports cursor id 0, or when it failed
	// and partial results are allowed.
	exhausted bool

	// partialFailure tells that the remote was dropped due to an error.
	partialFailure bool

	// killed is set once a kill request was issued for the remote.
	killed bool
}

func newRemoteCursorState(index int, rc RemoteCursor, cmp *SortKeyComparator) *remoteCursorState {
	r := &remoteCursorState{
		index:    index,
		shardID:  rc.ShardID,
		host:     rc.HostAndPort,
		cursorID: rc.Response.CursorID,
	}
	r.addBatch(rc.Response, cmp)
	return r
}

func (r *remoteCursorState) hasBufferedResult() bool {
	return len(r.buffer) > 0
}

// peek returns the head of the buffer. The buffer must not be empty.
func (r *remoteCursorState) peek() bufferedResult {
	return r.buffer[0]
}

// nextBufferedResult pops the head of the buffer.
func (r *remoteCursorState) nextBufferedResult() (bufferedResult, error) {
	if len(r.buffer) == 0 {
		return bufferedResult{}, logicErrorf("no buffered result on remote cursor %d of shard %s", r.cursorID, r.shardID)
	}
	res := r.buffer[0]
	r.buffer[0] = bufferedResult{}
	r.buffer = r.buffer[1:]
	return res, nil
}

func (r *remoteCursorState) isExhausted() bool {
	return r.exhausted
}

// needsKill tells if the remote cursor may still be alive on its shard.
func (r *remoteCursorState) needsKill() bool {
	return !r.exhausted && !r.killed && r.cursorID != 0
}

// addBatch appends the results of resp to the buffer and updates the
// exhausted flag.
func (r *remoteCursorState) addBatch(resp CursorResponse, cmp *SortKeyComparator) {
	for _, doc := range resp.Batch {
		res := bufferedResult{doc: doc}
		if cmp != nil {
			res.key = cmp.ExtractKey(doc)
		}
		r.buffer = append(r.buffer, res)
	}
	r.cursorID = resp.CursorID
	if resp.CursorID == 0 {
		r.exhausted = true
	}
}

// markPartialFailure drops the remote: it contributes no more results.
func (r *remoteCursorState) markPartialFailure() {
	r.buffer = nil
	r.cursorID = 0
	r.exhausted = true
	r.partialFailure = true
}

func (r *remoteCursorState) remoteError(err error) *RemoteError {
	return &RemoteError{error: err, ShardID: r.shardID, Host: r.host, CursorID: r.cursorID}
}

// killRequestsFor returns kill requests for the remotes whose cursor is alive.
func killRequestsFor(ns Namespace, remotes []RemoteCursor) []KillRequest {
	var reqs []KillRequest
	for _, rc := range remotes {
		if rc.Response.CursorID != 0 {
			reqs = append(reqs, KillRequest{
				ShardID:   rc.ShardID,
				Host:      rc.HostAndPort,
				Namespace: ns,
				CursorID:  rc.Response.CursorID,
			})
		}
	}
	return reqs
}
