package clustercursor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/globalsign/mgo/bson"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// Started by mgo at package initialization.
		goleak.IgnoreTopFunction("github.com/globalsign/mgo.newcoarseTimeProvider.func1"),
		// mgo keeps pinging the servers the live tests dialed.
		goleak.IgnoreAnyFunction("github.com/globalsign/mgo.(*mongoServer).pinger"),
		goleak.IgnoreAnyFunction("github.com/globalsign/mgo.(*mongoCluster).syncServersLoop"),
		goleak.IgnoreAnyFunction("github.com/globalsign/mgo.(*mongoSocket).readLoop"),
	)
}

var errShardDown = errors.New("intentional testing error: shard down")

// fakeCursor is a remote cursor served by fakeTransport.
type fakeCursor struct {
	// batches are returned by subsequent getMores.
	batches [][]bson.D

	// err is returned once batches are consumed.
	err error

	// tailing cursors return empty batches instead of ending.
	tailing bool
}

// fakeTransport is an in-memory Transport recording the requests it gets.
type fakeTransport struct {
	mu sync.Mutex

	cursors map[int64]*fakeCursor

	// opens maps shards to the responses of Open.
	opens   map[ShardID]CursorResponse
	openErr map[ShardID]error

	killErr error

	getMores []GetMoreRequest
	kills    []KillRequest

	// onGetMore, if set, is called before serving a getMore.
	onGetMore func(req GetMoreRequest)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		cursors: map[int64]*fakeCursor{},
		opens:   map[ShardID]CursorResponse{},
		openErr: map[ShardID]error{},
	}
}

// remote registers a remote cursor with the given first batch; more holds the
// batches of subsequent getMores. Without more, the remote starts exhausted.
func (ft *fakeTransport) remote(shard string, id int64, first []bson.D, more ...[]bson.D) RemoteCursor {
	cursorID := int64(0)
	if len(more) > 0 {
		cursorID = id
		ft.cursors[id] = &fakeCursor{batches: more}
	}
	return remoteCursor(shard, cursorID, first)
}

// failingRemote registers a remote cursor whose getMores fail once more is
// consumed.
func (ft *fakeTransport) failingRemote(shard string, id int64, first []bson.D, more ...[]bson.D) RemoteCursor {
	ft.cursors[id] = &fakeCursor{batches: more, err: errShardDown}
	return remoteCursor(shard, id, first)
}

// tailingRemote registers a remote cursor that never ends.
func (ft *fakeTransport) tailingRemote(shard string, id int64, first []bson.D, more ...[]bson.D) RemoteCursor {
	ft.cursors[id] = &fakeCursor{batches: more, tailing: true}
	return remoteCursor(shard, id, first)
}

func remoteCursor(shard string, id int64, first []bson.D) RemoteCursor {
	return RemoteCursor{
		ShardID:     ShardID(shard),
		HostAndPort: HostAndPort(shard + ":27018"),
		Response:    CursorResponse{Namespace: testNS, CursorID: id, Batch: first},
	}
}

func (ft *fakeTransport) Open(ctx context.Context, req OpenRequest) (CursorResponse, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if err := ft.openErr[req.ShardID]; err != nil {
		return CursorResponse{}, err
	}
	return ft.opens[req.ShardID], nil
}

func (ft *fakeTransport) GetMore(ctx context.Context, req GetMoreRequest) (CursorResponse, error) {
	if ft.onGetMore != nil {
		ft.onGetMore(req)
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.getMores = append(ft.getMores, req)

	c, ok := ft.cursors[req.CursorID]
	if !ok {
		return CursorResponse{}, errors.New("cursor not found")
	}
	resp := CursorResponse{Namespace: req.Namespace, CursorID: req.CursorID}
	if len(c.batches) > 0 {
		resp.Batch = c.batches[0]
		c.batches = c.batches[1:]
		if len(c.batches) == 0 && c.err == nil && !c.tailing {
			resp.CursorID = 0
		}
		return resp, nil
	}
	if c.err != nil {
		return CursorResponse{}, c.err
	}
	if !c.tailing {
		resp.CursorID = 0
	}
	return resp, nil
}

func (ft *fakeTransport) KillCursor(ctx context.Context, req KillRequest) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.kills = append(ft.kills, req)
	return ft.killErr
}

func (ft *fakeTransport) numGetMores() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return len(ft.getMores)
}

// killedCursorIDs returns the cursor ids kills were sent for, in any order.
func (ft *fakeTransport) killedCursorIDs() map[int64]int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ids := map[int64]int{}
	for _, k := range ft.kills {
		ids[k.CursorID]++
	}
	return ids
}

var testNS = Namespace{DB: "test", Collection: "users"}

// adoc returns the document {a: a}.
func adoc(a int) bson.D {
	return bson.D{{Name: "a", Value: a}}
}

// skdoc returns the document {a: a, $sortKey: {"": a}}, as a shard sorting
// on {a: 1} returns it.
func skdoc(a int) bson.D {
	return bson.D{{Name: "a", Value: a}, {Name: SortKeyField, Value: bson.D{{Name: "", Value: a}}}}
}

func skdocs(as ...int) []bson.D {
	docs := make([]bson.D, len(as))
	for i, a := range as {
		docs[i] = skdoc(a)
	}
	return docs
}

func adocs(as ...int) []bson.D {
	docs := make([]bson.D, len(as))
	for i, a := range as {
		docs[i] = adoc(a)
	}
	return docs
}

// drain pulls results until end-of-stream or not-yet-available, and returns
// the documents, the final result and the error if any.
func drain(ctx context.Context, s Source) ([]bson.D, Result, error) {
	var docs []bson.D
	for {
		res, err := s.Next(ctx)
		if err != nil || res.Status != StatusDocument {
			return docs, res, err
		}
		docs = append(docs, res.Doc)
	}
}

// aValues returns the "a" field of the documents.
func aValues(docs []bson.D) []int {
	as := make([]int, len(docs))
	for i, d := range docs {
		v, _ := lookupField(d, "a")
		as[i] = v.(int)
	}
	return as
}
