package clustercursor

import (
	"context"
	"testing"

	"github.com/globalsign/mgo/bson"
	"github.com/icza/mighty"
)

func TestSkipAndLimit(t *testing.T) {
	eq, deq := mighty.Eq(t), mighty.Deq(t)
	ctx := context.Background()

	ft := newFakeTransport()
	s, err := BuildStages(&MergeParameters{
		Namespace: testNS,
		Sort:      SortPattern("a"),
		Skip:      Int64(1),
		Limit:     Int64(1),
		Remotes: []RemoteCursor{
			ft.remote("A", 1, skdocs(1, 3)),
			ft.remote("B", 2, skdocs(2)),
		},
	}, ft)
	eq(nil, err)

	docs, last, err := drain(ctx, s)
	eq(nil, err)
	eq(StatusEndOfStream, last.Status)
	deq([]bson.D{adoc(2)}, docs)
}

func TestSkipPastEnd(t *testing.T) {
	eq := mighty.Eq(t)
	ctx := context.Background()

	ft := newFakeTransport()
	s, err := BuildStages(&MergeParameters{
		Namespace: testNS,
		Skip:      Int64(10),
		Remotes: []RemoteCursor{
			ft.remote("A", 1, adocs(1, 2), adocs(3)),
			ft.remote("B", 2, adocs(4)),
		},
	}, ft)
	eq(nil, err)

	docs, last, err := drain(ctx, s)
	eq(nil, err)
	eq(0, len(docs))
	eq(StatusEndOfStream, last.Status)
	eq(true, s.RemotesExhausted())
}

func TestSkipPassesNotYetAvailable(t *testing.T) {
	eq, deq := mighty.Eq(t), mighty.Deq(t)
	ctx := context.Background()

	ft := newFakeTransport()
	s, err := BuildStages(&MergeParameters{
		Namespace:    testNS,
		Skip:         Int64(2),
		TailableMode: Tailable,
		Remotes: []RemoteCursor{
			ft.tailingRemote("A", 1, adocs(1), nil, adocs(2, 3)),
		},
	}, ft)
	eq(nil, err)

	res, err := s.Next(ctx)
	eq(nil, err)
	eq(StatusNotYetAvailable, res.Status)

	// The skip count carries over.
	res, err = s.Next(ctx)
	eq(nil, err)
	deq(adoc(3), res.Doc)

	s.Kill(ctx)
}

func TestLimitStopsFetching(t *testing.T) {
	eq, deq := mighty.Eq(t), mighty.Deq(t)
	ctx := context.Background()

	ft := newFakeTransport()
	s, err := BuildStages(&MergeParameters{
		Namespace: testNS,
		Limit:     Int64(2),
		Remotes: []RemoteCursor{
			ft.remote("A", 1, adocs(1, 2), adocs(3)),
			ft.remote("B", 2, nil, adocs(4)),
		},
	}, ft)
	eq(nil, err)

	res, err := s.Next(ctx)
	eq(nil, err)
	deq(adoc(1), res.Doc)
	eq(false, s.RemotesExhausted())

	// A holds 2 buffered results, B is not asked before A runs dry.
	res, err = s.Next(ctx)
	eq(nil, err)
	deq(adoc(2), res.Doc)
	eq(true, s.RemotesExhausted())
	deq(map[int64]int{1: 1, 2: 1}, ft.killedCursorIDs())

	res, err = s.Next(ctx)
	eq(nil, err)
	eq(StatusEndOfStream, res.Status)

	eq(0, ft.numGetMores())
	deq(map[int64]int{1: 1, 2: 1}, ft.killedCursorIDs())
}

func TestLimitZero(t *testing.T) {
	eq, deq := mighty.Eq(t), mighty.Deq(t)

	ft := newFakeTransport()
	s, err := BuildStages(&MergeParameters{
		Namespace: testNS,
		Limit:     Int64(0),
		Remotes:   []RemoteCursor{ft.remote("A", 1, adocs(1), adocs(2))},
	}, ft)
	eq(nil, err)

	res, err := s.Next(context.Background())
	eq(nil, err)
	eq(StatusEndOfStream, res.Status)
	eq(0, ft.numGetMores())
	deq(map[int64]int{1: 1}, ft.killedCursorIDs())
}

func TestRemoveSortKey(t *testing.T) {
	eq, deq := mighty.Eq(t), mighty.Deq(t)
	ctx := context.Background()

	// Without a sort pattern documents are returned as they come.
	ft := newFakeTransport()
	s, err := BuildStages(&MergeParameters{
		Namespace: testNS,
		Remotes:   []RemoteCursor{ft.remote("A", 1, skdocs(1))},
	}, ft)
	eq(nil, err)
	docs, _, err := drain(ctx, s)
	eq(nil, err)
	deq(skdocs(1), docs)

	s, err = BuildStages(&MergeParameters{
		Namespace: testNS,
		Sort:      SortPattern("a"),
		Remotes:   []RemoteCursor{ft.remote("A", 1, skdocs(1, 2))},
	}, ft)
	eq(nil, err)
	docs, _, err = drain(ctx, s)
	eq(nil, err)
	deq(adocs(1, 2), docs)
}

func TestStatusString(t *testing.T) {
	eq := mighty.Eq(t)

	eq("document", StatusDocument.String())
	eq("endOfStream", StatusEndOfStream.String())
	eq("notYetAvailable", StatusNotYetAvailable.String())
	eq("unknown", Status(9).String())
	eq(true, EOF().IsEOF())
	eq(false, DocResult(adoc(1)).IsEOF())
}
