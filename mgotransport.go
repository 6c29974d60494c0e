// This file contains a Transport implementation on top of mgo sessions.

package clustercursor

import (
	"context"
	"sync"
	"time"

	"github.com/globalsign/mgo"
	"github.com/globalsign/mgo/bson"
)

// MgoTransport is a Transport talking to the shard hosts with mgo.
// It keeps one direct session per host; each request runs on a copy of it.
//
// Cursor commands reference:
// https://docs.mongodb.com/manual/reference/command/getMore/
// https://docs.mongodb.com/manual/reference/command/killCursors/
type MgoTransport struct {
	// dialInfo is the template used to dial hosts, Addrs is replaced.
	dialInfo mgo.DialInfo

	mu       sync.Mutex
	sessions map[HostAndPort]*mgo.Session
}

// NewMgoTransport creates a new MgoTransport dialing hosts with the given
// dial info (credentials, timeouts); its Addrs are ignored.
func NewMgoTransport(dialInfo *mgo.DialInfo) *MgoTransport {
	t := &MgoTransport{sessions: map[HostAndPort]*mgo.Session{}}
	if dialInfo != nil {
		t.dialInfo = *dialInfo
	}
	return t
}

// cursorReply is the reply of commands returning a cursor.
type cursorReply struct {
	OK     int `bson:"ok"`
	Cursor struct {
		ID         int64    `bson:"id"`
		NS         string   `bson:"ns"`
		FirstBatch []bson.D `bson:"firstBatch"`
		NextBatch  []bson.D `bson:"nextBatch"`
	} `bson:"cursor"`
}

// response converts the reply to a CursorResponse.
// ns is used if the reply carries no namespace.
func (r *cursorReply) response(ns Namespace) CursorResponse {
	if r.Cursor.NS != "" {
		if parsed, err := ParseNamespace(r.Cursor.NS); err == nil {
			ns = parsed
		}
	}
	batch := r.Cursor.FirstBatch
	if batch == nil {
		batch = r.Cursor.NextBatch
	}
	return CursorResponse{Namespace: ns, CursorID: r.Cursor.ID, Batch: batch}
}

// Open implements Transport.Open().
func (t *MgoTransport) Open(ctx context.Context, req OpenRequest) (CursorResponse, error) {
	var res cursorReply
	if err := t.run(ctx, req.Host, req.Namespace.DB, req.ReadPreference, req.Command, &res); err != nil {
		return CursorResponse{}, err
	}
	return res.response(req.Namespace), nil
}

// GetMore implements Transport.GetMore().
func (t *MgoTransport) GetMore(ctx context.Context, req GetMoreRequest) (CursorResponse, error) {
	var res cursorReply
	if err := t.run(ctx, req.Host, req.Namespace.DB, req.ReadPreference, getMoreCommand(req), &res); err != nil {
		return CursorResponse{}, err
	}
	return res.response(req.Namespace), nil
}

// killReadPreference is used for kill requests: a cursor lives on the exact
// host it was opened on, which may be a secondary.
var killReadPreference = ReadPreference{Mode: Nearest}

// KillCursor implements Transport.KillCursor().
func (t *MgoTransport) KillCursor(ctx context.Context, req KillRequest) error {
	var res bson.M
	return t.run(ctx, req.Host, req.Namespace.DB, killReadPreference, killCursorsCommand(req), &res)
}

// Close closes the sessions of all hosts.
func (t *MgoTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for host, s := range t.sessions {
		s.Close()
		delete(t.sessions, host)
	}
}

func getMoreCommand(req GetMoreRequest) bson.D {
	cmd := bson.D{
		{Name: "getMore", Value: req.CursorID},
		{Name: "collection", Value: req.Namespace.Collection},
	}
	if req.BatchSize > 0 {
		cmd = append(cmd, bson.DocElem{Name: "batchSize", Value: req.BatchSize})
	}
	if req.MaxAwaitTime > 0 {
		cmd = append(cmd, bson.DocElem{Name: "maxTimeMS", Value: int64(req.MaxAwaitTime / time.Millisecond)})
	}
	return cmd
}

func killCursorsCommand(req KillRequest) bson.D {
	return bson.D{
		{Name: "killCursors", Value: req.Namespace.Collection},
		{Name: "cursors", Value: []int64{req.CursorID}},
	}
}

// run runs cmd on the given host, respecting the read preference and the
// deadline of ctx. mgo cannot be interrupted: cancellation is only checked
// before the round-trip.
func (t *MgoTransport) run(ctx context.Context, host HostAndPort, db string, rp ReadPreference, cmd bson.D, result interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s, err := t.session(host)
	if err != nil {
		return err
	}
	defer s.Close()

	s.SetMode(rp.mgoMode(), true)
	if len(rp.Tags) > 0 {
		s.SelectServers(rp.Tags...)
	}
	if deadline, ok := ctx.Deadline(); ok {
		timeout := time.Until(deadline)
		if timeout <= 0 {
			return context.DeadlineExceeded
		}
		s.SetSocketTimeout(timeout)
	}

	return s.DB(db).Run(cmd, result)
}

// session returns a copy of the session of host, dialing it if needed.
func (t *MgoTransport) session(host HostAndPort) (*mgo.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.sessions[host]; ok {
		return s.Copy(), nil
	}

	info := t.dialInfo
	info.Addrs = []string{string(host)}
	info.Direct = true
	s, err := mgo.DialWithInfo(&info)
	if err != nil {
		return nil, err
	}
	t.sessions[host] = s
	return s.Copy(), nil
}
