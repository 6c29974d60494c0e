// This file contains ClusterClientCursor, the cursor presented to the caller
// over the merged results of all remote cursors.

package clustercursor

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"time"

	"github.com/globalsign/mgo/bson"
	"github.com/rs/zerolog"
)

// CursorState is the lifecycle state of a ClusterClientCursor.
type CursorState int

const (
	// Open cursors can be iterated.
	Open CursorState = iota

	// Exhausted cursors have returned end-of-stream.
	Exhausted

	// Killed cursors were killed explicitly, or due to an error.
	Killed
)

func (s CursorState) String() string {
	switch s {
	case Open:
		return "open"
	case Exhausted:
		return "exhausted"
	case Killed:
		return "killed"
	}
	return fmt.Sprintf("CursorState(%d)", int(s))
}

// Option configures a ClusterClientCursor.
type Option func(*options)

type options struct {
	logger      *zerolog.Logger
	killTimeout time.Duration
}

// WithLogger sets the logger used when the context passed to the cursor
// carries none.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &logger
	}
}

// WithKillTimeout detaches kill requests from the cancellation of the caller's
// context and bounds them by d instead. By default kill requests use the
// caller's context as-is.
func WithKillTimeout(d time.Duration) Option {
	return func(o *options) {
		o.killTimeout = d
	}
}

// ClusterClientCursor is a cursor over the merged results of the remote
// cursors of a sharded query. It owns the remote cursors and kills the ones
// still alive when it is killed, fails, or is garbage collected without
// being killed.
//
// ClusterClientCursor is meant to be driven by a single goroutine; Kill may
// however be called while a round-trip to a remote is in flight.
type ClusterClientCursor struct {
	// root is the top of the execution plan.
	root Stage

	ns             Namespace
	tailableMode   TailableMode
	readPreference *ReadPreference

	opts options

	state CursorState

	// stash holds queued results, returned before pulling from root.
	stash []bson.D

	numReturned int64

	// cleanup kills the remotes if the cursor becomes unreachable first.
	cleanup runtime.Cleanup
}

// NewClusterClientCursor builds a cursor from params, taking ownership of the
// remote cursors and of the merge pipeline in it.
// If the cursor cannot be built, the remote cursors are killed.
func NewClusterClientCursor(ctx context.Context, transport Transport, params *MergeParameters, opts ...Option) (*ClusterClientCursor, error) {
	c := &ClusterClientCursor{
		ns:             params.Namespace,
		tailableMode:   params.TailableMode,
		readPreference: params.ReadPreference,
	}
	for _, opt := range opts {
		opt(&c.opts)
	}
	ctx = c.withOptions(ctx)

	root, err := BuildStages(params, transport)
	if err != nil {
		killCtx, cancel := killContext(ctx)
		defer cancel()
		killRemoteCursors(killCtx, transport, killRequestsFor(params.Namespace, params.Remotes))
		return nil, err
	}
	c.root = root

	c.cleanup = runtime.AddCleanup(c, func(root Stage) {
		root.Kill(context.Background())
	}, root)

	cursorsOpenedCount.WithLabelValues(params.TailableMode.String()).Inc()
	return c, nil
}

// Next returns the next result of the cursor.
//
// A RemoteError is returned if a remote fails and partial results are not
// allowed; the cursor is killed then. Tailable cursors return a
// StatusNotYetAvailable result when no result is available right now: the
// caller may retry later.
func (c *ClusterClientCursor) Next(ctx context.Context) (Result, error) {
	switch c.state {
	case Killed:
		return Result{}, invalidStatef("cursor on %s has been killed", c.ns)
	case Exhausted:
		return Result{}, invalidStatef("cursor on %s is exhausted", c.ns)
	}

	if len(c.stash) > 0 {
		doc := c.stash[0]
		c.stash[0] = nil
		c.stash = c.stash[1:]
		c.numReturned++
		return DocResult(doc), nil
	}

	ctx = c.withOptions(ctx)
	res, err := c.root.Next(ctx)
	if err != nil {
		c.kill(ctx)
		return Result{}, err
	}

	switch res.Status {
	case StatusDocument:
		c.numReturned++
	case StatusEndOfStream:
		// Stages may end before their remotes do (e.g. limit).
		c.killRemotes(ctx)
		c.state = Exhausted
	}
	return res, nil
}

// Kill kills the cursor: every remote cursor not yet exhausted gets a kill
// request, at most one per remote. Kill failures are logged, not returned.
// Kill is idempotent.
func (c *ClusterClientCursor) Kill(ctx context.Context) {
	c.kill(c.withOptions(ctx))
}

// Close is an alias of Kill.
func (c *ClusterClientCursor) Close(ctx context.Context) {
	c.Kill(ctx)
}

func (c *ClusterClientCursor) kill(ctx context.Context) {
	if c.state == Killed {
		return
	}
	c.killRemotes(ctx)
	c.state = Killed
}

func (c *ClusterClientCursor) killRemotes(ctx context.Context) {
	c.cleanup.Stop()
	killCtx, cancel := killContext(ctx)
	defer cancel()
	c.root.Kill(killCtx)
}

// withOptions attaches the configured logger to ctx if it carries none, and
// the kill timeout stages kill their children with.
func (c *ClusterClientCursor) withOptions(ctx context.Context) context.Context {
	if c.opts.killTimeout > 0 {
		ctx = context.WithValue(ctx, killTimeoutKey{}, c.opts.killTimeout)
	}
	if c.opts.logger == nil || zerolog.Ctx(ctx).GetLevel() != zerolog.Disabled {
		return ctx
	}
	return c.opts.logger.WithContext(ctx)
}

type killTimeoutKey struct{}

// killContext returns the context to send kill requests with. If ctx carries
// a kill timeout, the returned context is detached from the cancellation of
// ctx and bounded by the timeout instead.
func killContext(ctx context.Context) (context.Context, context.CancelFunc) {
	d, _ := ctx.Value(killTimeoutKey{}).(time.Duration)
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(context.WithoutCancel(ctx), d)
}

// QueueResult queues doc to be returned by Next before any other result.
// Queued results are returned in the order they were queued.
func (c *ClusterClientCursor) QueueResult(doc bson.D) {
	c.stash = append(c.stash, doc)
}

// State returns the lifecycle state of the cursor.
func (c *ClusterClientCursor) State() CursorState { return c.state }

// NumReturnedSoFar returns the number of documents returned by Next.
func (c *ClusterClientCursor) NumReturnedSoFar() int64 { return c.numReturned }

// RemotesExhausted tells if every remote cursor is exhausted.
func (c *ClusterClientCursor) RemotesExhausted() bool { return c.root.RemotesExhausted() }

// PartialResultsReturned tells if some remote failed and was dropped because
// partial results are allowed. This is the only way to tell a failed shard
// from a shard that had nothing to return.
func (c *ClusterClientCursor) PartialResultsReturned() bool {
	return c.root.PartialResultsReturned()
}

// IsTailable tells if the cursor is tailable.
func (c *ClusterClientCursor) IsTailable() bool { return c.tailableMode != Normal }

// IsTailableAndAwaitData tells if the cursor is tailable with awaitData.
func (c *ClusterClientCursor) IsTailableAndAwaitData() bool {
	return c.tailableMode == TailableAwaitData
}

// SetAwaitDataTimeout sets how long remotes wait for new data on each getMore.
// Only TailableAwaitData cursors accept it.
func (c *ClusterClientCursor) SetAwaitDataTimeout(d time.Duration) error {
	return c.root.SetAwaitDataTimeout(d)
}

// ReadPreference returns the read preference of the cursor, nil if none was set.
func (c *ClusterClientCursor) ReadPreference() *ReadPreference { return c.readPreference }

// Namespace returns the namespace the cursor iterates.
func (c *ClusterClientCursor) Namespace() Namespace { return c.ns }

// All retrieves the remaining results into the slice result points to,
// decoding each document into the slice's element type.
// It stops at end-of-stream, or when a tailable cursor has nothing available.
func (c *ClusterClientCursor) All(ctx context.Context, result interface{}) error {
	resultv := reflect.ValueOf(result)
	if resultv.Kind() != reflect.Ptr || resultv.Elem().Kind() != reflect.Slice {
		panic("result argument must be a slice address")
	}
	slicev := resultv.Elem()
	slicev = slicev.Slice(0, slicev.Cap())
	elemt := slicev.Type().Elem()
	i := 0
	for {
		res, err := c.Next(ctx)
		if err != nil {
			return err
		}
		if res.Status != StatusDocument {
			break
		}
		if slicev.Len() == i {
			elemp := reflect.New(elemt)
			if err := decodeDoc(res.Doc, elemp.Interface()); err != nil {
				return err
			}
			slicev = reflect.Append(slicev, elemp.Elem())
			slicev = slicev.Slice(0, slicev.Cap())
		} else {
			slicev.Index(i).Set(reflect.Zero(elemt))
			if err := decodeDoc(res.Doc, slicev.Index(i).Addr().Interface()); err != nil {
				return err
			}
		}
		i++
	}
	resultv.Elem().Set(slicev.Slice(0, i))
	return nil
}

// decodeDoc decodes doc into the value out points to.
func decodeDoc(doc bson.D, out interface{}) error {
	data, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(data, out)
}
