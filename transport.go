// This file contains the interface of the network layer remote cursors are
// driven through.

package clustercursor

import (
	"context"
	"time"

	"github.com/globalsign/mgo/bson"
)

// CursorResponse is the state of a remote cursor as reported by its shard.
type CursorResponse struct {
	// Namespace the cursor iterates.
	Namespace Namespace

	// CursorID is the id of the remote cursor, 0 if the cursor is exhausted.
	CursorID int64

	// Batch holds the results delivered with this response.
	Batch []bson.D
}

// OpenRequest describes a command that establishes a cursor on a shard.
type OpenRequest struct {
	ShardID        ShardID
	Host           HostAndPort
	Namespace      Namespace
	Command        bson.D
	ReadPreference ReadPreference
}

// GetMoreRequest asks a remote cursor for its next batch.
type GetMoreRequest struct {
	ShardID   ShardID
	Host      HostAndPort
	Namespace Namespace
	CursorID  int64

	// BatchSize is the requested page size, 0 lets the shard decide.
	BatchSize int64

	// MaxAwaitTime is how long a TailableAwaitData remote may wait for new
	// data, 0 means the shard's default.
	MaxAwaitTime time.Duration

	ReadPreference ReadPreference
}

// KillRequest asks a shard to kill a remote cursor.
type KillRequest struct {
	ShardID   ShardID
	Host      HostAndPort
	Namespace Namespace
	CursorID  int64
}

// Transport is the network layer that opens, advances and kills remote cursors.
// Implementations must be safe for concurrent use: kill requests are sent
// in parallel.
type Transport interface {
	// Open runs a cursor establishing command on a shard.
	Open(ctx context.Context, req OpenRequest) (CursorResponse, error)

	// GetMore fetches the next batch of a remote cursor.
	GetMore(ctx context.Context, req GetMoreRequest) (CursorResponse, error)

	// KillCursor kills a remote cursor. It is best effort, callers do not retry.
	KillCursor(ctx context.Context, req KillRequest) error
}
