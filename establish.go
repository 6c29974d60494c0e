// This file contains the establishing of remote cursors on the targeted shards.

package clustercursor

import (
	"context"

	"github.com/globalsign/mgo/bson"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ShardRequest is a cursor establishing command to run on one shard.
type ShardRequest struct {
	ShardID ShardID
	Host    HostAndPort
	Command bson.D
}

// EstablishCursors runs the requests concurrently and returns the established
// remote cursors, in the order of the requests.
//
// If a request fails and allowPartialResults is false, the cursors already
// established are killed and the error (a *RemoteError) is returned. With
// allowPartialResults failed shards are left out of the result.
func EstablishCursors(ctx context.Context, transport Transport, ns Namespace, readPref ReadPreference,
	requests []ShardRequest, allowPartialResults bool) ([]RemoteCursor, error) {

	responses := make([]*CursorResponse, len(requests))

	var g errgroup.Group
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			resp, err := transport.Open(ctx, OpenRequest{
				ShardID:        req.ShardID,
				Host:           req.Host,
				Namespace:      ns,
				Command:        req.Command,
				ReadPreference: readPref,
			})
			if err != nil {
				rerr := &RemoteError{error: err, ShardID: req.ShardID, Host: req.Host}
				if allowPartialResults {
					partialResultsCount.Inc()
					zerolog.Ctx(ctx).Debug().Err(rerr).Msg("failed to establish remote cursor, partial results allowed")
					return nil
				}
				return rerr
			}
			responses[i] = &resp
			return nil
		})
	}
	err := g.Wait()

	remotes := make([]RemoteCursor, 0, len(requests))
	for i, resp := range responses {
		if resp == nil {
			continue
		}
		remotes = append(remotes, RemoteCursor{
			ShardID:     requests[i].ShardID,
			HostAndPort: requests[i].Host,
			Response:    *resp,
		})
	}

	if err != nil {
		killRemoteCursors(ctx, transport, killRequestsFor(ns, remotes))
		return nil, err
	}
	return remotes, nil
}
