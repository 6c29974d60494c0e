/*

Package clustercursor provides the merge layer of a sharded query router:
ClusterClientCursor, a single cursor over the results of the cursors a query
opened on multiple shards.

Each shard returns its results through its own remote cursor. The cluster
cursor pulls batches from them on demand, merges them following the sort
pattern of the query (or in arrival order if there is none), and applies
skip and limit, hiding the shard topology from the caller.

Example using ClusterClientCursor

Let's say a find sorted by "name" was sent to 2 shards, with the shards adding
the $sortKey to each result. Remote cursors can be established with
EstablishCursors():

    transport := clustercursor.NewMgoTransport(&mgo.DialInfo{Timeout: 10 * time.Second})
    defer transport.Close()

    ns := clustercursor.Namespace{DB: "app", Collection: "users"}
    cmd := bson.D{{Name: "find", Value: ns.Collection}, {Name: "sort", Value: bson.D{{Name: "name", Value: 1}}}}
    remotes, err := clustercursor.EstablishCursors(ctx, transport, ns, clustercursor.ReadPreference{},
        []clustercursor.ShardRequest{
            {ShardID: "shard0", Host: "shard0.example.com:27018", Command: cmd},
            {ShardID: "shard1", Host: "shard1.example.com:27018", Command: cmd},
        }, false)

Then the cursor is built from MergeParameters:

    c, err := clustercursor.NewClusterClientCursor(ctx, transport, &clustercursor.MergeParameters{
        Namespace: ns,
        Remotes:   remotes,
        Sort:      clustercursor.SortPattern("name"),
        Limit:     clustercursor.Int64(10),
    })
    defer c.Kill(ctx)

    var users []*User
    err = c.All(ctx, &users)

Results can also be pulled one by one with Next(). Tailable cursors may
return a result with StatusNotYetAvailable, meaning there is nothing to return
right now; it is up to the caller when to try again.

Note #1: the cluster cursor owns the remote cursors. Killing it (or failing
with an error) kills every remote cursor still alive, at most once each.
Kill failures are only logged: a leaked remote cursor is reaped by the
cursor timeout of its shard.

Note #2: with AllowPartialResults a failing remote is dropped and the cursor
carries on with the rest. Use PartialResultsReturned() to tell if that happened.

*/
package clustercursor
