// This file contains the identity types shared by remote cursors.

package clustercursor

import (
	"fmt"
	"strings"

	"github.com/globalsign/mgo"
	"github.com/globalsign/mgo/bson"
)

// ShardID identifies a shard.
type ShardID string

// HostAndPort is the exact host (within a shard) a remote cursor lives on,
// in "host:port" form.
type HostAndPort string

// Namespace identifies a collection.
type Namespace struct {
	DB         string `validate:"required"`
	Collection string `validate:"required"`
}

// ParseNamespace parses a "db.collection" string.
// The collection part may itself contain dots.
func ParseNamespace(ns string) (Namespace, error) {
	i := strings.IndexByte(ns, '.')
	if i <= 0 || i == len(ns)-1 {
		return Namespace{}, fmt.Errorf("invalid namespace %q", ns)
	}
	return Namespace{DB: ns[:i], Collection: ns[i+1:]}, nil
}

// String returns the "db.collection" form.
func (ns Namespace) String() string {
	return ns.DB + "." + ns.Collection
}

// TailableMode tells whether a cursor tails a capped collection, and whether
// it has the awaitData option set.
type TailableMode int

const (
	// Normal cursors end once every remote is exhausted.
	Normal TailableMode = iota

	// Tailable cursors do not end when the currently available data is consumed.
	Tailable

	// TailableAwaitData cursors are tailable, and remotes block for a while
	// waiting for new data before returning an empty batch.
	TailableAwaitData
)

func (tm TailableMode) String() string {
	switch tm {
	case Normal:
		return "normal"
	case Tailable:
		return "tailable"
	case TailableAwaitData:
		return "tailableAwaitData"
	}
	return fmt.Sprintf("TailableMode(%d)", int(tm))
}

// ReadPrefMode is the server selection mode of a read preference.
type ReadPrefMode int

const (
	PrimaryOnly ReadPrefMode = iota
	PrimaryPreferred
	SecondaryOnly
	SecondaryPreferred
	Nearest
)

// ReadPreference is retained for the lifetime of a cursor, so every round-trip
// to a remote uses the same preference.
type ReadPreference struct {
	// Mode is the server selection mode.
	Mode ReadPrefMode `validate:"gte=0,lte=4"`

	// Tags is an ordered list of tag sets to select servers with.
	Tags []bson.D
}

// mgoMode returns the mgo session mode equivalent to the read preference mode.
func (rp ReadPreference) mgoMode() mgo.Mode {
	switch rp.Mode {
	case PrimaryPreferred:
		return mgo.PrimaryPreferred
	case SecondaryOnly:
		return mgo.Secondary
	case SecondaryPreferred:
		return mgo.SecondaryPreferred
	case Nearest:
		return mgo.Nearest
	}
	return mgo.Primary
}
