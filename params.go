// This file contains MergeParameters, the configuration a cluster client
// cursor is built from.

package clustercursor

import (
	"github.com/globalsign/mgo/bson"
	"github.com/go-playground/validator/v10"
)

// RemoteCursor is an established cursor on one shard. The cluster cursor
// takes ownership of it: results already generated by the remote and not in
// Response.Batch will not be returned.
type RemoteCursor struct {
	// ShardID of the shard the cursor resides on. Not necessarily unique
	// across the remotes of one cursor.
	ShardID ShardID `validate:"required"`

	// HostAndPort is the exact host (within the shard) the cursor resides on.
	HostAndPort HostAndPort `validate:"required"`

	// Response is the state of the established cursor.
	Response CursorResponse `validate:"-"`
}

// MergeParameters describes how the results of remote cursors are to be merged.
// It must not be modified once a cursor has been built from it, except for
// the merge pipeline which is moved out by the builder.
type MergeParameters struct {
	// Namespace against which the cursors exist.
	Namespace Namespace

	// Remotes holds the per-remote cursors.
	Remotes []RemoteCursor `validate:"dive"`

	// Sort is the sort pattern. Leave empty if there is no sort.
	Sort bson.D `validate:"-"`

	// CompareWholeSortKey tells that $sortKey is a scalar value rather than a
	// document. The sort pattern must be {$sortKey: 1} then.
	CompareWholeSortKey bool

	// Skip is the number of results to skip. Never forwarded to the remotes.
	Skip *int64 `validate:"omitempty,gte=0"`

	// BatchSize, if set, is requested as the batch size of each getMore.
	BatchSize *int64 `validate:"omitempty,gte=0"`

	// Limit caps the number of results returned by the cursor.
	Limit *int64 `validate:"omitempty,gte=0"`

	// TailableMode tells whether the remotes tail a capped collection.
	TailableMode TailableMode `validate:"gte=0,lte=2"`

	// ReadPreference, if set, is respected throughout the lifetime of the cursor.
	ReadPreference *ReadPreference

	// AllowPartialResults tells that the caller is willing to receive partial
	// results when a remote becomes unreachable.
	AllowPartialResults bool

	// SourceFactory, if set, builds the initial source stage of the cursor
	// instead of the default merge stage.
	SourceFactory SourceFactory `validate:"-"`

	// mergePipeline, if set, post-processes the merged results.
	// Owned by whoever takes it.
	mergePipeline Pipeline
}

var paramsValidate = validator.New()

// Int64 returns a pointer to v, to fill the optional fields of MergeParameters.
func Int64(v int64) *int64 { return &v }

// SetMergePipeline hands the ownership of p over to the parameters.
func (p *MergeParameters) SetMergePipeline(pipeline Pipeline) {
	p.mergePipeline = pipeline
}

// HasMergePipeline tells if a merge pipeline is set and not taken yet.
func (p *MergeParameters) HasMergePipeline() bool {
	return p.mergePipeline != nil
}

// TakeMergePipeline moves the merge pipeline out of the parameters.
// Only the first call returns it, subsequent calls return nil.
func (p *MergeParameters) TakeMergePipeline() Pipeline {
	pipeline := p.mergePipeline
	p.mergePipeline = nil
	return pipeline
}

// Validate checks the parameters.
// All returned errors are *ConfigurationError.
func (p *MergeParameters) Validate() error {
	if err := paramsValidate.Struct(p); err != nil {
		return &ConfigurationError{err}
	}

	if p.CompareWholeSortKey && len(p.Sort) == 0 {
		return configErrorf("comparing whole sort keys requires a sort pattern")
	}
	if len(p.Sort) > 0 {
		if _, err := NewSortKeyComparator(p.Sort, p.CompareWholeSortKey); err != nil {
			return err
		}
	}
	return nil
}

// IsTailable tells if the cursor is tailable (with or without awaitData).
func (p *MergeParameters) IsTailable() bool {
	return p.TailableMode != Normal
}

// readPreference returns the read preference to send with each round-trip.
func (p *MergeParameters) readPreference() ReadPreference {
	if p.ReadPreference == nil {
		return ReadPreference{}
	}
	return *p.ReadPreference
}

// getMoreBatchSize returns the batch size to request from remotes.
// A known limit caps it: no remote can contribute more than skip+limit
// results. 0 means no preference.
func (p *MergeParameters) getMoreBatchSize() int64 {
	var size int64
	if p.BatchSize != nil {
		size = *p.BatchSize
	}
	if p.Limit != nil {
		limit := *p.Limit
		if p.Skip != nil {
			limit += *p.Skip
		}
		if limit > 0 && (size == 0 || size > limit) {
			size = limit
		}
	}
	return size
}
