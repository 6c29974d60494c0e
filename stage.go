// This file contains the Stage interface and the stages that only shape the
// stream produced by their child: skip, limit and sort key removal.

package clustercursor

import (
	"context"
	"time"

	"github.com/globalsign/mgo/bson"
)

// Status tells what a Result carries.
type Status int

const (
	// StatusDocument means the result carries a document.
	StatusDocument Status = iota

	// StatusEndOfStream means there are no more results, ever.
	StatusEndOfStream

	// StatusNotYetAvailable means no result is available right now, but a
	// tailable cursor may produce more later. The caller decides when to retry.
	StatusNotYetAvailable
)

func (s Status) String() string {
	switch s {
	case StatusDocument:
		return "document"
	case StatusEndOfStream:
		return "endOfStream"
	case StatusNotYetAvailable:
		return "notYetAvailable"
	}
	return "unknown"
}

// Result is the outcome of pulling from a stage.
type Result struct {
	// Doc is the result document, only set with StatusDocument.
	Doc bson.D

	Status Status
}

// DocResult returns a Result carrying doc.
func DocResult(doc bson.D) Result { return Result{Doc: doc, Status: StatusDocument} }

// EOF returns an end-of-stream Result.
func EOF() Result { return Result{Status: StatusEndOfStream} }

// NotYetAvailable returns a Result telling that no result is available yet.
func NotYetAvailable() Result { return Result{Status: StatusNotYetAvailable} }

// IsEOF tells if r is the end of the stream.
func (r Result) IsEOF() bool { return r.Status == StatusEndOfStream }

// Source is anything results can be pulled from.
type Source interface {
	// Next returns the next result.
	Next(ctx context.Context) (Result, error)
}

// Stage is a pull-based stage of a cluster cursor's execution plan.
// Stages form a chain; the root stage reads from the remote cursors.
type Stage interface {
	Source

	// Kill kills the remote cursors under the stage. It is idempotent and best
	// effort: failures are logged, not returned.
	Kill(ctx context.Context)

	// RemotesExhausted tells if every remote cursor under the stage is exhausted.
	RemotesExhausted() bool

	// SetAwaitDataTimeout sets how long TailableAwaitData remotes wait for new data.
	SetAwaitDataTimeout(d time.Duration) error

	// PartialResultsReturned tells if a failed remote was dropped because
	// partial results are allowed.
	PartialResultsReturned() bool
}

// childStage forwards the control operations of a stage to its child.
type childStage struct {
	child Stage
}

func (s *childStage) Kill(ctx context.Context) { s.child.Kill(ctx) }

func (s *childStage) RemotesExhausted() bool { return s.child.RemotesExhausted() }

func (s *childStage) SetAwaitDataTimeout(d time.Duration) error {
	return s.child.SetAwaitDataTimeout(d)
}

func (s *childStage) PartialResultsReturned() bool { return s.child.PartialResultsReturned() }

// skipStage discards the first skip results of its child.
type skipStage struct {
	childStage

	skip    int64
	skipped int64
}

func newSkipStage(child Stage, skip int64) *skipStage {
	return &skipStage{childStage: childStage{child}, skip: skip}
}

func (s *skipStage) Next(ctx context.Context) (Result, error) {
	for s.skipped < s.skip {
		res, err := s.child.Next(ctx)
		if err != nil || res.Status != StatusDocument {
			return res, err
		}
		s.skipped++
	}
	return s.child.Next(ctx)
}

// limitStage returns at most limit results of its child.
type limitStage struct {
	childStage

	limit    int64
	returned int64
}

func newLimitStage(child Stage, limit int64) *limitStage {
	return &limitStage{childStage: childStage{child}, limit: limit}
}

func (s *limitStage) Next(ctx context.Context) (Result, error) {
	if s.returned >= s.limit {
		// Nothing else will be pulled, remotes can go.
		s.killChild(ctx)
		return EOF(), nil
	}

	res, err := s.child.Next(ctx)
	if err != nil || res.Status != StatusDocument {
		return res, err
	}
	s.returned++
	if s.returned >= s.limit {
		s.killChild(ctx)
	}
	return res, nil
}

func (s *limitStage) killChild(ctx context.Context) {
	killCtx, cancel := killContext(ctx)
	defer cancel()
	s.child.Kill(killCtx)
}

func (s *limitStage) RemotesExhausted() bool {
	// Once the limit is reached the remotes are killed, nothing is pending.
	return s.returned >= s.limit || s.child.RemotesExhausted()
}

// removeSortKeyStage strips the $sortKey metadata field shards add to their
// results for the merge.
type removeSortKeyStage struct {
	childStage
}

func newRemoveSortKeyStage(child Stage) *removeSortKeyStage {
	return &removeSortKeyStage{childStage{child}}
}

func (s *removeSortKeyStage) Next(ctx context.Context) (Result, error) {
	res, err := s.child.Next(ctx)
	if err != nil || res.Status != StatusDocument {
		return res, err
	}
	res.Doc = removeField(res.Doc, SortKeyField)
	return res, nil
}
