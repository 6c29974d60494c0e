// This file contains the stage running the merge pipeline on merged results.

package clustercursor

import (
	"context"

	"github.com/globalsign/mgo/bson"
)

// Pipeline post-processes merged results before they reach the caller.
// A pipeline may buffer its input, reorder it within a window, or expand one
// input into several outputs. It is owned by exactly one cursor.
type Pipeline interface {
	// Next returns the next output of the pipeline, pulling input from src as
	// needed. End-of-stream and not-yet-available results of src must be
	// passed on once the pipeline has nothing else to return.
	Next(ctx context.Context, src Source) (Result, error)

	// Dispose releases the resources of the pipeline.
	Dispose(ctx context.Context)
}

// pipelineStage feeds the merged stream of its child through a merge pipeline.
type pipelineStage struct {
	childStage

	pipeline Pipeline
	disposed bool
}

func newPipelineStage(child Stage, pipeline Pipeline) *pipelineStage {
	return &pipelineStage{childStage: childStage{child}, pipeline: pipeline}
}

func (s *pipelineStage) Next(ctx context.Context) (Result, error) {
	if s.disposed {
		return Result{}, invalidStatef("merge pipeline has been disposed")
	}
	return s.pipeline.Next(ctx, s.child)
}

func (s *pipelineStage) Kill(ctx context.Context) {
	if !s.disposed {
		s.disposed = true
		s.pipeline.Dispose(ctx)
	}
	s.child.Kill(ctx)
}

// MapFunc maps one input document to zero or more output documents.
type MapFunc func(doc bson.D) ([]bson.D, error)

// mapPipeline is a Pipeline applying a MapFunc to each input document.
type mapPipeline struct {
	fn      MapFunc
	pending []bson.D
}

// NewMapPipeline returns a Pipeline that maps each merged document to zero
// or more output documents using fn.
func NewMapPipeline(fn MapFunc) Pipeline {
	return &mapPipeline{fn: fn}
}

func (p *mapPipeline) Next(ctx context.Context, src Source) (Result, error) {
	for len(p.pending) == 0 {
		res, err := src.Next(ctx)
		if err != nil || res.Status != StatusDocument {
			return res, err
		}
		if p.pending, err = p.fn(res.Doc); err != nil {
			return Result{}, err
		}
	}

	doc := p.pending[0]
	p.pending = p.pending[1:]
	return DocResult(doc), nil
}

func (p *mapPipeline) Dispose(ctx context.Context) {
	p.pending = nil
}
