// This file contains the building of a cluster cursor's execution plan.

package clustercursor

// SourceFactory builds the initial source stage of a cluster cursor's
// execution plan.
type SourceFactory interface {
	// BuildRootStage returns the stage the rest of the plan pulls from.
	// The returned stage owns the remote cursors of params.
	BuildRootStage(params *MergeParameters, transport Transport) (Stage, error)
}

// MergeSourceFactory is the default SourceFactory: it merges the remote
// cursors of the parameters, following their sort pattern if any.
type MergeSourceFactory struct{}

// BuildRootStage implements SourceFactory.BuildRootStage().
func (MergeSourceFactory) BuildRootStage(params *MergeParameters, transport Transport) (Stage, error) {
	return newMergeStage(params, transport)
}

// BuildStages validates params and wires the execution plan:
//
//	source -> skip -> limit -> merge pipeline | $sortKey removal
//
// The merge pipeline, if any, is moved out of params.
func BuildStages(params *MergeParameters, transport Transport) (Stage, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	factory := params.SourceFactory
	if factory == nil {
		factory = MergeSourceFactory{}
	}
	root, err := factory.BuildRootStage(params, transport)
	if err != nil {
		return nil, err
	}

	stage := root
	if params.Skip != nil && *params.Skip > 0 {
		stage = newSkipStage(stage, *params.Skip)
	}
	if params.Limit != nil {
		stage = newLimitStage(stage, *params.Limit)
	}

	if pipeline := params.TakeMergePipeline(); pipeline != nil {
		// The pipeline consumes the sort key itself.
		stage = newPipelineStage(stage, pipeline)
	} else if len(params.Sort) > 0 {
		stage = newRemoveSortKeyStage(stage)
	}
	return stage, nil
}
