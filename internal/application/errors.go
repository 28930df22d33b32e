package application

import "fmt"

// Stage names a step of the analysis pipeline.
type Stage string

const (
	StageIngestion      Stage = "ingestion"
	StageNormalization  Stage = "normalization"
	StageAggregation    Stage = "aggregation"
	StagePersistence    Stage = "persistence"
	StageComparison     Stage = "comparison"
	StageRecommendation Stage = "recommendation"
)

// StageError reports which pipeline stage failed. No analysis is produced
// when a StageError is returned.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
