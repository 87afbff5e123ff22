package ai

import (
	"context"
	"encoding/json"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"alphasniper/src/model"
	"alphasniper/src/repository"
)

// ModelName is the single model the engine trains and scores with.
const ModelName = "setup-b-long"

// Registry loads the current scorer from ai_models and persists learner
// state after online updates. Selection order: the model row's impl tag,
// then the AI_MODEL_IMPL config fallback.
type Registry struct {
	models *repository.AiModelRepository
}

func NewRegistry(models *repository.AiModelRepository) *Registry {
	return &Registry{models: models}
}

// LoadedScorer carries the scorer plus its cold-start flag.
type LoadedScorer struct {
	Scorer    Scorer
	ColdStart bool
	Version   int
}

// Load returns the active scorer. With no trained row yet the scorer is a
// cold-start instance: it scores at the default and its first persisted fit
// creates version 1 state in place.
func (r *Registry) Load(ctx context.Context, fallbackImpl string) (*LoadedScorer, error) {
	row, err := r.models.FindCurrent(ctx, ModelName)
	if err != nil {
		return nil, err
	}

	impl := fallbackImpl
	if row != nil && row.Impl != "" {
		impl = row.Impl
	}
	if impl == "" {
		impl = ImplOnlineLR
	}

	scorer, err := NewScorer(impl, model.FeatureVectorDim)
	if err != nil {
		return nil, err
	}

	if row == nil || len(row.Blob) == 0 {
		logger.WithFields(map[string]interface{}{
			"component": "ai",
			"impl":      impl,
		}).Info("No trained model state, starting cold")
		return &LoadedScorer{Scorer: scorer, ColdStart: true, Version: 1}, nil
	}

	if err := scorer.Deserialize(row.Blob); err != nil {
		return nil, fmt.Errorf("deserialize model %s v%d: %w", ModelName, row.Version, err)
	}

	logger.WithFields(map[string]interface{}{
		"component": "ai",
		"impl":      impl,
		"version":   row.Version,
	}).Info("Model state loaded")

	return &LoadedScorer{Scorer: scorer, ColdStart: false, Version: row.Version}, nil
}

// Persist stores the scorer state into the current model row.
func (r *Registry) Persist(ctx context.Context, loaded *LoadedScorer, samplesSeen int) error {
	blob, err := loaded.Scorer.Serialize()
	if err != nil {
		return err
	}

	metrics, err := json.Marshal(map[string]interface{}{
		"samples_seen": samplesSeen,
		"impl":         loaded.Scorer.Impl(),
	})
	if err != nil {
		return err
	}

	return r.models.UpdateCurrentBlob(ctx, ModelName, blob, string(metrics))
}
