package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/fieldmapapp/fieldmap-server/internal/domain"
	"github.com/fieldmapapp/fieldmap-server/internal/id"
)

func (s *Server) registerCorrectionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "submitCorrection",
		Method:      http.MethodPost,
		Path:        "/api/v1/corrections",
		Summary:     "Submit a mapping correction",
		Description: "Records a user override of a suggested mapping and checks whether the source qualifies for alias promotion",
		Tags:        []string{"Corrections"},
	}, s.handleSubmitCorrection)
}

// CorrectionRequest is the request body for submitting a correction.
type CorrectionRequest struct {
	EntityName    string `json:"entity_name" minLength:"1" doc:"Target schema entity name"`
	Source        string `json:"source" minLength:"1" doc:"Source column name as it appeared in the dataset"`
	WrongTarget   string `json:"wrong_target,omitempty" doc:"Target the pipeline suggested; empty when the field was unmapped"`
	CorrectTarget string `json:"correct_target" minLength:"1" doc:"Target the user chose"`
	UserID        string `json:"user_id,omitempty" doc:"Identifier of the correcting user"`
}

// CorrectionResponse confirms a recorded correction.
type CorrectionResponse struct {
	ID string `json:"id" doc:"Correction record ID"`
}

// CorrectionInput is the Huma input for submitting a correction.
type CorrectionInput struct {
	Body CorrectionRequest
}

// CorrectionOutput wraps the correction response for Huma.
type CorrectionOutput struct {
	Body CorrectionResponse
}

func (s *Server) handleSubmitCorrection(ctx context.Context, input *CorrectionInput) (*CorrectionOutput, error) {
	// Unknown entities and targets are caller mistakes, not log material.
	schema, err := s.services.Registry.Get(input.Body.EntityName)
	if err != nil {
		return nil, err
	}
	if schema.Field(input.Body.CorrectTarget) == nil {
		return nil, huma.Error422UnprocessableEntity("correct_target is not a field of the entity schema")
	}

	correction := &domain.Correction{
		ID:            id.MustGenerate("corr"),
		EntityName:    input.Body.EntityName,
		Source:        input.Body.Source,
		WrongTarget:   input.Body.WrongTarget,
		CorrectTarget: input.Body.CorrectTarget,
		UserID:        input.Body.UserID,
	}
	if err := s.services.Learning.RecordCorrection(ctx, correction); err != nil {
		return nil, err
	}

	// Promotion is best-effort and must not delay the response.
	go func() {
		pctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.services.Learning.MaybePromote(pctx, correction.EntityName, correction.Source); err != nil {
			s.logger.Warn("async promotion check failed",
				"entity", correction.EntityName,
				"source", correction.Source,
				"error", err,
			)
		}
	}()

	return &CorrectionOutput{Body: CorrectionResponse{ID: correction.ID}}, nil
}
