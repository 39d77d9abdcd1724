package service

import (
	"errors"
	"testing"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/engine"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/entity"
)

func validWorkflow() *entity.Workflow {
	return &entity.Workflow{
		ID:   "wf-1",
		Name: "Review",
		Stages: entity.StageList{
			{ID: "review", Name: "Review", Actions: []entity.Action{
				{ID: "approve", Name: "Approve", NextStage: "done"},
			}},
			{ID: "done", Name: "Done"},
		},
		InitialStage: "review",
		FinalStages:  entity.StringList{"done"},
		StageStatuses: entity.StageStatusMap{
			"review": entity.SubmissionStatusInReview,
			"done":   entity.SubmissionStatusCompleted,
		},
	}
}

// TestValidateWorkflow tests that broken workflow definitions are rejected at save time
func TestValidateWorkflow(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(wf *entity.Workflow)
		wantRef string
	}{
		{
			name:   "valid definition passes",
			mutate: func(wf *entity.Workflow) {},
		},
		{
			name:    "no stages",
			mutate:  func(wf *entity.Workflow) { wf.Stages = nil },
			wantRef: "stages",
		},
		{
			name:    "duplicate stage id",
			mutate:  func(wf *entity.Workflow) { wf.Stages = append(wf.Stages, entity.Stage{ID: "review"}) },
			wantRef: "review",
		},
		{
			name:    "initial stage missing",
			mutate:  func(wf *entity.Workflow) { wf.InitialStage = "ghost" },
			wantRef: "ghost",
		},
		{
			name:    "final stage missing",
			mutate:  func(wf *entity.Workflow) { wf.FinalStages = entity.StringList{"ghost"} },
			wantRef: "ghost",
		},
		{
			name: "action target missing",
			mutate: func(wf *entity.Workflow) {
				wf.Stages[0].Actions[0].NextStage = "ghost"
			},
			wantRef: "review.approve",
		},
		{
			name: "stage status map references unknown stage",
			mutate: func(wf *entity.Workflow) {
				wf.StageStatuses["ghost"] = entity.SubmissionStatusApproved
			},
			wantRef: "ghost",
		},
		{
			name: "stage status map carries illegal status",
			mutate: func(wf *entity.Workflow) {
				wf.StageStatuses["review"] = "exploded"
			},
			wantRef: "review",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := validWorkflow()
			tt.mutate(wf)
			err := ValidateWorkflow(wf)

			if tt.wantRef == "" {
				if err != nil {
					t.Fatalf("expected valid workflow, got %v", err)
				}
				return
			}

			var cfgErr *engine.WorkflowConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected WorkflowConfigError, got %v", err)
			}
			if cfgErr.Ref != tt.wantRef {
				t.Fatalf("expected ref %q, got %q", tt.wantRef, cfgErr.Ref)
			}
		})
	}
}

// TestStatusForStage tests status resolution with and without map entries
func TestStatusForStage(t *testing.T) {
	wf := validWorkflow()

	if got := statusForStage(wf, "review", entity.SubmissionStatusSubmitted); got != entity.SubmissionStatusInReview {
		t.Fatalf("expected in_review, got %s", got)
	}

	// Missing entry on a final stage defaults to completed
	delete(wf.StageStatuses, "done")
	if got := statusForStage(wf, "done", entity.SubmissionStatusInReview); got != entity.SubmissionStatusCompleted {
		t.Fatalf("expected completed for final stage, got %s", got)
	}

	// Missing entry on a non-final stage keeps the current status
	delete(wf.StageStatuses, "review")
	if got := statusForStage(wf, "review", entity.SubmissionStatusSubmitted); got != entity.SubmissionStatusSubmitted {
		t.Fatalf("expected status preserved, got %s", got)
	}
}
