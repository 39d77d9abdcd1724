package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/entity"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/repository"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/sequence"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/service"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/testutil"
)

func setupSubmissionAPI(t *testing.T) (*gorm.DB, *gin.Engine) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	repos := repository.NewRepositories(db)
	alloc := sequence.NewAllocator(repos.Counter, "SUB")
	nested := service.NewNestedService(db, repos)
	svc := service.NewSubmissionService(db, repos, alloc, nested, zap.NewNop())
	h := NewSubmissionHandler(svc)

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1")
	api.POST("/submissions", h.Create)
	api.GET("/submissions/:id", h.Get)
	api.POST("/submissions/:id/actions", h.ExecuteAction)
	api.GET("/submissions/:id/history", h.History)

	return db, router
}

// TestSubmissionAPIValidationMapping tests that field validation failures map to 422
// with per-field errors in the payload
func TestSubmissionAPIValidationMapping(t *testing.T) {
	db, router := setupSubmissionAPI(t)
	form := testutil.SeedTestForm(t, db, "form-1", entity.FieldList{
		{ID: "title", Type: entity.FieldTypeText, Label: "Title", Required: true},
	})
	token := testutil.GenerateTestToken("u1", "User One", "user", "hq")

	w := testutil.DoRequest(router, http.MethodPost, "/api/v1/submissions",
		map[string]interface{}{"form_id": form.ID, "data": map[string]interface{}{}}, token)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	fieldErrors := data["field_errors"].(map[string]interface{})
	if _, ok := fieldErrors["title"]; !ok {
		t.Fatalf("expected title field error, got %v", fieldErrors)
	}
}

// TestSubmissionAPICreateAndAction tests the happy path over HTTP including the
// stage permission rejection
func TestSubmissionAPICreateAndAction(t *testing.T) {
	db, router := setupSubmissionAPI(t)

	wf := testutil.SeedTestWorkflow(t, db, "wf-1")
	form := testutil.SeedTestForm(t, db, "form-1", entity.FieldList{
		{ID: "title", Type: entity.FieldTypeText, Label: "Title", Required: true},
	})
	form.WorkflowID = wf.ID
	if err := db.Save(form).Error; err != nil {
		t.Fatalf("Failed to bind workflow: %v", err)
	}

	userToken := testutil.GenerateTestToken("u1", "User One", "user", "hq")
	reviewerToken := testutil.GenerateTestToken("r1", "Reviewer", "reviewer", "hq")

	w := testutil.DoRequest(router, http.MethodPost, "/api/v1/submissions",
		map[string]interface{}{"form_id": form.ID, "data": map[string]interface{}{"title": "hello"}}, userToken)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	subID := data["id"].(string)
	if data["status"] != entity.SubmissionStatusInReview {
		t.Fatalf("expected in_review, got %v", data["status"])
	}

	// Plain user may not act on the review stage
	w2 := testutil.DoRequest(router, http.MethodPost, "/api/v1/submissions/"+subID+"/actions",
		map[string]interface{}{"action_id": "approve"}, userToken)
	if w2.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w2.Code, w2.Body.String())
	}

	// Reviewer approves
	w3 := testutil.DoRequest(router, http.MethodPost, "/api/v1/submissions/"+subID+"/actions",
		map[string]interface{}{"action_id": "approve"}, reviewerToken)
	if w3.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w3.Code, w3.Body.String())
	}
	resp3 := testutil.ParseResponse(w3)
	data3 := resp3["data"].(map[string]interface{})
	if data3["current_stage"] != "done" {
		t.Fatalf("expected stage done, got %v", data3["current_stage"])
	}

	// History shows both transitions
	w4 := testutil.DoRequest(router, http.MethodGet, "/api/v1/submissions/"+subID+"/history", nil, userToken)
	if w4.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w4.Code, w4.Body.String())
	}
	resp4 := testutil.ParseResponse(w4)
	items := resp4["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(items))
	}
}

// TestSubmissionAPINotFound tests the 404 mapping
func TestSubmissionAPINotFound(t *testing.T) {
	_, router := setupSubmissionAPI(t)
	token := testutil.GenerateTestToken("u1", "User One", "user", "hq")

	w := testutil.DoRequest(router, http.MethodGet, "/api/v1/submissions/no-such-id", nil, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}
