package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/entity"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/repository"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/service"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/testutil"
)

func setupFormAPI(t *testing.T) (*gorm.DB, *gin.Engine) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	repos := repository.NewRepositories(db)
	svc := service.NewFormService(repos.Form, nil)
	h := NewFormHandler(svc)

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1")
	api.GET("/forms", h.List)
	api.GET("/forms/:id", h.Get)

	return db, router
}

// TestFormAPIViewPermission tests that the form read surface enforces the
// viewForm policy and maps the denial to 403
func TestFormAPIViewPermission(t *testing.T) {
	db, router := setupFormAPI(t)

	form := testutil.SeedTestForm(t, db, "form-1", entity.FieldList{
		{ID: "title", Type: entity.FieldTypeText, Label: "Title"},
	})
	form.Permissions = entity.PolicySet{
		"viewForm":   {Roles: []string{"designer"}},
		"submitForm": {Public: true},
	}
	if err := db.Save(form).Error; err != nil {
		t.Fatalf("Failed to restrict form: %v", err)
	}

	userToken := testutil.GenerateTestToken("u1", "User One", "user", "hq")
	designerToken := testutil.GenerateTestToken("d1", "Designer", "designer", "hq")

	w := testutil.DoRequest(router, http.MethodGet, "/api/v1/forms/"+form.ID, nil, userToken)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}

	w2 := testutil.DoRequest(router, http.MethodGet, "/api/v1/forms/"+form.ID, nil, designerToken)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w2.Code, w2.Body.String())
	}

	// Restricted form is absent from the unauthorized actor's listing
	w3 := testutil.DoRequest(router, http.MethodGet, "/api/v1/forms", nil, userToken)
	if w3.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w3.Code, w3.Body.String())
	}
	resp := testutil.ParseResponse(w3)
	items := resp["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 0 {
		t.Fatalf("expected no visible forms, got %d", len(items))
	}
}
