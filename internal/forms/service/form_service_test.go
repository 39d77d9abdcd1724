package service

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/engine"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/entity"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/repository"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/testutil"
)

func setupFormTest(t *testing.T) (*gorm.DB, *FormService) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	return db, NewFormService(repos.Form, nil)
}

// restrictViewForm limits the form definition to the given role
func restrictViewForm(t *testing.T, db *gorm.DB, form *entity.Form, role string) {
	t.Helper()
	form.Permissions = entity.PolicySet{
		"viewForm":   {Roles: []string{role}},
		"submitForm": {Public: true},
	}
	if err := db.Save(form).Error; err != nil {
		t.Fatalf("Failed to restrict form: %v", err)
	}
}

// TestFormViewPermission tests that reading a form definition goes through the
// viewForm policy resolution
func TestFormViewPermission(t *testing.T) {
	db, svc := setupFormTest(t)
	form := testutil.SeedTestForm(t, db, "form-1", entity.FieldList{
		{ID: "title", Type: entity.FieldTypeText, Label: "Title"},
	})
	restrictViewForm(t, db, form, "designer")

	outsider := engine.Actor{ID: "u1", Role: "user"}
	_, err := svc.Get(context.Background(), outsider, form.ID)
	var denied *engine.PermissionDenied
	if !errors.As(err, &denied) {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
	if denied.Action != engine.ActionViewForm || denied.ResourceID != form.ID {
		t.Fatalf("unexpected denial payload: %+v", denied)
	}

	designer := engine.Actor{ID: "d1", Role: "designer"}
	if _, err := svc.Get(context.Background(), designer, form.ID); err != nil {
		t.Fatalf("whitelisted role should read the form: %v", err)
	}

	admin := engine.Actor{ID: "a1", Role: "admin"}
	if _, err := svc.Get(context.Background(), admin, form.ID); err != nil {
		t.Fatalf("admin should read the form: %v", err)
	}
}

// TestFormListScopedByViewPermission tests that the list only returns forms the
// actor is allowed to view
func TestFormListScopedByViewPermission(t *testing.T) {
	db, svc := setupFormTest(t)

	testutil.SeedTestForm(t, db, "form-open", entity.FieldList{
		{ID: "title", Type: entity.FieldTypeText, Label: "Title"},
	})
	restricted := testutil.SeedTestForm(t, db, "form-restricted", entity.FieldList{
		{ID: "title", Type: entity.FieldTypeText, Label: "Title"},
	})
	restrictViewForm(t, db, restricted, "designer")

	outsider := engine.Actor{ID: "u1", Role: "user"}
	forms, total, err := svc.List(context.Background(), outsider, "", "", 1, 20)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(forms) != 1 || forms[0].ID != "form-open" {
		t.Fatalf("expected only the open form, got %d forms", len(forms))
	}
	if total != 1 {
		t.Fatalf("expected total 1, got %d", total)
	}

	designer := engine.Actor{ID: "d1", Role: "designer"}
	forms, _, err = svc.List(context.Background(), designer, "", "", 1, 20)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(forms) != 2 {
		t.Fatalf("expected both forms for whitelisted role, got %d", len(forms))
	}

	admin := engine.Actor{ID: "a1", Role: "admin"}
	forms, total, err = svc.List(context.Background(), admin, "", "", 1, 20)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(forms) != 2 || total != 2 {
		t.Fatalf("expected both forms for admin, got %d (total %d)", len(forms), total)
	}
}
