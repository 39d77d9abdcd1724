package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/engine"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/entity"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/testutil"
)

// seedMasterDetail creates a master form with cascade delete and a detail form
// linked to it through a nested field
func seedMasterDetail(t *testing.T, svc *SubmissionService) (*entity.Form, *entity.Form) {
	t.Helper()
	db := svc.db

	detail := testutil.SeedTestForm(t, db, "detail-1", entity.FieldList{
		{ID: "item_name", Type: entity.FieldTypeText, Label: "Item"},
		{ID: "qty", Type: entity.FieldTypeNumber, Label: "Qty"},
	})
	detail.Type = entity.FormTypeDetail
	detail.MasterFormID = "master-1"
	if err := db.Save(detail).Error; err != nil {
		t.Fatalf("Failed to save detail form: %v", err)
	}

	master := testutil.SeedTestForm(t, db, "master-1", entity.FieldList{
		{ID: "order_title", Type: entity.FieldTypeText, Label: "Order", Required: true},
		{ID: "items", Type: entity.FieldTypeNestedForm, Label: "Items", NestedFormID: detail.ID},
	})
	master.Type = entity.FormTypeMaster
	master.Settings = entity.FormSettings{AllowMultiple: true, CascadeDelete: true}
	if err := db.Save(master).Error; err != nil {
		t.Fatalf("Failed to save master form: %v", err)
	}
	return master, detail
}

// TestNestedChildrenCreated tests that child submissions are linked to both
// the parent and the master chain
func TestNestedChildrenCreated(t *testing.T) {
	_, repos, svc := setupSubmissionTest(t)
	master, detail := seedMasterDetail(t, svc)

	actor := engine.Actor{ID: "u1", Role: "user", Organization: "hq"}
	sub, err := svc.Create(context.Background(), actor, &CreateSubmissionReq{
		FormID: master.ID,
		Data:   map[string]interface{}{"order_title": "Office supplies"},
		Children: []ChildInput{
			{FieldID: "items", Data: map[string]interface{}{"item_name": "Pens", "qty": 10}},
			{FieldID: "items", Data: map[string]interface{}{"item_name": "Paper", "qty": 2}},
		},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	children, err := repos.Submission.FindChildren(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("FindChildren failed: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}
	for _, child := range children {
		if child.FormID != detail.ID {
			t.Fatalf("child created against wrong form: %s", child.FormID)
		}
		if child.MasterSubmissionID == nil || *child.MasterSubmissionID != sub.ID {
			t.Fatal("detail child must be linked to the master submission")
		}
		if child.ParentFieldID != "items" {
			t.Fatalf("expected parent field items, got %s", child.ParentFieldID)
		}
		if child.SubmittedBy != actor.ID || child.Organization != actor.Organization {
			t.Fatal("child must inherit submitter and organization")
		}
	}

	counts, err := repos.Submission.CountChildrenByField(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("CountChildrenByField failed: %v", err)
	}
	if counts["items"] != 2 {
		t.Fatalf("expected 2 items children, got %d", counts["items"])
	}
}

// TestCascadeDeleteMaster tests that deleting a master submission soft deletes
// its detail submissions when cascade delete is enabled
func TestCascadeDeleteMaster(t *testing.T) {
	db, repos, svc := setupSubmissionTest(t)
	master, _ := seedMasterDetail(t, svc)

	actor := engine.Actor{ID: "u1", Role: "user"}
	sub, err := svc.Create(context.Background(), actor, &CreateSubmissionReq{
		FormID: master.ID,
		Data:   map[string]interface{}{"order_title": "Office supplies"},
		Children: []ChildInput{
			{FieldID: "items", Data: map[string]interface{}{"item_name": "Pens"}},
		},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	children, _ := repos.Submission.FindChildren(context.Background(), sub.ID)
	if len(children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(children))
	}
	childID := children[0].ID

	if err := svc.Delete(context.Background(), actor, sub.ID, false); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// Parent and detail child are both gone from normal reads
	if gone, _ := repos.Submission.FindByID(context.Background(), sub.ID); gone != nil {
		t.Fatal("master submission should be soft deleted")
	}
	if gone, _ := repos.Submission.FindByID(context.Background(), childID); gone != nil {
		t.Fatal("detail submission should be cascade deleted")
	}

	// Soft delete keeps the row with deletion metadata
	var raw entity.Submission
	if err := db.Where("id = ?", childID).First(&raw).Error; err != nil {
		t.Fatalf("cascade delete must be soft: %v", err)
	}
	if !raw.IsDeleted || raw.DeletedAt == nil || raw.DeletedBy != actor.ID {
		t.Fatalf("expected deletion metadata on child, got deleted=%v by=%q", raw.IsDeleted, raw.DeletedBy)
	}
}

// TestNoCascadeWithoutSetting tests that cascade delete only runs for master
// forms that enable it
func TestNoCascadeWithoutSetting(t *testing.T) {
	db, repos, svc := setupSubmissionTest(t)
	master, _ := seedMasterDetail(t, svc)

	master.Settings = entity.FormSettings{AllowMultiple: true, CascadeDelete: false}
	if err := db.Save(master).Error; err != nil {
		t.Fatalf("Failed to update settings: %v", err)
	}

	actor := engine.Actor{ID: "u1", Role: "user"}
	sub, err := svc.Create(context.Background(), actor, &CreateSubmissionReq{
		FormID: master.ID,
		Data:   map[string]interface{}{"order_title": "Order"},
		Children: []ChildInput{
			{FieldID: "items", Data: map[string]interface{}{"item_name": "Pens"}},
		},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	children, _ := repos.Submission.FindChildren(context.Background(), sub.ID)
	childID := children[0].ID

	if err := svc.Delete(context.Background(), actor, sub.ID, false); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// Child survives the parent deletion
	child, err := repos.Submission.FindByID(context.Background(), childID)
	if err != nil || child == nil {
		t.Fatalf("child must survive without cascade setting: %v", err)
	}

	// Explicit include_children removes it
	sub2, err := svc.Create(context.Background(), actor, &CreateSubmissionReq{
		FormID: master.ID,
		Data:   map[string]interface{}{"order_title": "Order 2"},
		Children: []ChildInput{
			{FieldID: "items", Data: map[string]interface{}{"item_name": "Paper"}},
		},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	children2, _ := repos.Submission.FindChildren(context.Background(), sub2.ID)

	if err := svc.Delete(context.Background(), actor, sub2.ID, true); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if gone, _ := repos.Submission.FindByID(context.Background(), children2[0].ID); gone != nil {
		t.Fatal("child should be deleted when include_children is requested")
	}
}

// TestMarkDeletedStaleVersion tests that a stale detail write surfaces a
// conflict carrying the real expected and stored versions
func TestMarkDeletedStaleVersion(t *testing.T) {
	db, repos, svc := setupSubmissionTest(t)
	master, _ := seedMasterDetail(t, svc)

	actor := engine.Actor{ID: "u1", Role: "user"}
	sub, err := svc.Create(context.Background(), actor, &CreateSubmissionReq{
		FormID: master.ID,
		Data:   map[string]interface{}{"order_title": "Order"},
		Children: []ChildInput{
			{FieldID: "items", Data: map[string]interface{}{"item_name": "Pens"}},
		},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	children, _ := repos.Submission.FindChildren(context.Background(), sub.ID)
	stale, _ := repos.Submission.FindByID(context.Background(), children[0].ID)

	// Another writer bumps the child behind our back
	db.Model(&entity.Submission{}).Where("id = ?", stale.ID).Update("version", 5)

	err = markDeleted(db, stale, actor.ID, time.Now())
	var conflict *engine.StateConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected StateConflict, got %v", err)
	}
	if conflict.ExpectedVersion != 1 || conflict.ActualVersion != 5 {
		t.Fatalf("expected versions 1/5, got %d/%d", conflict.ExpectedVersion, conflict.ActualVersion)
	}
}

// TestCascadeDeleteSurvivesChildBump tests that a cascade delete rereads the
// detail submissions and succeeds after a concurrent child update
func TestCascadeDeleteSurvivesChildBump(t *testing.T) {
	db, repos, svc := setupSubmissionTest(t)
	master, _ := seedMasterDetail(t, svc)

	actor := engine.Actor{ID: "u1", Role: "user"}
	sub, err := svc.Create(context.Background(), actor, &CreateSubmissionReq{
		FormID: master.ID,
		Data:   map[string]interface{}{"order_title": "Order"},
		Children: []ChildInput{
			{FieldID: "items", Data: map[string]interface{}{"item_name": "Pens"}},
		},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	children, _ := repos.Submission.FindChildren(context.Background(), sub.ID)
	childID := children[0].ID

	// Concurrent edit bumps the child version before the delete runs
	db.Model(&entity.Submission{}).Where("id = ?", childID).Update("version", 4)

	if err := svc.Delete(context.Background(), actor, sub.ID, false); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if gone, _ := repos.Submission.FindByID(context.Background(), sub.ID); gone != nil {
		t.Fatal("master submission should be soft deleted")
	}
	if gone, _ := repos.Submission.FindByID(context.Background(), childID); gone != nil {
		t.Fatal("detail submission should be cascade deleted")
	}
}
