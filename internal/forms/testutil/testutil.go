package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/entity"
	"github.com/ramabhadrarao/formbuilder3/internal/middleware"
)

const (
	TestSchema = "test_forms"
	JWTSecret  = "formbuilder-jwt-secret-key-2024"
)

// TestEnv holds test environment resources
type TestEnv struct {
	DB     *gorm.DB
	Router *gin.Engine
	T      *testing.T
}

// projectRoot returns the project root directory by looking for go.mod
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// loadEnv loads .env from the project root
func loadEnv() {
	root := projectRoot()
	if root != "" {
		godotenv.Load(filepath.Join(root, ".env"))
	}
}

// SetupTestDB creates a test database connection using a dedicated test schema.
// Each test gets an isolated schema that is cleaned up after the test.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadEnv()

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "formbuilder")
	password := getEnv("DB_PASSWORD", "formbuilder123")
	dbname := getEnv("DB_NAME", "formbuilder")

	baseDSN := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// Create a unique test schema for isolation
	schemaName := fmt.Sprintf("%s_%d", TestSchema, time.Now().UnixNano()%1000000)

	// First: create schema using a temporary connection
	setupDB, err := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to database for schema setup: %v", err)
	}
	setupDB.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName))
	sqlSetup, _ := setupDB.DB()
	sqlSetup.Close()

	// Second: open connection with search_path in DSN so ALL pooled connections use test schema
	testDSN := fmt.Sprintf("%s search_path=%s", baseDSN, schemaName)
	db, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// Migrate test tables
	err = db.AutoMigrate(
		&entity.User{},
		&entity.Form{},
		&entity.Workflow{},
		&entity.Submission{},
		&entity.WorkflowHistoryEntry{},
		&entity.AuditLogEntry{},
		&entity.SequenceCounter{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	// Cleanup on test completion
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		// Reconnect to drop the schema
		cleanDB, cleanErr := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if cleanErr == nil {
			cleanDB.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
			sqlClean, _ := cleanDB.DB()
			if sqlClean != nil {
				sqlClean.Close()
			}
		}
	})

	return db
}

// SetupRouter creates a gin test router
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group with JWT auth middleware for testing
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken creates a valid JWT token for testing
func GenerateTestToken(userID, name, role, organization string) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  userID,
		"uid":  userID,
		"name": name,
		"role": role,
		"org":  organization,
		"iss":  "formbuilder",
		"iat":  now.Unix(),
		"exp":  now.Add(24 * time.Hour).Unix(),
		"jti":  fmt.Sprintf("test-jti-%d", now.UnixNano()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// AdminTestToken returns a token for a default admin test user
func AdminTestToken() string {
	return GenerateTestToken("test-admin-001", "Test Admin", "admin", "hq")
}

// DoRequest executes an HTTP request against the test router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the JSON response body into a handler.Response-like map
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedTestUser creates a test user in the database
func SeedTestUser(t *testing.T, db *gorm.DB, id, name, role, organization string) *entity.User {
	t.Helper()
	user := &entity.User{
		ID:           id,
		Username:     "user_" + id,
		Name:         name,
		Email:        id + "@test.com",
		Role:         role,
		Organization: organization,
		Status:       entity.UserStatusActive,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to seed test user: %v", err)
	}
	return user
}

// SeedTestForm creates a published form with the given fields and open permissions
func SeedTestForm(t *testing.T, db *gorm.DB, id string, fields entity.FieldList) *entity.Form {
	t.Helper()
	form := &entity.Form{
		ID:     id,
		Code:   "form_" + id,
		Name:   "Test Form " + id,
		Type:   entity.FormTypeStandard,
		Status: entity.FormStatusPublished,
		Fields: fields,
		Permissions: entity.PolicySet{
			"viewForm":         {Public: true},
			"submitForm":       {Public: true},
			"viewSubmission":   {Public: true},
			"editSubmission":   {Public: true},
			"deleteSubmission": {Public: true},
		},
		Settings:  entity.FormSettings{AllowMultiple: true},
		Version:   1,
		CreatedBy: "seed",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(form).Error; err != nil {
		t.Fatalf("Failed to seed test form: %v", err)
	}
	return form
}

// SeedTestWorkflow creates a two stage review workflow with approve/reject/return actions
func SeedTestWorkflow(t *testing.T, db *gorm.DB, id string) *entity.Workflow {
	t.Helper()
	wf := &entity.Workflow{
		ID:   id,
		Name: "Test Review Workflow",
		Stages: entity.StageList{
			{
				ID:           "review",
				Name:         "Review",
				AllowedRoles: []string{"reviewer"},
				Actions: []entity.Action{
					{ID: "approve", Name: "Approve", NextStage: "done"},
					{ID: "reject", Name: "Reject", NextStage: "done", RequireComment: true},
					{ID: "return", Name: "Return", NextStage: "review"},
				},
			},
			{
				ID:           "done",
				Name:         "Done",
				AllowedRoles: []string{"reviewer"},
				Actions: []entity.Action{
					{ID: "reopen", Name: "Reopen", NextStage: "review", Reopen: true},
				},
			},
		},
		InitialStage: "review",
		FinalStages:  entity.StringList{"done"},
		StageStatuses: entity.StageStatusMap{
			"review": entity.SubmissionStatusInReview,
			"done":   entity.SubmissionStatusCompleted,
		},
		Version:   1,
		CreatedBy: "seed",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(wf).Error; err != nil {
		t.Fatalf("Failed to seed test workflow: %v", err)
	}
	return wf
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
