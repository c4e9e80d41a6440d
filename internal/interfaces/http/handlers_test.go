package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/nimbusbank/approval-engine/internal/repository"
	"github.com/nimbusbank/approval-engine/internal/workflow"
	"github.com/nimbusbank/approval-engine/pkg/database"
	"github.com/nimbusbank/approval-engine/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	logger := zap.NewNop()
	db, err := database.New(database.Config{
		Path:            filepath.Join(t.TempDir(), "api.db"),
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).Run(repository.Migrations()))

	definitionRepo := repository.NewDefinitionRepository(db.DB, logger)
	requestRepo := repository.NewRequestRepository(db.DB, logger)
	stageRepo := repository.NewStageRepository(db.DB, logger)
	approvalRepo := repository.NewApprovalRepository(db.DB, logger)
	auditRepo := repository.NewAuditRepository(db.DB, logger)

	engine := workflow.NewEngine(db, definitionRepo, requestRepo, stageRepo, approvalRepo, auditRepo, time.Second, 4, logger)
	definitions := workflow.NewDefinitionStore(db, definitionRepo, logger)

	return NewServer(DefaultServerConfig(), engine, definitions, utils.NewKVLogger(logger))
}

func doJSON(t *testing.T, server *Server, method, path, userID string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}

	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)

	var envelope map[string]interface{}
	if recorder.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	}
	return recorder, envelope
}

func definitionBody() map[string]interface{} {
	return map[string]interface{}{
		"name":         "payment-release",
		"amount_based": true,
		"stages": []map[string]interface{}{
			{"stage_order": 1, "stage_key": "CHECKER", "approver_group": "ops-checkers", "required_approvals": 2, "sla_hours": 24},
			{"stage_order": 2, "stage_key": "MANAGER", "approver_group": "ops-managers", "required_approvals": 1, "sla_hours": 48},
		},
		"amount_rules": []map[string]interface{}{
			{"currency": "USD", "min_amount": 0, "max_amount": 100000, "priority": 10},
			{"currency": "USD", "min_amount": 100000, "priority": 10,
				"overrides": []map[string]interface{}{
					{"stage_order": 1, "required_approvals": 3},
				}},
		},
	}
}

func publishAndCreate(t *testing.T, server *Server, referenceID string, amount int64) (definitionID float64, requestID string, stageIDs []float64) {
	t.Helper()

	recorder, envelope := doJSON(t, server, http.MethodPost, "/api/workflow-definitions", "admin-1", definitionBody())
	require.Equal(t, http.StatusCreated, recorder.Code)
	definitionID = envelope["data"].(map[string]interface{})["id"].(float64)

	recorder, envelope = doJSON(t, server, http.MethodPost, "/api/workflow-requests", "maker-1", map[string]interface{}{
		"definition_id":  definitionID,
		"reference_id":   referenceID,
		"reference_type": "PAYMENT",
		"module_name":    "payments",
		"action_key":     "RELEASE",
		"amount":         amount,
		"currency":       "USD",
		"payload":        `{"beneficiary":"acme"}`,
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	data := envelope["data"].(map[string]interface{})
	requestID = data["request"].(map[string]interface{})["id"].(string)
	for _, stage := range data["stages"].([]interface{}) {
		stageIDs = append(stageIDs, stage.(map[string]interface{})["id"].(float64))
	}
	return definitionID, requestID, stageIDs
}

func TestHealthCheck(t *testing.T) {
	server := newTestServer(t)

	recorder, envelope := doJSON(t, server, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, true, envelope["success"])
}

func TestPublishDefinitionValidation(t *testing.T) {
	server := newTestServer(t)

	body := definitionBody()
	body["stages"] = []map[string]interface{}{}

	recorder, envelope := doJSON(t, server, http.MethodPost, "/api/workflow-definitions", "admin-1", body)
	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
	assert.Equal(t, "INVALID_DEFINITION", envelope["error_code"])
}

func TestCreateRequestRequiresIdentity(t *testing.T) {
	server := newTestServer(t)

	recorder, _ := doJSON(t, server, http.MethodPost, "/api/workflow-requests", "", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestCreateAndFetchRequest(t *testing.T) {
	server := newTestServer(t)

	// Amount above the rule threshold: stage 1 quorum raised to 3.
	_, requestID, _ := publishAndCreate(t, server, "PAY-1", 150000)

	recorder, envelope := doJSON(t, server, http.MethodGet, "/api/workflow-requests/"+requestID, "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	data := envelope["data"].(map[string]interface{})
	stages := data["stages"].([]interface{})
	require.Len(t, stages, 2)
	assert.Equal(t, float64(3), stages[0].(map[string]interface{})["required_approvals"])
	assert.Equal(t, "ACTIVE", stages[0].(map[string]interface{})["status"])
	assert.Equal(t, "PENDING", stages[1].(map[string]interface{})["status"])
}

func TestDuplicateActiveRequestConflicts(t *testing.T) {
	server := newTestServer(t)
	definitionID, _, _ := publishAndCreate(t, server, "PAY-1", 5000)

	recorder, envelope := doJSON(t, server, http.MethodPost, "/api/workflow-requests", "maker-2", map[string]interface{}{
		"definition_id":  definitionID,
		"reference_id":   "PAY-1",
		"reference_type": "PAYMENT",
		"module_name":    "payments",
		"action_key":     "RELEASE",
		"amount":         6000,
		"currency":       "USD",
	})
	assert.Equal(t, http.StatusConflict, recorder.Code)
	assert.Equal(t, "DUPLICATE_ACTIVE_REQUEST", envelope["error_code"])
}

func TestRecordDecisionFlow(t *testing.T) {
	server := newTestServer(t)
	_, requestID, stageIDs := publishAndCreate(t, server, "PAY-1", 5000)

	stagePath := fmt.Sprintf("/api/workflow/stages/%.0f/decision", stageIDs[0])

	recorder, envelope := doJSON(t, server, http.MethodPost, stagePath, "checker-1", map[string]interface{}{
		"request_id": requestID,
		"decision":   "APPROVE",
		"remarks":    "ok",
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "RECORDED_PENDING", envelope["data"].(map[string]interface{})["outcome"])

	// Same approver again: 409 with the typed code.
	recorder, envelope = doJSON(t, server, http.MethodPost, stagePath, "checker-1", map[string]interface{}{
		"request_id": requestID,
		"decision":   "APPROVE",
	})
	assert.Equal(t, http.StatusConflict, recorder.Code)
	assert.Equal(t, "DUPLICATE_APPROVAL", envelope["error_code"])
}

func TestBulkDecisionPartialFailureIsHTTP200(t *testing.T) {
	server := newTestServer(t)
	_, requestID, stageIDs := publishAndCreate(t, server, "PAY-1", 5000)

	// First decision lands normally.
	stagePath := fmt.Sprintf("/api/workflow/stages/%.0f/decision", stageIDs[0])
	recorder, _ := doJSON(t, server, http.MethodPost, stagePath, "checker-1", map[string]interface{}{
		"request_id": requestID,
		"decision":   "APPROVE",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	// Batch with a duplicate for checker-1 on the same stage.
	recorder, envelope := doJSON(t, server, http.MethodPost, "/api/workflow/stages/bulk-decision", "checker-1", []map[string]interface{}{
		{"request_id": requestID, "stage_id": stageIDs[0], "decision": "APPROVE"},
	})
	require.Equal(t, http.StatusOK, recorder.Code, "item failures must not change the HTTP status")

	outcomes := envelope["data"].([]interface{})
	require.Len(t, outcomes, 1)
	assert.Equal(t, "DUPLICATE_APPROVAL", outcomes[0].(map[string]interface{})["error_code"])
}

func TestAwaitingActionsQueryFallback(t *testing.T) {
	server := newTestServer(t)
	publishAndCreate(t, server, "PAY-1", 5000)

	recorder, envelope := doJSON(t, server, http.MethodGet,
		"/api/workflow/awaiting-actions?approver=checker-1&group=ops-checkers", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Len(t, envelope["data"].([]interface{}), 1)

	recorder, _ = doJSON(t, server, http.MethodGet, "/api/workflow/awaiting-actions", "", nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestSummaryEndpoint(t *testing.T) {
	server := newTestServer(t)
	publishAndCreate(t, server, "PAY-1", 5000)

	recorder, envelope := doJSON(t, server, http.MethodGet, "/api/workflow/summary", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	data := envelope["data"].(map[string]interface{})
	byModule := data["by_module"].([]interface{})
	require.Len(t, byModule, 1)
	row := byModule[0].(map[string]interface{})
	assert.Equal(t, "payments", row["module_name"])
	assert.Equal(t, "ACTIVE", row["status"])
	assert.Equal(t, float64(1), row["count"])
}

func TestGetUnknownRequestIs404(t *testing.T) {
	server := newTestServer(t)

	recorder, envelope := doJSON(t, server, http.MethodGet, "/api/workflow-requests/no-such-id", "", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, "REQUEST_NOT_FOUND", envelope["error_code"])
}
