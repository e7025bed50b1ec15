package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amirphl/Orochi-WhatsApp/app/dto"
	"github.com/amirphl/Orochi-WhatsApp/app/handlers"
	businessflow "github.com/amirphl/Orochi-WhatsApp/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCampaignFlow answers from the configured results and records calls
type stubCampaignFlow struct {
	created    *dto.CreateCampaignRequest
	createErr  error
	getErr     error
	startErr   error
	cancelErr  error
	recomputed bool
	listReq    *dto.ListMessageLogsRequest
}

func (s *stubCampaignFlow) CreateCampaign(_ context.Context, req *dto.CreateCampaignRequest, _ *businessflow.ClientMetadata) (*dto.CampaignResponse, error) {
	s.created = req
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &dto.CampaignResponse{ID: 11, Name: req.Name, Status: "PENDING", TotalMessages: uint64(len(req.ContactIDs)), PendingCount: uint64(len(req.ContactIDs))}, nil
}

func (s *stubCampaignFlow) GetCampaign(_ context.Context, id uint) (*dto.CampaignResponse, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &dto.CampaignResponse{ID: id, Status: "PROCESSING"}, nil
}

func (s *stubCampaignFlow) ListCampaigns(context.Context, *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error) {
	return &dto.ListCampaignsResponse{}, nil
}

func (s *stubCampaignFlow) StartCampaign(_ context.Context, id uint, _ *businessflow.ClientMetadata) (*dto.StartCampaignResponse, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	return &dto.StartCampaignResponse{CampaignID: id, Status: "PROCESSING", EnqueuedTasks: 3, Batches: 1}, nil
}

func (s *stubCampaignFlow) CancelCampaign(_ context.Context, id uint, _ *businessflow.ClientMetadata) (*dto.CancelCampaignResponse, error) {
	if s.cancelErr != nil {
		return nil, s.cancelErr
	}
	return &dto.CancelCampaignResponse{CampaignID: id, Status: "CANCELLED"}, nil
}

func (s *stubCampaignFlow) RetryFailedMessages(_ context.Context, id uint, _ *businessflow.ClientMetadata) (*dto.RetryCampaignResponse, error) {
	return &dto.RetryCampaignResponse{CampaignID: id, Status: "PROCESSING", Retried: 2}, nil
}

func (s *stubCampaignFlow) GetStatistics(_ context.Context, id uint) (*dto.CampaignStatisticsResponse, error) {
	return &dto.CampaignStatisticsResponse{CampaignID: id}, nil
}

func (s *stubCampaignFlow) RecomputeStatistics(_ context.Context, id uint) (*dto.CampaignStatisticsResponse, error) {
	s.recomputed = true
	return &dto.CampaignStatisticsResponse{CampaignID: id}, nil
}

func (s *stubCampaignFlow) ListMessageLogs(_ context.Context, req *dto.ListMessageLogsRequest) (*dto.ListMessageLogsResponse, error) {
	s.listReq = req
	return &dto.ListMessageLogsResponse{}, nil
}

type stubReportFlow struct {
	err error
}

func (s *stubReportFlow) ExportCampaignReport(_ context.Context, id uint) ([]byte, string, error) {
	if s.err != nil {
		return nil, "", s.err
	}
	return []byte("PK\x03\x04"), fmt.Sprintf("campaign-%d-report.xlsx", id), nil
}

func newCampaignApp(flow *stubCampaignFlow, report *stubReportFlow) *fiber.App {
	h := handlers.NewCampaignHandler(flow, report)
	app := fiber.New()
	app.Post("/api/v1/campaigns", h.CreateCampaign)
	app.Get("/api/v1/campaigns", h.ListCampaigns)
	app.Get("/api/v1/campaigns/:id", h.GetCampaign)
	app.Post("/api/v1/campaigns/:id/start", h.StartCampaign)
	app.Post("/api/v1/campaigns/:id/cancel", h.CancelCampaign)
	app.Post("/api/v1/campaigns/:id/retry", h.RetryFailedMessages)
	app.Get("/api/v1/campaigns/:id/statistics", h.GetStatistics)
	app.Get("/api/v1/campaigns/:id/messages", h.ListMessageLogs)
	app.Get("/api/v1/campaigns/:id/report", h.ExportReport)
	return app
}

// decodeResponse reads the standard envelope
func decodeResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	detail, ok := body["error"].(map[string]any)
	require.True(t, ok, "response has no error object: %v", body)
	code, _ := detail["code"].(string)
	return code
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCreateCampaignHandler(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		flow := &stubCampaignFlow{}
		app := newCampaignApp(flow, &stubReportFlow{})

		resp, err := app.Test(jsonRequest(http.MethodPost, "/api/v1/campaigns",
			`{"name":"Spring sale","whatsapp_number_id":1,"template_id":2,"contact_ids":[4,5,6]}`))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

		body := decodeResponse(t, resp)
		assert.Equal(t, true, body["success"])
		data := body["data"].(map[string]any)
		assert.Equal(t, "PENDING", data["status"])
		assert.EqualValues(t, 3, data["total_messages"])

		require.NotNil(t, flow.created)
		assert.Equal(t, []uint{4, 5, 6}, flow.created.ContactIDs)
	})

	t.Run("validation failure", func(t *testing.T) {
		flow := &stubCampaignFlow{}
		app := newCampaignApp(flow, &stubReportFlow{})

		resp, err := app.Test(jsonRequest(http.MethodPost, "/api/v1/campaigns", `{"name":"Spring sale","template_id":2}`))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, decodeResponse(t, resp)))
		assert.Nil(t, flow.created)
	})

	t.Run("malformed body", func(t *testing.T) {
		app := newCampaignApp(&stubCampaignFlow{}, &stubReportFlow{})

		resp, err := app.Test(jsonRequest(http.MethodPost, "/api/v1/campaigns", `{"name":`))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_REQUEST", errorCode(t, decodeResponse(t, resp)))
	})

	t.Run("template not approved", func(t *testing.T) {
		flow := &stubCampaignFlow{createErr: businessflow.NewBusinessError("TEMPLATE_NOT_APPROVED", "Template is not approved", businessflow.ErrTemplateNotApproved)}
		app := newCampaignApp(flow, &stubReportFlow{})

		resp, err := app.Test(jsonRequest(http.MethodPost, "/api/v1/campaigns",
			`{"name":"Spring sale","whatsapp_number_id":1,"template_id":2,"contact_ids":[4]}`))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

		body := decodeResponse(t, resp)
		assert.Equal(t, "TEMPLATE_NOT_APPROVED", errorCode(t, body))
		assert.Equal(t, "Template is not approved", body["message"])
	})
}

func TestCampaignHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		flow     *stubCampaignFlow
		method   string
		target   string
		wantCode int
		wantErr  string
	}{
		{
			name:     "invalid id",
			flow:     &stubCampaignFlow{},
			method:   http.MethodGet,
			target:   "/api/v1/campaigns/abc",
			wantCode: fiber.StatusBadRequest,
			wantErr:  "INVALID_ID",
		},
		{
			name:     "zero id",
			flow:     &stubCampaignFlow{},
			method:   http.MethodGet,
			target:   "/api/v1/campaigns/0",
			wantCode: fiber.StatusBadRequest,
			wantErr:  "INVALID_ID",
		},
		{
			name:     "not found",
			flow:     &stubCampaignFlow{getErr: businessflow.NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", businessflow.ErrCampaignNotFound)},
			method:   http.MethodGet,
			target:   "/api/v1/campaigns/9",
			wantCode: fiber.StatusNotFound,
			wantErr:  "CAMPAIGN_NOT_FOUND",
		},
		{
			name:     "start of a running campaign",
			flow:     &stubCampaignFlow{startErr: businessflow.NewBusinessError("CAMPAIGN_NOT_PENDING", "Campaign is not pending", businessflow.ErrCampaignNotPending)},
			method:   http.MethodPost,
			target:   "/api/v1/campaigns/9/start",
			wantCode: fiber.StatusConflict,
			wantErr:  "CAMPAIGN_NOT_PENDING",
		},
		{
			name:     "bare sentinel falls back to generic conflict code",
			flow:     &stubCampaignFlow{cancelErr: businessflow.ErrCampaignNotCancellable},
			method:   http.MethodPost,
			target:   "/api/v1/campaigns/9/cancel",
			wantCode: fiber.StatusConflict,
			wantErr:  "CONFLICT",
		},
		{
			name:     "unexpected failure",
			flow:     &stubCampaignFlow{startErr: errors.New("connection reset by peer")},
			method:   http.MethodPost,
			target:   "/api/v1/campaigns/9/start",
			wantCode: fiber.StatusInternalServerError,
			wantErr:  "CAMPAIGN_START_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newCampaignApp(tt.flow, &stubReportFlow{})
			resp, err := app.Test(httptest.NewRequest(tt.method, tt.target, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, resp.StatusCode)
			assert.Equal(t, tt.wantErr, errorCode(t, decodeResponse(t, resp)))
		})
	}
}

func TestCampaignLifecycleHandlers(t *testing.T) {
	flow := &stubCampaignFlow{}
	app := newCampaignApp(flow, &stubReportFlow{})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/campaigns/3/start", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	data := decodeResponse(t, resp)["data"].(map[string]any)
	assert.EqualValues(t, 3, data["enqueued_tasks"])

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/campaigns/3/cancel", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "CANCELLED", decodeResponse(t, resp)["data"].(map[string]any)["status"])

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/campaigns/3/retry", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "2 messages re-enqueued", decodeResponse(t, resp)["message"])
}

func TestCampaignStatisticsHandler(t *testing.T) {
	flow := &stubCampaignFlow{}
	app := newCampaignApp(flow, &stubReportFlow{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/4/statistics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.False(t, flow.recomputed)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/4/statistics?recompute=true", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, flow.recomputed)
}

func TestListMessageLogsHandlerUsesPathCampaign(t *testing.T) {
	flow := &stubCampaignFlow{}
	app := newCampaignApp(flow, &stubReportFlow{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/12/messages?status=FAILED&page=2&limit=5", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.NotNil(t, flow.listReq)
	assert.Equal(t, uint(12), flow.listReq.CampaignID)
	assert.Equal(t, "FAILED", flow.listReq.Status)
	assert.Equal(t, 2, flow.listReq.Page)
	assert.Equal(t, 5, flow.listReq.Limit)
}

func TestExportReportHandler(t *testing.T) {
	t.Run("download", func(t *testing.T) {
		app := newCampaignApp(&stubCampaignFlow{}, &stubReportFlow{})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/7/report", nil))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))
		assert.Equal(t, `attachment; filename="campaign-7-report.xlsx"`, resp.Header.Get("Content-Disposition"))

		content, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, []byte("PK\x03\x04"), content)
	})

	t.Run("unknown campaign", func(t *testing.T) {
		app := newCampaignApp(&stubCampaignFlow{}, &stubReportFlow{err: businessflow.ErrCampaignNotFound})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/7/report", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", errorCode(t, decodeResponse(t, resp)))
	})
}
