package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"water-billing/internal/audit"
	"water-billing/internal/auth"
	"water-billing/internal/billing/application"
	billing "water-billing/internal/billing/domain"
	"water-billing/internal/observability/metrics"
)

const (
	processReadingsPath = "/api/v1/billing/process-readings"
	latestReadingsPath  = "/api/v1/billing/latest-readings"
	stagingPrefix       = "/api/v1/billing/staging/"
	unitsPrefix         = "/api/v1/billing/units/"

	maxRequestBody = 8 << 20
)

// PipelineRunner runs the billing pipeline.
type PipelineRunner interface {
	Run(ctx context.Context, period billing.BillingPeriod, readings []billing.UnitReading) (*application.RunResult, error)
}

// BillingQueries serves read-only billing views.
type BillingQueries interface {
	StagedRecords(ctx context.Context, period billing.Period) ([]billing.StagingRecord, error)
	LatestReadings(ctx context.Context) ([]billing.LatestReading, error)
	UnitHistory(ctx context.Context, unitID int64) ([]billing.BilledPeriod, error)
}

// BillingHandler handles billing APIs under /api/v1/billing.
type BillingHandler struct {
	runner      PipelineRunner
	queries     BillingQueries
	auditLogger audit.Logger
	logger      *zap.Logger
}

// NewBillingHandler constructs a handler. auditLogger may be nil.
func NewBillingHandler(runner PipelineRunner, queries BillingQueries, auditLogger audit.Logger, logger *zap.Logger) (*BillingHandler, error) {
	if runner == nil {
		return nil, errors.New("billing handler: nil runner")
	}
	if queries == nil {
		return nil, errors.New("billing handler: nil queries")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillingHandler{runner: runner, queries: queries, auditLogger: auditLogger, logger: logger}, nil
}

// ServeHTTP routes billing requests.
func (h *BillingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == processReadingsPath:
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleProcessReadings(w, r)
		return
	case path == latestReadingsPath:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleLatestReadings(w, r)
		return
	case strings.HasPrefix(path, stagingPrefix) && r.Method == http.MethodGet:
		h.handleStaging(w, r, strings.TrimPrefix(path, stagingPrefix))
		return
	case strings.HasPrefix(path, unitsPrefix) && r.Method == http.MethodGet:
		h.handleUnitHistory(w, r, strings.TrimPrefix(path, unitsPrefix))
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

type billingPeriodPayload struct {
	ReferenceDate     string          `json:"reference_date"`
	ProducedVolumeM3  float64         `json:"produced_volume"`
	PurchasedVolumeM3 float64         `json:"purchased_volume"`
	PurchasedCost     decimal.Decimal `json:"purchased_cost"`
	OtherCosts        decimal.Decimal `json:"other_costs"`
}

type unitReadingPayload struct {
	UnitID           int64    `json:"unit_id"`
	ReadingTimestamp *string  `json:"reading_timestamp"`
	ReadingValue     *float64 `json:"reading_value"`
	Consumption      *float64 `json:"consumption"`
}

type processReadingsRequest struct {
	BillingPeriod billingPeriodPayload `json:"billing_period"`
	Readings      []unitReadingPayload `json:"readings"`
}

type processReadingsResponse struct {
	RunID        string              `json:"run_id,omitempty"`
	Period       string              `json:"period,omitempty"`
	Message      string              `json:"message"`
	PhaseLog     billing.PhaseLog    `json:"phase_log"`
	Rows         []billing.ResultRow `json:"rows,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
}

func (h *BillingHandler) handleProcessReadings(w http.ResponseWriter, r *http.Request) {
	var (
		req      processReadingsRequest
		readings []billing.UnitReading
	)
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, processReadingsResponse{Message: "invalid json", ErrorMessage: err.Error(), PhaseLog: billing.PhaseLog{}})
		return
	}
	period, err := req.BillingPeriod.toDomain()
	if err == nil {
		readings, err = toUnitReadings(req.Readings)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, processReadingsResponse{Message: "invalid submission", ErrorMessage: err.Error(), PhaseLog: billing.PhaseLog{}})
		return
	}

	result, err := h.runner.Run(r.Context(), period, readings)
	if errors.Is(err, billing.ErrInvalidSubmission) {
		writeJSON(w, http.StatusBadRequest, processReadingsResponse{Message: "invalid submission", ErrorMessage: err.Error(), PhaseLog: billing.PhaseLog{}})
		return
	}
	if result == nil {
		h.logger.Error("billing run returned no result", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, processReadingsResponse{Message: "billing pipeline failed", ErrorMessage: "internal error", PhaseLog: billing.PhaseLog{}})
		return
	}

	resp := processReadingsResponse{
		RunID:    result.RunID,
		Period:   result.Period,
		PhaseLog: result.Log,
		Rows:     result.Rows,
	}
	status := http.StatusOK
	if err != nil || result.Failed {
		status = http.StatusInternalServerError
		resp.Message = "billing pipeline failed"
		resp.ErrorMessage = result.ErrorMessage
	} else {
		resp.Message = fmt.Sprintf("billing pipeline completed for %s", result.Period)
	}
	writeJSON(w, status, resp)

	h.logAudit(r, "billing.process", "billing_run", result.RunID, result.Period, map[string]any{
		"readings": len(readings),
		"rows":     len(result.Rows),
		"failed":   status != http.StatusOK,
	})
}

func (p billingPeriodPayload) toDomain() (billing.BillingPeriod, error) {
	ref, err := parseReferenceDate(p.ReferenceDate)
	if err != nil {
		return billing.BillingPeriod{}, err
	}
	return billing.BillingPeriod{
		ReferenceDate:     ref,
		ProducedVolumeM3:  p.ProducedVolumeM3,
		PurchasedVolumeM3: p.PurchasedVolumeM3,
		PurchasedCost:     p.PurchasedCost,
		OtherCosts:        p.OtherCosts,
	}, nil
}

func parseReferenceDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: reference_date is required", billing.ErrInvalidSubmission)
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: reference_date %q must be YYYY-MM-DD", billing.ErrInvalidSubmission, value)
}

func toUnitReadings(payload []unitReadingPayload) ([]billing.UnitReading, error) {
	readings := make([]billing.UnitReading, 0, len(payload))
	for i, p := range payload {
		at, err := parseReadingTimestamp(p.ReadingTimestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %d: %v", billing.ErrInvalidSubmission, i+1, err)
		}
		readings = append(readings, billing.UnitReading{
			UnitID:        p.UnitID,
			ReadingAt:     at,
			ReadingValue:  p.ReadingValue,
			ConsumptionM3: p.Consumption,
		})
	}
	return readings, nil
}

// Offset-less timestamps are taken as UTC.
var readingTimestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"}

func parseReadingTimestamp(value *string) (*time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	raw := strings.TrimSpace(*value)
	for _, layout := range readingTimestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("reading_timestamp %q is not an ISO date or timestamp", raw)
}

func (h *BillingHandler) handleLatestReadings(w http.ResponseWriter, r *http.Request) {
	items, err := h.queries.LatestReadings(r.Context())
	if err != nil {
		h.logger.Error("latest readings query failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []billing.LatestReading{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BillingHandler) handleUnitHistory(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "history" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	unitID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || unitID <= 0 {
		http.Error(w, "invalid unit id", http.StatusBadRequest)
		return
	}
	items, err := h.queries.UnitHistory(r.Context(), unitID)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidUnitID) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("unit history query failed", zap.Int64("unit_id", unitID), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []billing.BilledPeriod{}
	}
	writeJSON(w, http.StatusOK, struct {
		UnitID int64                  `json:"unit_id"`
		Bills  []billing.BilledPeriod `json:"bills"`
	}{UnitID: unitID, Bills: items})
}

func (h *BillingHandler) handleStaging(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || len(parts) > 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	period, err := billing.ParsePeriod(parts[0])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(parts) == 1 {
		h.handleStagingPreview(w, r, period)
		return
	}
	switch parts[1] {
	case "export.xlsx":
		h.handleStagingExport(w, r, period, "xlsx")
	case "export.pdf":
		h.handleStagingExport(w, r, period, "pdf")
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *BillingHandler) handleStagingPreview(w http.ResponseWriter, r *http.Request, period billing.Period) {
	records, err := h.queries.StagedRecords(r.Context(), period)
	if err != nil {
		h.respondQueryError(w, err)
		return
	}
	resp := struct {
		Period string              `json:"period"`
		Label  string              `json:"label"`
		Rows   []billing.ResultRow `json:"rows"`
	}{Period: period.String(), Label: period.Label(), Rows: billing.ResultRows(records)}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BillingHandler) handleStagingExport(w http.ResponseWriter, r *http.Request, period billing.Period, format string) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveStagingExport(format, result, time.Since(start))
	}()

	records, err := h.queries.StagedRecords(r.Context(), period)
	if err != nil {
		result = metrics.ResultError
		h.respondQueryError(w, err)
		return
	}

	var (
		data        []byte
		contentType string
	)
	switch format {
	case "pdf":
		data, err = BuildStagingPDF(period, records)
		contentType = "application/pdf"
	default:
		data, err = BuildStagingXLSX(period, records)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		result = metrics.ResultError
		h.logger.Error("staging export failed", zap.String("format", format), zap.String("period", period.String()), zap.Error(err))
		http.Error(w, "export "+format+" error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"billing-%s.%s\"", period.String(), format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, "billing.export", "billing_period", period.String(), period.String(), map[string]any{
		"format": format,
		"rows":   len(records),
	})
}

func (h *BillingHandler) respondQueryError(w http.ResponseWriter, err error) {
	if errors.Is(err, billing.ErrInvalidPeriod) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.logger.Error("staging query failed", zap.Error(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (h *BillingHandler) logAudit(r *http.Request, action, resourceType, resourceID, period string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	payload, _ := json.Marshal(meta)
	err := h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Period:       period,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		h.logger.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
