package v1

import (
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/export"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/service"
)

type PatientHandler struct {
	svc            *service.PatientService
	errorMode      ErrorMode
	maxUploadBytes int64
}

func NewPatientHandler(svc *service.PatientService, errorMode ErrorMode, maxUploadBytes int64) *PatientHandler {
	return &PatientHandler{svc: svc, errorMode: errorMode, maxUploadBytes: maxUploadBytes}
}

// Add handles POST /add.
func (h *PatientHandler) Add(c *gin.Context) {
	payload, ok := bindPayload(c)
	if !ok {
		return
	}

	if err := h.svc.AddPatient(c.Request.Context(), payload); err != nil {
		respondServiceError(c, h.errorMode, err)
		return
	}
	respondOK(c, StatusResponse{Status: "ok"})
}

// Predict handles GET /predict/:patient_id.
func (h *PatientHandler) Predict(c *gin.Context) {
	pred, err := h.svc.Predict(c.Request.Context(), c.Param("patient_id"))
	if err != nil {
		respondServiceError(c, h.errorMode, err)
		return
	}
	respondOK(c, pred)
}

func (h *PatientHandler) Cohort(c *gin.Context) {
	cohort, err := h.svc.Cohort(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.errorMode, err)
		return
	}
	respondOK(c, cohort)
}

func (h *PatientHandler) Timeline(c *gin.Context) {
	points, err := h.svc.Timeline(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, h.errorMode, err)
		return
	}
	respondOK(c, points)
}

func (h *PatientHandler) Explain(c *gin.Context) {
	exp, err := h.svc.Explain(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, h.errorMode, err)
		return
	}
	respondOK(c, exp)
}

// PredictCSV handles POST /predict-csv with the table in multipart field
// "file".
func (h *PatientHandler) PredictCSV(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	fh, err := c.FormFile("file")
	if err != nil {
		if isMaxBytesError(err) {
			respondError(c, http.StatusRequestEntityTooLarge, "uploaded file too large")
			return
		}
		respondError(c, http.StatusBadRequest, "no file uploaded")
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "cannot read uploaded file")
		return
	}
	defer f.Close()

	scored, err := h.svc.BulkPredict(c.Request.Context(), f)
	if err != nil {
		respondServiceError(c, h.errorMode, err)
		return
	}
	respondOK(c, scored)
}

// Export handles GET /dataset/export?format=csv|xlsx|parquet.
func (h *PatientHandler) Export(c *gin.Context) {
	format, ok := export.ParseFormat(c.Query("format"))
	if !ok {
		respondServiceError(c, h.errorMode,
			fmt.Errorf("%w: %q", service.ErrUnsupportedFormat, c.Query("format")))
		return
	}

	data, err := h.svc.Export(c.Request.Context(), format)
	if err != nil {
		respondServiceError(c, h.errorMode, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, format.Filename()))
	c.Data(http.StatusOK, format.ContentType(), data)
}

type debugResponse struct {
	ReceivedFields []string `json:"received_fields"`
	ExpectedFields []string `json:"expected_fields"`
	MissingFields  []string `json:"missing_fields"`
	ExtraFields    []string `json:"extra_fields"`
}

// DebugData echoes which payload keys match the persisted columns.
func (h *PatientHandler) DebugData(c *gin.Context) {
	payload, ok := bindPayload(c)
	if !ok {
		return
	}

	expected := h.svc.ExpectedColumns()
	resp := debugResponse{
		ReceivedFields: make([]string, 0, len(payload)),
		ExpectedFields: expected,
		MissingFields:  []string{},
		ExtraFields:    []string{},
	}
	for k := range payload {
		resp.ReceivedFields = append(resp.ReceivedFields, k)
		if !slices.Contains(expected, k) {
			resp.ExtraFields = append(resp.ExtraFields, k)
		}
	}
	slices.Sort(resp.ReceivedFields)
	slices.Sort(resp.ExtraFields)
	for _, col := range expected {
		if _, ok := payload[col]; !ok {
			resp.MissingFields = append(resp.MissingFields, col)
		}
	}
	respondOK(c, resp)
}

func isMaxBytesError(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
