package httpapi

import (
	"errors"
	"net/http"

	"fundimart.org/internal/audit"
	"fundimart.org/internal/workflow"
)

type rejectRequest struct {
	Reason string `json:"reason"`
}

type reportRequest struct {
	Template string            `json:"template"`
	Params   map[string]string `json:"params"`
}

func (a *API) uploadReceipt(w http.ResponseWriter, r *http.Request) {
	var in workflow.UploadInput
	if err := decodeJSON(r, &in); err != nil {
		badBody(w, r, err)
		return
	}
	rc, err := a.workflow.Upload(r.Context(), identity(r), in)
	observe(workflow.ActionReceiptUpload, err)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "receipt.upload", map[string]any{
		"receipt_id":  rc.ID,
		"parent_kind": rc.ParentKind,
		"parent_id":   rc.ParentID,
		"size_bytes":  rc.SizeBytes,
	})
	w.Header().Set("Location", "/v1/receipts/"+rc.ID)
	writeJSON(w, http.StatusCreated, rc)
}

func (a *API) listReceipts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parsePositiveInt(q.Get("limit"), 50, 1, 200)
	if err != nil {
		writeReason(w, r, http.StatusBadRequest, err.Error(), "invalid-input")
		return
	}
	f := workflow.ReceiptFilter{UploaderID: q.Get("uploader_id"), Limit: limit}
	if raw := q.Get("status"); raw != "" {
		st, err := workflow.ParseReceiptStatus(raw)
		if err != nil {
			handleError(w, r, err)
			return
		}
		f.Status = st
	}
	items, err := a.workflow.ListReceipts(r.Context(), identity(r), f)
	observe(workflow.ActionReceiptRead, err)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(items))
}

func (a *API) getReceipt(w http.ResponseWriter, r *http.Request) {
	rc, err := a.workflow.GetReceipt(r.Context(), identity(r), r.PathValue("id"))
	observe(workflow.ActionReceiptRead, err)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

func (a *API) verifyReceipt(w http.ResponseWriter, r *http.Request) {
	rc, err := a.workflow.Verify(r.Context(), identity(r), r.PathValue("id"))
	observe(workflow.ActionReceiptVerify, err)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "receipt.verify", map[string]any{
		"receipt_id":  rc.ID,
		"uploader_id": rc.UploaderID,
	})
	writeJSON(w, http.StatusOK, rc)
}

func (a *API) rejectReceipt(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			badBody(w, r, err)
			return
		}
	}
	rc, err := a.workflow.Reject(r.Context(), identity(r), r.PathValue("id"), req.Reason)
	observe(workflow.ActionReceiptReject, err)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "receipt.reject", map[string]any{
		"receipt_id":  rc.ID,
		"uploader_id": rc.UploaderID,
		"reason":      req.Reason,
	})
	writeJSON(w, http.StatusOK, rc)
}

func (a *API) createReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := decodeJSON(r, &req); err != nil {
		badBody(w, r, err)
		return
	}
	rep, err := a.workflow.CreateReport(r.Context(), identity(r), req.Template, req.Params)
	observe(workflow.ActionReportCreate, err)
	switch {
	case errors.Is(err, workflow.ErrGenerationFailed) && rep.ID != "":
		// The failed report exists and carries the generator error.
	case err != nil:
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "report.create", map[string]any{
		"report_id": rep.ID,
		"template":  rep.Template,
		"status":    string(rep.Status),
	})
	w.Header().Set("Location", "/v1/reports/"+rep.ID)
	writeJSON(w, http.StatusCreated, rep)
}

func (a *API) listReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parsePositiveInt(q.Get("limit"), 50, 1, 200)
	if err != nil {
		writeReason(w, r, http.StatusBadRequest, err.Error(), "invalid-input")
		return
	}
	f := workflow.ReportFilter{
		Status:    workflow.ReportStatus(q.Get("status")),
		Template:  q.Get("template"),
		CreatedBy: q.Get("created_by"),
		Limit:     limit,
	}
	items, err := a.workflow.ListReports(r.Context(), identity(r), f)
	observe(workflow.ActionReportRead, err)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(items))
}

func (a *API) getReport(w http.ResponseWriter, r *http.Request) {
	rep, err := a.workflow.GetReport(r.Context(), identity(r), r.PathValue("id"))
	observe(workflow.ActionReportRead, err)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
