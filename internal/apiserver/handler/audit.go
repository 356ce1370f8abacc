package handler

import (
	"net/http"

	"github.com/edgerun/skippy/internal/audit"
)

// AuditHandler handles placement audit log API requests.
type AuditHandler struct {
	log *audit.Log
}

func NewAuditHandler(log *audit.Log) *AuditHandler {
	return &AuditHandler{log: log}
}

// List returns placement records in reverse chronological order.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	records := h.log.GetAll()
	if records == nil {
		records = []audit.Record{}
	}
	page, pageSize := parsePagination(r)
	start, end, resp := paginateSlice(len(records), page, pageSize)
	resp.Data = records[start:end]
	writeJSON(w, http.StatusOK, resp)
}
