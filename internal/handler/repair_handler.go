package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chargefix/portal/internal/middleware"
	"github.com/chargefix/portal/internal/model"
)

// RepairServiceInterface is the service interface the repair handler needs.
type RepairServiceInterface interface {
	ListAssigned(ctx context.Context, tech *model.Technician) ([]model.Repair, error)
	Accept(ctx context.Context, tech *model.Technician, repairID string) (*model.Repair, error)
	Reject(ctx context.Context, tech *model.Technician, repairID, reason string) (*model.Repair, error)
	Schedule(ctx context.Context, tech *model.Technician, repairID string, visitDate time.Time, slot string) (*model.Repair, error)
	SubmitReport(ctx context.Context, tech *model.Technician, repairID string, report *model.RepairReport) (*model.Repair, error)
}

// RepairHandler serves the repair-job endpoints.
type RepairHandler struct {
	service RepairServiceInterface
}

// NewRepairHandler builds a RepairHandler.
func NewRepairHandler(service RepairServiceInterface) *RepairHandler {
	return &RepairHandler{service: service}
}

// List returns the jobs assigned to the authenticated technician.
// GET /api/reparaciones
func (h *RepairHandler) List(w http.ResponseWriter, r *http.Request) {
	tech, err := middleware.TechnicianFromContext(r.Context())
	if err != nil {
		writeError(w, model.NewUnauthenticatedError())
		return
	}

	repairs, err := h.service.ListAssigned(r.Context(), tech)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{"reparaciones": repairs})
}

// Accept marks a job as accepted.
// POST /api/reparaciones/{id}/aceptar
func (h *RepairHandler) Accept(w http.ResponseWriter, r *http.Request) {
	tech, err := middleware.TechnicianFromContext(r.Context())
	if err != nil {
		writeError(w, model.NewUnauthenticatedError())
		return
	}

	repair, err := h.service.Accept(r.Context(), tech, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{"reparacion": repair})
}

// rejectRequest is the rejection request body.
type rejectRequest struct {
	Reason string `json:"motivo"`
}

// Reject marks a job as rejected and releases the assignment.
// POST /api/reparaciones/{id}/rechazar
func (h *RepairHandler) Reject(w http.ResponseWriter, r *http.Request) {
	tech, err := middleware.TechnicianFromContext(r.Context())
	if err != nil {
		writeError(w, model.NewUnauthenticatedError())
		return
	}

	var req rejectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	repair, err := h.service.Reject(r.Context(), tech, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{"reparacion": repair})
}

// scheduleRequest is the visit-scheduling request body.
type scheduleRequest struct {
	Date string `json:"fecha"`
	Slot string `json:"franja"`
}

// Schedule records the visit date and slot for a job.
// POST /api/reparaciones/{id}/cita
func (h *RepairHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	tech, err := middleware.TechnicianFromContext(r.Context())
	if err != nil {
		writeError(w, model.NewUnauthenticatedError())
		return
	}

	var req scheduleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	visitDate, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, model.NewValidationError("fecha no válida, usa el formato AAAA-MM-DD"))
		return
	}

	repair, err := h.service.Schedule(r.Context(), tech, chi.URLParam(r, "id"), visitDate, req.Slot)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{"reparacion": repair})
}

// SubmitReport stores the repair report and its attachments.
// POST /api/reparaciones/{id}/parte
func (h *RepairHandler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	tech, err := middleware.TechnicianFromContext(r.Context())
	if err != nil {
		writeError(w, model.NewUnauthenticatedError())
		return
	}

	var report model.RepairReport
	if err := decodeBody(r, &report); err != nil {
		writeError(w, err)
		return
	}
	if report.Observations == "" {
		writeError(w, model.NewValidationError("las observaciones son obligatorias"))
		return
	}

	repair, err := h.service.SubmitReport(r.Context(), tech, chi.URLParam(r, "id"), &report)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{"reparacion": repair})
}
