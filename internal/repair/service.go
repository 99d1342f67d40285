// Package repair implements the repair-job operations the portal exposes:
// listing assigned jobs, accepting/rejecting them, scheduling visits and
// submitting repair reports.
package repair

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chargefix/portal/internal/airtable"
	"github.com/chargefix/portal/internal/model"
	"github.com/chargefix/portal/internal/webhook"
)

// Field names in the repairs table.
const (
	fieldState           = "Estado"
	fieldAssignedID      = "ID técnico asignado"
	fieldAssignedName    = "Técnico asignado"
	fieldPreviousTechs   = "Técnicos anteriores"
	fieldRejectionReason = "Motivo rechazo"
	fieldClient          = "Cliente"
	fieldAddress         = "Dirección"
	fieldCity            = "Población"
	fieldPostalCode      = "Código postal"
	fieldProvince        = "Provincia"
	fieldChargerModel    = "Modelo cargador"
	fieldVisitDate       = "Fecha visita"
	fieldVisitSlot       = "Franja horaria"
	fieldObservations    = "Observaciones"
	fieldInstalledSerial = "Número serie instalado"
	fieldRemovedSerial   = "Número serie retirado"
	fieldComponentModel  = "Modelo componente"
	fieldPhotos          = "Fotos"
	fieldInvoice         = "Factura"
)

// StoreClient is the Airtable subset the repair operations need.
type StoreClient interface {
	ListRecords(ctx context.Context, table string, opts airtable.ListOptions) ([]airtable.Record, error)
	GetRecord(ctx context.Context, table, id string) (*airtable.Record, error)
	UpdateRecord(ctx context.Context, table, id string, fields map[string]any) (*airtable.Record, error)
	UploadAttachment(ctx context.Context, recordID, field, filename, contentType, base64Content string) error
}

// Sanitizer strips markup from technician-entered free text.
type Sanitizer interface {
	Sanitize(raw string) string
}

// Notifier delivers automation events.
type Notifier interface {
	Notify(event webhook.Event)
}

// Service implements the repair operations.
type Service struct {
	store     StoreClient
	table     string
	sanitizer Sanitizer
	notifier  Notifier
	logger    *slog.Logger
}

// NewService builds a Service over the given repairs table.
func NewService(store StoreClient, table string, sanitizer Sanitizer, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		table:     table,
		sanitizer: sanitizer,
		notifier:  notifier,
		logger:    logger,
	}
}

// ListAssigned returns the jobs assigned to the technician, newest first.
func (s *Service) ListAssigned(ctx context.Context, tech *model.Technician) ([]model.Repair, error) {
	records, err := s.store.ListRecords(ctx, s.table, airtable.ListOptions{
		FilterByFormula: fmt.Sprintf(`{%s} = "%s"`, fieldAssignedID, escapeFormulaValue(tech.RecordID)),
		SortField:       fieldVisitDate,
		SortDesc:        true,
	})
	if err != nil {
		s.logger.Error("failed to list assigned repairs",
			slog.String("technician_id", tech.IdentityID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewConfigurationError()
	}

	repairs := make([]model.Repair, 0, len(records))
	for _, rec := range records {
		repairs = append(repairs, repairFromRecord(rec))
	}
	return repairs, nil
}

// Accept marks an assigned job as accepted.
func (s *Service) Accept(ctx context.Context, tech *model.Technician, repairID string) (*model.Repair, error) {
	if _, err := s.ownedRecord(ctx, tech, repairID); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateRecord(ctx, s.table, repairID, map[string]any{
		fieldState: model.RepairStateAccepted,
	})
	if err != nil {
		return nil, s.storeError("accept repair", repairID, err)
	}

	result := repairFromRecord(*updated)
	return &result, nil
}

// Reject marks a job as rejected, moves the current technician into the
// prior-technicians history and clears the assignment, so dispatchers can
// reassign without losing track of who already declined.
func (s *Service) Reject(ctx context.Context, tech *model.Technician, repairID, reason string) (*model.Repair, error) {
	rec, err := s.ownedRecord(ctx, tech, repairID)
	if err != nil {
		return nil, err
	}

	previous := stringField(*rec, fieldPreviousTechs)
	current := stringField(*rec, fieldAssignedName)
	if current == "" {
		current = tech.Name
	}
	if previous == "" {
		previous = current
	} else {
		previous = previous + ", " + current
	}

	fields := map[string]any{
		fieldState:         model.RepairStateRejected,
		fieldPreviousTechs: previous,
		fieldAssignedName:  "",
		fieldAssignedID:    "",
	}
	if reason != "" {
		fields[fieldRejectionReason] = s.sanitizer.Sanitize(reason)
	}

	updated, err := s.store.UpdateRecord(ctx, s.table, repairID, fields)
	if err != nil {
		return nil, s.storeError("reject repair", repairID, err)
	}

	s.logger.Info("repair rejected",
		slog.String("repair_id", repairID),
		slog.String("technician_id", tech.IdentityID),
	)

	result := repairFromRecord(*updated)
	return &result, nil
}

// Schedule records the visit date and slot for a job.
func (s *Service) Schedule(ctx context.Context, tech *model.Technician, repairID string, visitDate time.Time, slot string) (*model.Repair, error) {
	if _, err := s.ownedRecord(ctx, tech, repairID); err != nil {
		return nil, err
	}

	fields := map[string]any{
		fieldState:     model.RepairStateScheduled,
		fieldVisitDate: visitDate.Format("2006-01-02"),
	}
	if slot != "" {
		fields[fieldVisitSlot] = slot
	}

	updated, err := s.store.UpdateRecord(ctx, s.table, repairID, fields)
	if err != nil {
		return nil, s.storeError("schedule repair", repairID, err)
	}

	result := repairFromRecord(*updated)
	return &result, nil
}

// SubmitReport stores the repair report on the job record, uploads the
// attachments, and fires the automation webhook when the report indicates
// a charger replacement or a protective-component installation.
func (s *Service) SubmitReport(ctx context.Context, tech *model.Technician, repairID string, report *model.RepairReport) (*model.Repair, error) {
	rec, err := s.ownedRecord(ctx, tech, repairID)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{
		fieldState:        model.RepairStateReported,
		fieldObservations: s.sanitizer.Sanitize(report.Observations),
	}
	if report.InstalledSerial != "" {
		fields[fieldInstalledSerial] = report.InstalledSerial
	}
	if report.RemovedSerial != "" {
		fields[fieldRemovedSerial] = report.RemovedSerial
	}
	if report.ComponentModel != "" {
		fields[fieldComponentModel] = report.ComponentModel
	}

	updated, err := s.store.UpdateRecord(ctx, s.table, repairID, fields)
	if err != nil {
		return nil, s.storeError("submit repair report", repairID, err)
	}

	for _, photo := range report.Photos {
		if err := s.store.UploadAttachment(ctx, repairID, fieldPhotos, photo.Filename, photo.ContentType, photo.Content); err != nil {
			s.logger.Error("failed to upload report photo",
				slog.String("repair_id", repairID),
				slog.String("filename", photo.Filename),
				slog.String("error", err.Error()),
			)
			return nil, model.NewConfigurationError()
		}
	}
	if report.Invoice != nil {
		if err := s.store.UploadAttachment(ctx, repairID, fieldInvoice, report.Invoice.Filename, report.Invoice.ContentType, report.Invoice.Content); err != nil {
			s.logger.Error("failed to upload report invoice",
				slog.String("repair_id", repairID),
				slog.String("error", err.Error()),
			)
			return nil, model.NewConfigurationError()
		}
	}

	if report.ChargerReplaced || report.ProtectorInstalled {
		s.notifier.Notify(webhook.Event{
			RepairID:        repairID,
			Technician:      tech.Name,
			InstalledSerial: report.InstalledSerial,
			RemovedSerial:   report.RemovedSerial,
			ComponentModel:  report.ComponentModel,
			ClientAddress:   stringField(*rec, fieldAddress),
			ClientCity:      stringField(*rec, fieldCity),
			ClientPostal:    stringField(*rec, fieldPostalCode),
			ClientProvince:  stringField(*rec, fieldProvince),
		})
	}

	result := repairFromRecord(*updated)
	return &result, nil
}

// ownedRecord fetches a repair and checks it is assigned to the
// technician. Missing and foreign records both come back as not-found so
// the response does not disclose other technicians' jobs.
func (s *Service) ownedRecord(ctx context.Context, tech *model.Technician, repairID string) (*airtable.Record, error) {
	rec, err := s.store.GetRecord(ctx, s.table, repairID)
	if err != nil {
		return nil, s.storeError("fetch repair", repairID, err)
	}
	if stringField(*rec, fieldAssignedID) != tech.RecordID {
		return nil, model.NewRepairNotFoundError(repairID)
	}
	return rec, nil
}

// storeError maps backing-store failures onto the error taxonomy.
func (s *Service) storeError(op, repairID string, err error) *model.APIError {
	var statusErr *airtable.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == 404 {
		return model.NewRepairNotFoundError(repairID)
	}
	s.logger.Error("repair store operation failed",
		slog.String("op", op),
		slog.String("repair_id", repairID),
		slog.String("error", err.Error()),
	)
	return model.NewConfigurationError()
}

// repairFromRecord maps an Airtable record onto a Repair.
func repairFromRecord(rec airtable.Record) model.Repair {
	r := model.Repair{
		RecordID:     rec.ID,
		State:        stringField(rec, fieldState),
		ClientName:   stringField(rec, fieldClient),
		Address:      stringField(rec, fieldAddress),
		City:         stringField(rec, fieldCity),
		PostalCode:   stringField(rec, fieldPostalCode),
		Province:     stringField(rec, fieldProvince),
		ChargerModel: stringField(rec, fieldChargerModel),
		Technician:   stringField(rec, fieldAssignedName),
	}
	if t, ok := parseDate(stringField(rec, fieldVisitDate)); ok {
		r.VisitDate = &t
	}
	if t, ok := parseDate(rec.CreatedTime); ok {
		r.CreatedAt = &t
	}
	return r
}

// parseDate accepts both date-only and RFC 3339 values.
func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// escapeFormulaValue escapes double quotes for a filter formula literal.
func escapeFormulaValue(v string) string {
	return strings.ReplaceAll(v, `"`, `\"`)
}

func stringField(rec airtable.Record, key string) string {
	if v, ok := rec.Fields[key].(string); ok {
		return v
	}
	return ""
}
