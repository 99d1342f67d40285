package model

import "time"

// Repair state values as stored in the directory backing store.
const (
	RepairStateAssigned  = "Asignada"
	RepairStateAccepted  = "Aceptada"
	RepairStateRejected  = "Rechazada"
	RepairStateScheduled = "Cita programada"
	RepairStateReported  = "Parte enviado"
)

// Repair is a repair job record as exposed to the portal.
type Repair struct {
	RecordID      string     `json:"id"`
	State         string     `json:"estado"`
	ClientName    string     `json:"cliente,omitempty"`
	Address       string     `json:"direccion,omitempty"`
	City          string     `json:"poblacion,omitempty"`
	PostalCode    string     `json:"codigo_postal,omitempty"`
	Province      string     `json:"provincia,omitempty"`
	ChargerModel  string     `json:"modelo_cargador,omitempty"`
	Technician    string     `json:"tecnico,omitempty"`
	VisitDate     *time.Time `json:"fecha_visita,omitempty"`
	CreatedAt     *time.Time `json:"creada,omitempty"`
}

// RepairReport is the multi-step repair report submitted by a technician.
// Free-text fields are sanitized before they reach the backing store.
type RepairReport struct {
	Observations    string       `json:"observaciones"`
	InstalledSerial string       `json:"numero_serie_instalado,omitempty"`
	RemovedSerial   string       `json:"numero_serie_retirado,omitempty"`
	ComponentModel  string       `json:"modelo_componente,omitempty"`
	// ChargerReplaced marks a full charger replacement; together with
	// ProtectorInstalled it decides whether the automation webhook fires.
	ChargerReplaced    bool         `json:"cargador_sustituido"`
	ProtectorInstalled bool         `json:"protector_instalado"`
	Photos             []Attachment `json:"fotos,omitempty"`
	Invoice            *Attachment  `json:"factura,omitempty"`
}

// Attachment is a file uploaded alongside a repair report.
// Content is base64-encoded as required by the backing store's
// attachment endpoint.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}
