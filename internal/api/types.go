package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/clinicore/scheduling/internal/scheduling"
)

type CreateAppointmentRequest struct {
	PractitionerID string  `json:"practitioner_id"`
	RoomID         string  `json:"room_id"`
	ServiceID      string  `json:"service_id"`
	CustomerID     string  `json:"customer_id"`
	Date           string  `json:"date"`  // 2006-01-02
	Start          string  `json:"start"` // 15:04
	End            string  `json:"end"`   // 15:04
	Notes          string  `json:"notes,omitempty"`
	Price          *string `json:"price,omitempty"`
}

type UpdateAppointmentRequest struct {
	PractitionerID *string `json:"practitioner_id,omitempty"`
	RoomID         *string `json:"room_id,omitempty"`
	ServiceID      *string `json:"service_id,omitempty"`
	CustomerID     *string `json:"customer_id,omitempty"`
	Date           *string `json:"date,omitempty"`
	Start          *string `json:"start,omitempty"`
	End            *string `json:"end,omitempty"`
	Notes          *string `json:"notes,omitempty"`
	Price          *string `json:"price,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type CheckConflictsRequest struct {
	PractitionerID string  `json:"practitioner_id"`
	RoomID         string  `json:"room_id"`
	Date           string  `json:"date"`
	Start          string  `json:"start"`
	End            string  `json:"end"`
	ExcludeID      *string `json:"exclude_id,omitempty"`
}

type AppointmentResponse struct {
	ID               string  `json:"id"`
	PractitionerID   string  `json:"practitioner_id"`
	RoomID           string  `json:"room_id"`
	ServiceID        string  `json:"service_id"`
	CustomerID       string  `json:"customer_id"`
	Date             string  `json:"date"`
	Start            string  `json:"start"`
	End              string  `json:"end"`
	Status           string  `json:"status"`
	Notes            string  `json:"notes,omitempty"`
	Price            *string `json:"price,omitempty"`
	PractitionerName string  `json:"practitioner_name,omitempty"`
	CustomerName     string  `json:"customer_name,omitempty"`
	RoomName         string  `json:"room_name,omitempty"`
	ServiceName      string  `json:"service_name,omitempty"`
}

type ListAppointmentsResponse struct {
	Items   []AppointmentResponse `json:"items"`
	Total   int                   `json:"total"`
	Page    int                   `json:"page"`
	PerPage int                   `json:"per_page"`
}

type CalendarDayResponse struct {
	Date         string                `json:"date"`
	Appointments []AppointmentResponse `json:"appointments"`
}

type ConflictsResponse struct {
	Conflicts []scheduling.Conflict `json:"conflicts"`
}

type SlotsResponse struct {
	Date            string                `json:"date"`
	DurationMinutes int                   `json:"duration_minutes"`
	Slots           []scheduling.TimeSlot `json:"slots"`
}

type StatsResponse struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	Today    int            `json:"today"`
	Revenue  string         `json:"revenue"`
}

type ErrorResponse struct {
	Error     string                `json:"error"`
	Details   string                `json:"details,omitempty"`
	Conflicts []scheduling.Conflict `json:"conflicts,omitempty"`
}

func appointmentResponse(a scheduling.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:             a.ID.String(),
		PractitionerID: a.PractitionerID.String(),
		RoomID:         a.RoomID.String(),
		ServiceID:      a.ServiceID.String(),
		CustomerID:     a.CustomerID.String(),
		Date:           a.Date.Format(time.DateOnly),
		Start:          a.Start.String(),
		End:            a.End.String(),
		Status:         string(a.Status),
		Notes:          a.Notes,
	}
	if a.Price.Valid {
		price := a.Price.Decimal.StringFixed(2)
		resp.Price = &price
	}
	return resp
}

func detailResponse(d scheduling.AppointmentDetail) AppointmentResponse {
	resp := appointmentResponse(d.Appointment)
	resp.PractitionerName = d.PractitionerName
	resp.CustomerName = d.CustomerName
	resp.RoomName = d.RoomName
	resp.ServiceName = d.ServiceName
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
