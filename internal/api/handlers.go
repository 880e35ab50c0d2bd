package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	redisclient "github.com/clinicore/scheduling/internal/redis"
	"github.com/clinicore/scheduling/internal/scheduling"
)

// clinicID reads the tenant from the X-Clinic-ID header. Authentication
// and tenant authorization happen upstream; by the time a request lands
// here the header is trusted.
func clinicID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get("X-Clinic-ID"))
	return id, err == nil
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, s)
}

func parsePrice(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func createAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinic, ok := clinicID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "X-Clinic-ID must be a valid UUID")
			return
		}

		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		practitionerID, err := uuid.Parse(req.PractitionerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}
		roomID, err := uuid.Parse(req.RoomID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_room_id", "room_id must be a valid UUID")
			return
		}
		serviceID, err := uuid.Parse(req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}
		customerID, err := uuid.Parse(req.CustomerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_customer_id", "customer_id must be a valid UUID")
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		start, err := scheduling.ParseTimeOfDay(req.Start)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be HH:MM")
			return
		}
		end, err := scheduling.ParseTimeOfDay(req.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end", "end must be HH:MM")
			return
		}
		price, err := parsePrice(req.Price)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_price", "price must be a decimal number")
			return
		}

		appt, err := svc.Create(r.Context(), scheduling.CreateRequest{
			ClinicID:       clinic,
			PractitionerID: practitionerID,
			RoomID:         roomID,
			ServiceID:      serviceID,
			CustomerID:     customerID,
			Date:           date,
			Start:          start,
			End:            end,
			Notes:          req.Notes,
			Price:          price,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, appointmentResponse(*appt))
	}
}

func getAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinic, ok := clinicID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "X-Clinic-ID must be a valid UUID")
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		detail, err := svc.Get(r.Context(), clinic, id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, detailResponse(*detail))
	}
}

func updateAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinic, ok := clinicID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "X-Clinic-ID must be a valid UUID")
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req UpdateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		update := scheduling.UpdateRequest{Notes: req.Notes}

		if req.PractitionerID != nil {
			pid, err := uuid.Parse(*req.PractitionerID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
				return
			}
			update.PractitionerID = &pid
		}
		if req.RoomID != nil {
			rid, err := uuid.Parse(*req.RoomID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_room_id", "room_id must be a valid UUID")
				return
			}
			update.RoomID = &rid
		}
		if req.ServiceID != nil {
			sid, err := uuid.Parse(*req.ServiceID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
				return
			}
			update.ServiceID = &sid
		}
		if req.CustomerID != nil {
			cid, err := uuid.Parse(*req.CustomerID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_customer_id", "customer_id must be a valid UUID")
				return
			}
			update.CustomerID = &cid
		}
		if req.Date != nil {
			date, err := parseDate(*req.Date)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
			update.Date = &date
		}
		if req.Start != nil {
			start, err := scheduling.ParseTimeOfDay(*req.Start)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_start", "start must be HH:MM")
				return
			}
			update.Start = &start
		}
		if req.End != nil {
			end, err := scheduling.ParseTimeOfDay(*req.End)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_end", "end must be HH:MM")
				return
			}
			update.End = &end
		}
		if req.Price != nil {
			price, err := parsePrice(req.Price)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_price", "price must be a decimal number")
				return
			}
			update.Price = &price
		}

		appt, err := svc.Update(r.Context(), clinic, id, update)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(*appt))
	}
}

func updateStatusHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinic, ok := clinicID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "X-Clinic-ID must be a valid UUID")
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.UpdateStatus(r.Context(), clinic, id, scheduling.Status(req.Status))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(*appt))
	}
}

func deleteAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinic, ok := clinicID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "X-Clinic-ID must be a valid UUID")
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		if err := svc.Delete(r.Context(), clinic, id); err != nil {
			handleServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func listAppointmentsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinic, ok := clinicID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "X-Clinic-ID must be a valid UUID")
			return
		}

		q := r.URL.Query()
		from, err := parseDate(q.Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
			return
		}
		to, err := parseDate(q.Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
			return
		}

		var filters scheduling.ListFilters
		if s := q.Get("status"); s != "" {
			status := scheduling.Status(s)
			if !status.Valid() {
				writeError(w, http.StatusBadRequest, "invalid_status", "unknown status "+s)
				return
			}
			filters.Status = &status
		}
		if s := q.Get("practitioner_id"); s != "" {
			pid, err := uuid.Parse(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
				return
			}
			filters.PractitionerID = &pid
		}
		filters.Search = q.Get("search")

		page := scheduling.Page{
			Number: intQuery(q.Get("page"), 1),
			Size:   intQuery(q.Get("per_page"), 0),
		}.Normalized()

		items, total, err := svc.ListForPeriod(r.Context(), clinic, from, to, filters, page)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := ListAppointmentsResponse{
			Items:   make([]AppointmentResponse, 0, len(items)),
			Total:   total,
			Page:    page.Number,
			PerPage: page.Size,
		}
		for _, item := range items {
			resp.Items = append(resp.Items, detailResponse(item))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func calendarHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinic, ok := clinicID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "X-Clinic-ID must be a valid UUID")
			return
		}

		q := r.URL.Query()
		from, err := parseDate(q.Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
			return
		}
		to, err := parseDate(q.Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
			return
		}

		days, err := svc.Calendar(r.Context(), clinic, from, to)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]CalendarDayResponse, 0, len(days))
		for _, day := range days {
			out := CalendarDayResponse{Date: day.Date.Format(time.DateOnly)}
			for _, appt := range day.Appointments {
				out.Appointments = append(out.Appointments, detailResponse(appt))
			}
			resp = append(resp, out)
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func checkConflictsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinic, ok := clinicID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "X-Clinic-ID must be a valid UUID")
			return
		}

		var req CheckConflictsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		practitionerID, err := uuid.Parse(req.PractitionerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}
		roomID, err := uuid.Parse(req.RoomID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_room_id", "room_id must be a valid UUID")
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		start, err := scheduling.ParseTimeOfDay(req.Start)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be HH:MM")
			return
		}
		end, err := scheduling.ParseTimeOfDay(req.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end", "end must be HH:MM")
			return
		}

		cand := scheduling.Candidate{
			ClinicID:       clinic,
			PractitionerID: practitionerID,
			RoomID:         roomID,
			Date:           date,
			Start:          start,
			End:            end,
		}
		if req.ExcludeID != nil {
			excludeID, err := uuid.Parse(*req.ExcludeID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_exclude_id", "exclude_id must be a valid UUID")
				return
			}
			cand.ExcludeID = &excludeID
		}

		conflicts, err := svc.CheckConflicts(r.Context(), cand)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ConflictsResponse{Conflicts: conflicts})
	}
}

func availableSlotsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinic, ok := clinicID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "X-Clinic-ID must be a valid UUID")
			return
		}
		practitionerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "id must be a valid UUID")
			return
		}

		q := r.URL.Query()
		date, err := parseDate(q.Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		duration, err := strconv.Atoi(q.Get("duration"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be a number of minutes")
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), clinic, practitionerID, date, duration)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, SlotsResponse{
			Date:            date.Format(time.DateOnly),
			DurationMinutes: duration,
			Slots:           slots,
		})
	}
}

func statsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinic, ok := clinicID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "X-Clinic-ID must be a valid UUID")
			return
		}

		q := r.URL.Query()
		from, err := parseDate(q.Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
			return
		}
		to, err := parseDate(q.Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
			return
		}

		stats, err := svc.Stats(r.Context(), clinic, from, to)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := StatsResponse{
			Total:    stats.Total,
			ByStatus: make(map[string]int, len(stats.ByStatus)),
			Today:    stats.Today,
			Revenue:  stats.Revenue.StringFixed(2),
		}
		for status, count := range stats.ByStatus {
			resp.ByStatus[string(status)] = count
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func intQuery(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func handleServiceError(w http.ResponseWriter, err error) {
	var (
		validationErr *scheduling.ValidationError
		conflictErr   *scheduling.ConflictError
		transitionErr *scheduling.InvalidTransitionError
	)

	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", validationErr.Error())
	case errors.As(err, &conflictErr):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     "appointment_conflict",
			Details:   conflictErr.Error(),
			Conflicts: conflictErr.Conflicts,
		})
	case errors.As(err, &transitionErr):
		writeError(w, http.StatusConflict, "invalid_status_transition", transitionErr.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrResourceBusy),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "resource_busy", "practitioner or room is currently being booked, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
