package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptbook/libs/httpx"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
)

const (
	defaultDays = 7
	maxDays     = 90
)

// Booker is the engine surface the HTTP layer needs.
type Booker interface {
	ListAvailableSlots(ctx context.Context, serviceID, staffID string, from availability.Date, days int) (map[availability.Date][]availability.CandidateSlot, error)
	CheckSlot(ctx context.Context, serviceID, staffID string, start time.Time) (bool, error)
	BookSlot(ctx context.Context, req booking.BookingRequest) (model.Appointment, error)
	Transition(ctx context.Context, appointmentID string, to model.Status, reason string) (model.Appointment, error)
	Today() availability.Date
}

type BookingHandler struct {
	engine  Booker
	catalog booking.Catalog
	logger  *slog.Logger
}

func NewBookingHandler(engine Booker, catalog booking.Catalog, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		engine:  engine,
		catalog: catalog,
		logger:  logger,
	}
}

// Register mounts the customer-facing booking API on mux. public wraps
// every route (CORS, rate limits).
func (h *BookingHandler) Register(mux *http.ServeMux, public httpx.Middleware) {
	if public == nil {
		public = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("/api/v1/public/slots", public(http.HandlerFunc(h.Slots)))
	mux.Handle("/api/v1/public/slots/check", public(http.HandlerFunc(h.Check)))
	mux.Handle("/api/v1/public/book", public(http.HandlerFunc(h.Book)))
}

// RegisterInternal mounts the staff-side status endpoint. It performs no
// caller authentication, so mux must be served on a listener customers
// cannot reach.
func (h *BookingHandler) RegisterInternal(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/appointments/status", h.Status)
}

type slotItem struct {
	LocalTime string `json:"local_time"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type checkResponse struct {
	Available bool `json:"available"`
}

type bookRequest struct {
	ServiceID     string `json:"service_id"`
	StaffID       string `json:"staff_id"`
	StartTime     string `json:"start_time"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	Notes         string `json:"notes"`
	PromoCode     string `json:"promo_code"`
}

type appointmentResponse struct {
	AppointmentID  string  `json:"appointment_id"`
	Status         string  `json:"status"`
	StartTime      string  `json:"start_time"`
	EndTime        string  `json:"end_time"`
	Price          float64 `json:"price"`
	DiscountAmount float64 `json:"discount_amount"`
	FinalPrice     float64 `json:"final_price"`
	PromoCodeID    string  `json:"promo_code_id,omitempty"`
	CancelledAt    string  `json:"cancelled_at,omitempty"`
	CompletedAt    string  `json:"completed_at,omitempty"`
}

type statusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason"`
}

// Slots lists free slots per date. days defaults to 7 and is clamped to the
// service's advance booking window.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	serviceID := strings.TrimSpace(q.Get("service_id"))
	staffID := strings.TrimSpace(q.Get("staff_id"))
	if serviceID == "" || staffID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_input", "service_id and staff_id are required")
		return
	}

	from := h.engine.Today()
	if raw := strings.TrimSpace(q.Get("date")); raw != "" {
		d, err := availability.ParseDate(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_input", "date must be YYYY-MM-DD")
			return
		}
		from = d
	}
	days := defaultDays
	if raw := strings.TrimSpace(q.Get("days")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_input", "days must be a positive integer")
			return
		}
		days = n
	}

	svc, err := h.catalog.GetService(r.Context(), serviceID)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			err = booking.ErrInvalidInput
		}
		h.writeError(w, r, err)
		return
	}
	days = clampDays(days, h.engine.Today(), from, svc.AdvanceDays())

	resp := map[string][]slotItem{}
	if days > 0 {
		byDate, err := h.engine.ListAvailableSlots(r.Context(), serviceID, staffID, from, days)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		for d, slots := range byDate {
			items := make([]slotItem, 0, len(slots))
			for _, s := range slots {
				items = append(items, slotItem{
					LocalTime: s.LocalTime(),
					StartTime: s.StartRFC3339(),
					EndTime:   s.EndRFC3339(),
				})
			}
			sort.Slice(items, func(i, j int) bool { return items[i].StartTime < items[j].StartTime })
			resp[d.String()] = items
		}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// clampDays keeps [from, from+days) inside [today, today+maxAdvance).
func clampDays(days int, today, from availability.Date, maxAdvance int) int {
	if days > maxDays {
		days = maxDays
	}
	if remaining := maxAdvance - today.DaysBetween(from); days > remaining {
		days = remaining
	}
	if days < 0 {
		return 0
	}
	return days
}

func (h *BookingHandler) Check(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(q.Get("start_time")))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_input", "start_time must be RFC 3339")
		return
	}
	ok, err := h.engine.CheckSlot(r.Context(), strings.TrimSpace(q.Get("service_id")), strings.TrimSpace(q.Get("staff_id")), start)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, checkResponse{Available: ok})
}

func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_input", "invalid json body")
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_input", "start_time must be RFC 3339")
		return
	}

	appt, err := h.engine.BookSlot(r.Context(), booking.BookingRequest{
		ServiceID:     strings.TrimSpace(req.ServiceID),
		StaffID:       strings.TrimSpace(req.StaffID),
		Start:         start,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		Notes:         req.Notes,
		PromoCode:     req.PromoCode,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toResponse(appt))
}

func (h *BookingHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_input", "invalid json body")
		return
	}
	appt, err := h.engine.Transition(r.Context(), strings.TrimSpace(req.AppointmentID), model.Status(strings.TrimSpace(req.Status)), strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

func toResponse(appt model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		AppointmentID:  appt.ID,
		Status:         string(appt.Status),
		StartTime:      appt.StartTime.UTC().Format(time.RFC3339),
		EndTime:        appt.EndTime.UTC().Format(time.RFC3339),
		Price:          appt.Price,
		DiscountAmount: appt.DiscountAmount,
		FinalPrice:     appt.FinalPrice,
		PromoCodeID:    appt.PromoCodeID,
	}
	if appt.CancelledAt != nil {
		resp.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
	}
	if appt.CompletedAt != nil {
		resp.CompletedAt = appt.CompletedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (h *BookingHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, booking.ErrInvalidInput):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, booking.ErrSlotNoLongerAvailable):
		httpx.WriteError(w, http.StatusConflict, "slot_unavailable", "slot is no longer available")
	case errors.Is(err, booking.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "appointment not found")
	case errors.Is(err, booking.ErrInvalidTransition):
		httpx.WriteError(w, http.StatusConflict, "invalid_transition", err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"err", err,
		)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
