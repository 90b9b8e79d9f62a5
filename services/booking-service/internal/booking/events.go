package booking

import (
	"time"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/outbox"
)

const (
	AggregateAppointment = "appointment"

	EventAppointmentBooked        = "booking.appointment.booked.v1"
	EventAppointmentStatusChanged = "booking.appointment.status_changed.v1"
)

type appointmentBookedPayload struct {
	AppointmentID string  `json:"appointment_id"`
	ServiceID     string  `json:"service_id"`
	StaffID       string  `json:"staff_id"`
	CustomerName  string  `json:"customer_name"`
	CustomerEmail string  `json:"customer_email,omitempty"`
	CustomerPhone string  `json:"customer_phone,omitempty"`
	StartTime     string  `json:"start_time"`
	EndTime       string  `json:"end_time"`
	Status        string  `json:"status"`
	Timezone      string  `json:"timezone"`
	Price         float64 `json:"price"`
	Discount      float64 `json:"discount_amount,omitempty"`
	FinalPrice    float64 `json:"final_price"`
	PromoCodeID   string  `json:"promo_code_id,omitempty"`
}

type statusChangedPayload struct {
	AppointmentID string `json:"appointment_id"`
	StaffID       string `json:"staff_id"`
	From          string `json:"from"`
	To            string `json:"to"`
	Reason        string `json:"reason,omitempty"`
	StartTime     string `json:"start_time"`
	ChangedAt     string `json:"changed_at"`
}

func bookedEvent(appt model.Appointment, tz string) (outbox.Event, error) {
	return outbox.NewEvent(AggregateAppointment, appt.ID, EventAppointmentBooked, appointmentBookedPayload{
		AppointmentID: appt.ID,
		ServiceID:     appt.ServiceID,
		StaffID:       appt.StaffID,
		CustomerName:  appt.CustomerName,
		CustomerEmail: appt.CustomerEmail,
		CustomerPhone: appt.CustomerPhone,
		StartTime:     appt.StartTime.UTC().Format(time.RFC3339),
		EndTime:       appt.EndTime.UTC().Format(time.RFC3339),
		Status:        string(appt.Status),
		Timezone:      tz,
		Price:         appt.Price,
		Discount:      appt.DiscountAmount,
		FinalPrice:    appt.FinalPrice,
		PromoCodeID:   appt.PromoCodeID,
	})
}

func statusChangedEvent(appt model.Appointment, from model.Status, reason string, at time.Time) (outbox.Event, error) {
	return outbox.NewEvent(AggregateAppointment, appt.ID, EventAppointmentStatusChanged, statusChangedPayload{
		AppointmentID: appt.ID,
		StaffID:       appt.StaffID,
		From:          string(from),
		To:            string(appt.Status),
		Reason:        reason,
		StartTime:     appt.StartTime.UTC().Format(time.RFC3339),
		ChangedAt:     at.UTC().Format(time.RFC3339),
	})
}
