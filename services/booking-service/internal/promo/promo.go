// Package promo validates promotional codes and computes the discount they
// grant on a booking.
package promo

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/availability"
)

type DiscountType string

const (
	Percentage DiscountType = "percentage"
	Fixed      DiscountType = "fixed"
	// FreeBooking waives the whole price.
	FreeBooking DiscountType = "free_booking"
)

var (
	ErrUnknown       = errors.New("unknown promo code")
	ErrInactive      = errors.New("promo code is no longer active")
	ErrNotYetValid   = errors.New("promo code is not yet valid")
	ErrExpired       = errors.New("promo code has expired")
	ErrExhausted     = errors.New("promo code has reached its usage limit")
	ErrCustomerLimit = errors.New("promo code already used the maximum number of times by this customer")
	ErrBelowMinimum  = errors.New("price is below the promo code minimum")
	ErrWrongBranch   = errors.New("promo code is not valid for this branch")
	ErrWrongService  = errors.New("promo code is not valid for this service")
)

// Code is a promotional code. Zero MaxUses, MaxUsesPerCustomer and
// MaximumDiscount mean unlimited; empty BranchIDs or ServiceIDs match all.
type Code struct {
	ID                 string
	Code               string
	Name               string
	Type               DiscountType
	Value              float64
	ValidFrom          availability.Date
	ValidTo            availability.Date
	MaxUses            int
	CurrentUses        int
	MaxUsesPerCustomer int
	BranchIDs          []string
	ServiceIDs         []string
	Active             bool
	MinimumAmount      float64
	MaximumDiscount    float64
}

// Normalize is the canonical form codes are compared in.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Check validates the code's own configuration.
func (c Code) Check() error {
	switch c.Type {
	case FreeBooking:
	case Percentage:
		if c.Value <= 0 || c.Value > 100 {
			return fmt.Errorf("promo %s: percentage must be in (0, 100], got %v", c.Code, c.Value)
		}
	case Fixed:
		if c.Value <= 0 {
			return fmt.Errorf("promo %s: discount value must be positive, got %v", c.Code, c.Value)
		}
	default:
		return fmt.Errorf("promo %s: unknown discount type %q", c.Code, c.Type)
	}
	if !c.ValidFrom.IsZero() && !c.ValidTo.IsZero() && c.ValidTo.Before(c.ValidFrom) {
		return fmt.Errorf("promo %s: valid_from %s is after valid_to %s", c.Code, c.ValidFrom, c.ValidTo)
	}
	return nil
}

// Usage describes the booking a code is applied to. CustomerUses counts the
// customer's earlier non-cancelled bookings with this code.
type Usage struct {
	Amount       float64
	ServiceID    string
	BranchID     string
	CustomerUses int
	Today        availability.Date
}

type Discount struct {
	Amount     float64
	FinalPrice float64
}

// Apply checks the code against u and returns the discount it grants.
func (c Code) Apply(u Usage) (Discount, error) {
	if err := c.Check(); err != nil {
		return Discount{}, err
	}
	switch {
	case !c.Active:
		return Discount{}, ErrInactive
	case !c.ValidFrom.IsZero() && u.Today.Before(c.ValidFrom):
		return Discount{}, ErrNotYetValid
	case !c.ValidTo.IsZero() && u.Today.After(c.ValidTo):
		return Discount{}, ErrExpired
	case c.MaxUses > 0 && c.CurrentUses >= c.MaxUses:
		return Discount{}, ErrExhausted
	case c.MaxUsesPerCustomer > 0 && u.CustomerUses >= c.MaxUsesPerCustomer:
		return Discount{}, ErrCustomerLimit
	case c.MinimumAmount > 0 && u.Amount < c.MinimumAmount:
		return Discount{}, fmt.Errorf("%w: minimum %.2f", ErrBelowMinimum, c.MinimumAmount)
	case len(c.BranchIDs) > 0 && u.BranchID != "" && !contains(c.BranchIDs, u.BranchID):
		return Discount{}, ErrWrongBranch
	case len(c.ServiceIDs) > 0 && !contains(c.ServiceIDs, u.ServiceID):
		return Discount{}, ErrWrongService
	}

	amount := math.Max(u.Amount, 0)
	var off float64
	switch c.Type {
	case FreeBooking:
		off = amount
	case Percentage:
		off = amount * c.Value / 100
		if c.MaximumDiscount > 0 {
			off = math.Min(off, c.MaximumDiscount)
		}
	case Fixed:
		off = math.Min(c.Value, amount)
	}
	off = cents(off)
	return Discount{Amount: off, FinalPrice: cents(amount - off)}, nil
}

func cents(v float64) float64 {
	return math.Round(v*100) / 100
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
