package domain

import (
	"sort"
	"time"

	"github.com/diagnosis/staybook/pkg/apperr"
)

type Reservation struct {
	ID           int64     `json:"id"`
	MemberID     int64     `json:"member_id"`
	RoomID       string    `json:"room_id"`
	RoomTypeID   string    `json:"room_type_id,omitempty"`
	RoomTypeName string    `json:"room_type_name,omitempty"`
	CheckIn      Date      `json:"check_in"`
	CheckOut     Date      `json:"check_out"`
	Price        Money     `json:"price"`
	Active       bool      `json:"active"`
	PaymentID    *int64    `json:"payment_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`

	// Filled by list views only.
	Payment  *Payment `json:"payment,omitempty"`
	ReviewID *int64   `json:"review_id,omitempty"`
}

func (r *Reservation) Nights() int { return r.CheckIn.DaysUntil(r.CheckOut) }

func (r *Reservation) Stay() DateRange { return DateRange{CheckIn: r.CheckIn, CheckOut: r.CheckOut} }

// Amount is the locked-in nightly price times the number of nights.
func (r *Reservation) Amount() Money { return r.Price.Times(r.Nights()) }

type ReserveRequest struct {
	RoomTypeID string `json:"room_type_id" validate:"required,max=3"`
	CheckIn    Date   `json:"check_in"`
	CheckOut   Date   `json:"check_out"`
}

// StayRules bounds how far ahead and how long a stay may be.
type StayRules struct {
	MaxAdvanceDays int
	MaxNights      int
}

// ValidateStay records every date problem into fields. The check-out rule is
// only evaluated once check-in itself is valid.
func ValidateStay(today, checkIn, checkOut Date, rules StayRules, fields apperr.FieldErrors) {
	switch {
	case checkIn.IsZero():
		fields.Add("check_in", "is required")
	case checkIn.Before(today):
		fields.Add("check_in", "cannot be in the past")
	case checkIn.After(today.AddDays(rules.MaxAdvanceDays)):
		fields.Add("check_in", "must be within the booking window")
	}

	switch {
	case checkOut.IsZero():
		fields.Add("check_out", "is required")
	case fields.Has("check_in"):
	case !checkOut.After(checkIn):
		fields.Add("check_out", "must be after check-in")
	case checkOut.After(checkIn.AddDays(rules.MaxNights)):
		fields.Add("check_out", "stay is too long")
	}
}

// DateRange is a half-open [CheckIn, CheckOut) interval.
type DateRange struct {
	CheckIn  Date
	CheckOut Date
}

// Overlaps uses the half-open test, so a check-out on another stay's
// check-in day does not collide.
func (r DateRange) Overlaps(o DateRange) bool {
	return r.CheckIn.Before(o.CheckOut) && o.CheckIn.Before(r.CheckOut)
}

// ExpandDays lists every occupied day in [from, to), sorted and without
// duplicates. Check-out days are not occupied.
func ExpandDays(ranges []DateRange, from, to Date) []Date {
	window := DateRange{CheckIn: from, CheckOut: to}
	seen := make(map[string]Date)
	for _, r := range ranges {
		if !r.Overlaps(window) {
			continue
		}
		start, end := r.CheckIn, r.CheckOut
		if start.Before(from) {
			start = from
		}
		if end.After(to) {
			end = to
		}
		for d := start; d.Before(end); d = d.AddDays(1) {
			seen[d.String()] = d
		}
	}
	days := make([]Date, 0, len(seen))
	for _, d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// RoomCalendar is the occupied days of one room in one month.
type RoomCalendar struct {
	RoomID   string `json:"room_id"`
	Month    string `json:"month"`
	Occupied []Date `json:"occupied"`
}

// TypeCalendar marks the days on which every active room of a type is taken.
type TypeCalendar struct {
	RoomTypeID  string `json:"room_type_id"`
	Month       string `json:"month"`
	ActiveRooms int    `json:"active_rooms"`
	FullyBooked []Date `json:"fully_booked"`
}

// ReservationFilter narrows the admin list. Member matches part of the
// member's name; From and To bound check-in and check-out when set.
type ReservationFilter struct {
	Active *bool
	Paid   *bool
	Member string
	From   Date
	To     Date
}
