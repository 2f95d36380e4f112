package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/diagnosis/staybook/internal/utils"
	"github.com/diagnosis/staybook/pkg/apperr"
	"github.com/diagnosis/staybook/pkg/config"
	"github.com/diagnosis/staybook/pkg/events"
	"github.com/diagnosis/staybook/pkg/logger"
	"github.com/diagnosis/staybook/pkg/validate"
	"github.com/diagnosis/staybook/services/booking/internal/domain"
	"github.com/diagnosis/staybook/services/booking/internal/repository"
)

// maxReserveAttempts bounds retries after losing a room to a concurrent
// booking.
const maxReserveAttempts = 3

var errNoRoom = apperr.BusinessRule(apperr.CodeNoRoomAvailable, "No room available for the selected dates")

type ReservationService interface {
	Reserve(ctx context.Context, memberID int64, req domain.ReserveRequest) (*domain.Reservation, error)
	Get(ctx context.Context, actor Actor, id int64) (*domain.Reservation, error)
	ListMine(ctx context.Context, memberID int64) ([]domain.Reservation, error)
	List(ctx context.Context, filter domain.ReservationFilter) ([]domain.Reservation, error)
	ToggleActive(ctx context.Context, actor Actor, id int64) (*domain.Reservation, error)
}

type reservationService struct {
	reservations repository.ReservationRepository
	roomTypes    repository.RoomTypeRepository
	availability AvailabilityService
	eventBus     events.Publisher
	rules        domain.StayRules
	calendar
}

func NewReservationService(
	reservations repository.ReservationRepository,
	roomTypes repository.RoomTypeRepository,
	availability AvailabilityService,
	eventBus events.Publisher,
	cfg *config.Config,
	clock Clock,
) ReservationService {
	return &reservationService{
		reservations: reservations,
		roomTypes:    roomTypes,
		availability: availability,
		eventBus:     eventBus,
		rules:        domain.StayRules{MaxAdvanceDays: cfg.Booking.MaxAdvanceDays, MaxNights: cfg.Booking.MaxNights},
		calendar:     newCalendar(cfg, clock),
	}
}

// Reserve validates the request, picks a free room and stores the
// reservation with its pending payment. The overlap constraint in storage is
// the final arbiter; losing a race retries with a fresh room.
func (s *reservationService) Reserve(ctx context.Context, memberID int64, req domain.ReserveRequest) (*domain.Reservation, error) {
	req.RoomTypeID = utils.NormalizeCode(req.RoomTypeID)
	fields := validate.Struct(req)

	var rt *domain.RoomType
	if !fields.Has("room_type_id") {
		var err error
		rt, err = s.roomTypes.GetByID(ctx, req.RoomTypeID)
		if err != nil {
			return nil, fmt.Errorf("get room type: %w", err)
		}
		if rt == nil {
			fields.Add("room_type_id", "room type not found")
		}
	}
	domain.ValidateStay(s.today(), req.CheckIn, req.CheckOut, s.rules, fields)
	if err := fields.Err(); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxReserveAttempts; attempt++ {
		room, err := s.availability.FindAvailableRoom(ctx, rt.ID, req.CheckIn, req.CheckOut)
		if err != nil {
			return nil, err
		}
		if room == nil {
			return nil, errNoRoom
		}

		res := &domain.Reservation{
			MemberID:     memberID,
			RoomID:       room.ID,
			RoomTypeID:   rt.ID,
			RoomTypeName: rt.Name,
			CheckIn:      req.CheckIn,
			CheckOut:     req.CheckOut,
			Price:        rt.Price,
		}
		pay, err := s.reservations.CreateWithPayment(ctx, res)
		if errors.Is(err, repository.ErrRoomTaken) {
			logger.InfoContext(ctx, "Room taken concurrently, retrying", "room_id", room.ID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create reservation: %w", err)
		}
		res.Payment = pay

		ctx = logger.WithReservation(ctx, res.ID)
		logger.InfoContext(ctx, "Reservation created", "room_id", res.RoomID, "amount", pay.Amount.String())
		publish(ctx, s.eventBus, events.ReservationCreated, events.ReservationCreatedEvent{
			ReservationID: res.ID,
			PaymentID:     pay.ID,
			MemberID:      memberID,
			RoomID:        res.RoomID,
			CheckIn:       res.CheckIn.String(),
			CheckOut:      res.CheckOut.String(),
			Amount:        pay.Amount.String(),
			CreatedAt:     res.CreatedAt,
		})
		return res, nil
	}
	return nil, errNoRoom
}

func (s *reservationService) Get(ctx context.Context, actor Actor, id int64) (*domain.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	if res == nil || !actor.Owns(res.MemberID) {
		return nil, apperr.NotFound("reservation not found")
	}
	return res, nil
}

func (s *reservationService) ListMine(ctx context.Context, memberID int64) ([]domain.Reservation, error) {
	list, err := s.reservations.ListByMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return list, nil
}

func (s *reservationService) List(ctx context.Context, filter domain.ReservationFilter) ([]domain.Reservation, error) {
	filter.Member = strings.TrimSpace(filter.Member)
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, apperr.Validation(map[string]string{"to": "must not be before from"})
	}

	list, err := s.reservations.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return list, nil
}

// ToggleActive is the admin override: it flips the flag without an
// availability check. Storage still refuses a reactivation that would
// overlap another active stay on the same room.
func (s *reservationService) ToggleActive(ctx context.Context, actor Actor, id int64) (*domain.Reservation, error) {
	res, err := s.reservations.ToggleActive(ctx, id)
	if errors.Is(err, repository.ErrRoomTaken) {
		return nil, apperr.BusinessRule(apperr.CodeNoRoomAvailable,
			"the room is already reserved for these dates; the reservation cannot be reactivated")
	}
	if err != nil {
		return nil, fmt.Errorf("toggle reservation: %w", err)
	}
	if res == nil {
		return nil, apperr.NotFound("reservation not found")
	}

	ctx = logger.WithReservation(ctx, res.ID)
	logger.InfoContext(ctx, "Reservation toggled", "active", res.Active)
	publish(ctx, s.eventBus, events.ReservationToggled, events.ReservationToggledEvent{
		ReservationID: res.ID,
		Active:        res.Active,
		ToggledBy:     actor.ID,
		ToggledAt:     s.now(),
	})
	return res, nil
}
