package service

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/diagnosis/staybook/internal/utils"
	"github.com/diagnosis/staybook/pkg/apperr"
	"github.com/diagnosis/staybook/services/booking/internal/domain"
	"github.com/diagnosis/staybook/services/booking/internal/repository"
)

type AvailabilityService interface {
	FindAvailableRoom(ctx context.Context, typeID string, checkIn, checkOut domain.Date) (*domain.Room, error)
	RoomCalendar(ctx context.Context, roomID, month string) (*domain.RoomCalendar, error)
	TypeCalendar(ctx context.Context, typeID, month string) (*domain.TypeCalendar, error)
	// RoomsCalendar is the occupancy grid of every room, ordered by room id.
	RoomsCalendar(ctx context.Context, month string) ([]domain.RoomCalendar, error)
}

type availabilityService struct {
	reservations repository.ReservationRepository
	rooms        repository.RoomRepository
	roomTypes    repository.RoomTypeRepository
}

func NewAvailabilityService(
	reservations repository.ReservationRepository,
	rooms repository.RoomRepository,
	roomTypes repository.RoomTypeRepository,
) AvailabilityService {
	return &availabilityService{reservations: reservations, rooms: rooms, roomTypes: roomTypes}
}

func (s *availabilityService) FindAvailableRoom(ctx context.Context, typeID string, checkIn, checkOut domain.Date) (*domain.Room, error) {
	room, err := s.reservations.FindAvailableRoom(ctx, typeID, checkIn, checkOut)
	if err != nil {
		return nil, fmt.Errorf("find available room: %w", err)
	}
	return room, nil
}

func parseMonth(month string) (domain.Date, domain.Date, error) {
	start, end, err := domain.ParseMonth(month)
	if err != nil {
		return domain.Date{}, domain.Date{}, apperr.Validation(map[string]string{"month": "must be YYYY-MM"})
	}
	return start, end, nil
}

func (s *availabilityService) RoomCalendar(ctx context.Context, roomID, month string) (*domain.RoomCalendar, error) {
	roomID = utils.NormalizeCode(roomID)
	start, end, err := parseMonth(month)
	if err != nil {
		return nil, err
	}

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	if room == nil {
		return nil, apperr.NotFound("room not found")
	}

	ranges, err := s.reservations.OccupiedRanges(ctx, roomID, start, end)
	if err != nil {
		return nil, fmt.Errorf("occupied dates: %w", err)
	}
	return &domain.RoomCalendar{
		RoomID:   roomID,
		Month:    month,
		Occupied: domain.ExpandDays(ranges, start, end),
	}, nil
}

// TypeCalendar lists the days of the month on which no active room of the
// type is free.
func (s *availabilityService) TypeCalendar(ctx context.Context, typeID, month string) (*domain.TypeCalendar, error) {
	typeID = utils.NormalizeCode(typeID)
	start, end, err := parseMonth(month)
	if err != nil {
		return nil, err
	}

	rt, err := s.roomTypes.GetByID(ctx, typeID)
	if err != nil {
		return nil, fmt.Errorf("get room type: %w", err)
	}
	if rt == nil {
		return nil, apperr.NotFound("room type not found")
	}

	var (
		active int
		byRoom map[string][]domain.DateRange
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		active, err = s.rooms.CountActive(gctx, typeID)
		return err
	})
	g.Go(func() error {
		var err error
		byRoom, err = s.reservations.OccupiedRangesByType(gctx, typeID, start, end)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("type calendar: %w", err)
	}

	occupied := make(map[string]int)
	for _, ranges := range byRoom {
		for _, day := range domain.ExpandDays(ranges, start, end) {
			occupied[day.String()]++
		}
	}

	full := []domain.Date{}
	for day := start; day.Before(end); day = day.AddDays(1) {
		if occupied[day.String()] >= active {
			full = append(full, day)
		}
	}
	return &domain.TypeCalendar{RoomTypeID: typeID, Month: month, ActiveRooms: active, FullyBooked: full}, nil
}

func (s *availabilityService) RoomsCalendar(ctx context.Context, month string) ([]domain.RoomCalendar, error) {
	start, end, err := parseMonth(month)
	if err != nil {
		return nil, err
	}

	var (
		rooms  []domain.Room
		byRoom map[string][]domain.DateRange
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rooms, err = s.rooms.List(gctx, "")
		return err
	})
	g.Go(func() error {
		var err error
		byRoom, err = s.reservations.OccupiedRangesAll(gctx, start, end)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("rooms calendar: %w", err)
	}

	// R1000 sorts after R999.
	sort.Slice(rooms, func(i, j int) bool {
		a, aok := domain.RoomNumber(rooms[i].ID)
		b, bok := domain.RoomNumber(rooms[j].ID)
		if aok && bok && a != b {
			return a < b
		}
		return rooms[i].ID < rooms[j].ID
	})
	out := make([]domain.RoomCalendar, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, domain.RoomCalendar{
			RoomID:   room.ID,
			Month:    month,
			Occupied: domain.ExpandDays(byRoom[room.ID], start, end),
		})
	}
	return out, nil
}
