package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/diagnosis/staybook/internal/utils"
	"github.com/diagnosis/staybook/pkg/apperr"
	"github.com/diagnosis/staybook/pkg/config"
	"github.com/diagnosis/staybook/pkg/logger"
	"github.com/diagnosis/staybook/pkg/validate"
	"github.com/diagnosis/staybook/services/booking/internal/domain"
	"github.com/diagnosis/staybook/services/booking/internal/repository"
)

const (
	roomPhotoFolder = "room"
	maxBatchRooms   = 50
	maxSkippedShown = 10
)

type CatalogService interface {
	ListRoomTypes(ctx context.Context, nameFilter string) ([]domain.RoomType, error)
	GetRoomType(ctx context.Context, id string) (*domain.RoomType, error)
	CreateRoomType(ctx context.Context, in domain.RoomTypeInput, photos []Upload) (*domain.RoomType, error)
	UpdateRoomType(ctx context.Context, id string, in domain.RoomTypeInput, photos []Upload) (*domain.RoomType, error)
	DeleteGalleryPhoto(ctx context.Context, typeID, photo string) error

	ListRooms(ctx context.Context, typeID string) ([]domain.Room, error)
	GetRoom(ctx context.Context, id string) (*domain.Room, error)
	UpdateRoom(ctx context.Context, id, typeID string) (*domain.Room, error)
	ToggleRoomActive(ctx context.Context, id string) (*domain.Room, error)
	BatchAddRooms(ctx context.Context, typeID string, count int) (*domain.BatchResult, error)
	BatchUpdateRoomType(ctx context.Context, ids []string, typeID string) (*domain.BatchResult, error)
	BatchSetRoomsActive(ctx context.Context, ids []string, active bool) (*domain.BatchResult, error)
}

type catalogService struct {
	roomTypes repository.RoomTypeRepository
	rooms     repository.RoomRepository
	photos    PhotoStore
	calendar
}

func NewCatalogService(
	roomTypes repository.RoomTypeRepository,
	rooms repository.RoomRepository,
	photos PhotoStore,
	cfg *config.Config,
	clock Clock,
) CatalogService {
	return &catalogService{
		roomTypes: roomTypes,
		rooms:     rooms,
		photos:    photos,
		calendar:  newCalendar(cfg, clock),
	}
}

func (s *catalogService) ListRoomTypes(ctx context.Context, nameFilter string) ([]domain.RoomType, error) {
	types, err := s.roomTypes.List(ctx, utils.NormalizeString(nameFilter))
	if err != nil {
		return nil, fmt.Errorf("list room types: %w", err)
	}
	return types, nil
}

func (s *catalogService) GetRoomType(ctx context.Context, id string) (*domain.RoomType, error) {
	rt, err := s.roomTypes.GetByID(ctx, utils.NormalizeCode(id))
	if err != nil {
		return nil, fmt.Errorf("get room type: %w", err)
	}
	if rt == nil {
		return nil, apperr.NotFound("room type not found")
	}
	return rt, nil
}

func (s *catalogService) CreateRoomType(ctx context.Context, in domain.RoomTypeInput, photos []Upload) (*domain.RoomType, error) {
	in.Normalize()
	fields := validate.Struct(in)
	if in.ID == "" {
		fields.Add("id", "is required")
	}
	in.CheckPrice(fields)

	if !fields.Has("id") {
		existing, err := s.roomTypes.GetByID(ctx, in.ID)
		if err != nil {
			return nil, fmt.Errorf("check room type id: %w", err)
		}
		if existing != nil {
			fields.Add("id", "is already in use")
		}
	}
	if err := s.checkName(ctx, in.Name, "", fields); err != nil {
		return nil, err
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	saved, err := s.savePhotos(ctx, photos)
	if err != nil {
		return nil, err
	}

	rt := &domain.RoomType{ID: in.ID, Name: in.Name, Price: in.Price, Photos: saved}
	if err := s.roomTypes.Create(ctx, rt); err != nil {
		s.discardPhotos(ctx, saved)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.BusinessRule(apperr.CodeDuplicateRoomType, "a room type with this id or name already exists")
		}
		return nil, fmt.Errorf("create room type: %w", err)
	}

	logger.InfoContext(ctx, "Room type created", "room_type_id", rt.ID)
	return rt, nil
}

func (s *catalogService) UpdateRoomType(ctx context.Context, id string, in domain.RoomTypeInput, photos []Upload) (*domain.RoomType, error) {
	id = utils.NormalizeCode(id)
	if _, err := s.GetRoomType(ctx, id); err != nil {
		return nil, err
	}

	in.ID = ""
	in.Normalize()
	fields := validate.Struct(in)
	in.CheckPrice(fields)
	if err := s.checkName(ctx, in.Name, id, fields); err != nil {
		return nil, err
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	saved, err := s.savePhotos(ctx, photos)
	if err != nil {
		return nil, err
	}

	rt, err := s.roomTypes.Update(ctx, id, in.Name, in.Price, saved)
	if err != nil {
		s.discardPhotos(ctx, saved)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.BusinessRule(apperr.CodeDuplicateRoomType, "a room type with this name already exists")
		}
		return nil, fmt.Errorf("update room type: %w", err)
	}
	if rt == nil {
		s.discardPhotos(ctx, saved)
		return nil, apperr.NotFound("room type not found")
	}
	return rt, nil
}

func (s *catalogService) checkName(ctx context.Context, name, excludeID string, fields apperr.FieldErrors) error {
	if fields.Has("name") {
		return nil
	}
	taken, err := s.roomTypes.NameTaken(ctx, utils.NameKey(name), excludeID)
	if err != nil {
		return fmt.Errorf("check room type name: %w", err)
	}
	if taken {
		fields.Add("name", "is already in use")
	}
	return nil
}

func (s *catalogService) savePhotos(ctx context.Context, photos []Upload) ([]string, error) {
	saved := make([]string, 0, len(photos))
	for _, p := range photos {
		name, err := s.photos.Save(ctx, roomPhotoFolder, p.Name, p.Body)
		if err != nil {
			s.discardPhotos(ctx, saved)
			return nil, apperr.Validation(map[string]string{"photos": fmt.Sprintf("%s: %v", p.Name, err)})
		}
		saved = append(saved, name)
	}
	return saved, nil
}

func (s *catalogService) discardPhotos(ctx context.Context, names []string) {
	for _, n := range names {
		if err := s.photos.Delete(ctx, roomPhotoFolder, n); err != nil {
			logger.WarnContext(ctx, "Failed to remove photo", "photo", n, "error", err)
		}
	}
}

func (s *catalogService) DeleteGalleryPhoto(ctx context.Context, typeID, photo string) error {
	removed, err := s.roomTypes.DeletePhoto(ctx, utils.NormalizeCode(typeID), photo)
	if err != nil {
		return fmt.Errorf("delete gallery photo: %w", err)
	}
	if !removed {
		return apperr.NotFound("photo not found")
	}
	s.discardPhotos(ctx, []string{photo})
	return nil
}

func (s *catalogService) ListRooms(ctx context.Context, typeID string) ([]domain.Room, error) {
	rooms, err := s.rooms.List(ctx, utils.NormalizeCode(typeID))
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

func (s *catalogService) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	room, err := s.rooms.GetByID(ctx, utils.NormalizeCode(id))
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	if room == nil {
		return nil, apperr.NotFound("room not found")
	}
	return room, nil
}

func (s *catalogService) requireType(ctx context.Context, typeID string) error {
	rt, err := s.roomTypes.GetByID(ctx, typeID)
	if err != nil {
		return fmt.Errorf("get room type: %w", err)
	}
	if rt == nil {
		return apperr.Validation(map[string]string{"room_type_id": "room type not found"})
	}
	return nil
}

func (s *catalogService) UpdateRoom(ctx context.Context, id, typeID string) (*domain.Room, error) {
	id, typeID = utils.NormalizeCode(id), utils.NormalizeCode(typeID)
	if err := s.requireType(ctx, typeID); err != nil {
		return nil, err
	}
	updated, err := s.rooms.UpdateType(ctx, []string{id}, typeID)
	if err != nil {
		return nil, fmt.Errorf("update room: %w", err)
	}
	if len(updated) == 0 {
		return nil, apperr.NotFound("room not found")
	}
	return s.GetRoom(ctx, id)
}

// ToggleRoomActive refuses to deactivate a room that still has a current or
// future active reservation. Reactivation is always allowed.
func (s *catalogService) ToggleRoomActive(ctx context.Context, id string) (*domain.Room, error) {
	room, err := s.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}

	if room.Active {
		blocked, err := s.rooms.Blocked(ctx, []string{room.ID}, s.today())
		if err != nil {
			return nil, fmt.Errorf("check room reservations: %w", err)
		}
		if len(blocked) > 0 {
			return nil, apperr.BusinessRule(apperr.CodeRoomHasBookings,
				"room has current or upcoming reservations and cannot be deactivated")
		}
	}

	if _, err := s.rooms.SetActive(ctx, []string{room.ID}, !room.Active); err != nil {
		return nil, fmt.Errorf("toggle room: %w", err)
	}
	room.Active = !room.Active
	logger.InfoContext(ctx, "Room toggled", "room_id", room.ID, "active", room.Active)
	return room, nil
}

func (s *catalogService) BatchAddRooms(ctx context.Context, typeID string, count int) (*domain.BatchResult, error) {
	typeID = utils.NormalizeCode(typeID)
	if count < 1 || count > maxBatchRooms {
		return nil, apperr.Validation(map[string]string{"count": fmt.Sprintf("must be between 1 and %d", maxBatchRooms)})
	}
	if err := s.requireType(ctx, typeID); err != nil {
		return nil, err
	}

	ids, err := s.rooms.AddRooms(ctx, typeID, count)
	if err != nil {
		return nil, fmt.Errorf("add rooms: %w", err)
	}
	return &domain.BatchResult{Updated: ids, Message: fmt.Sprintf("%d room(s) added", len(ids))}, nil
}

func (s *catalogService) BatchUpdateRoomType(ctx context.Context, ids []string, typeID string) (*domain.BatchResult, error) {
	ids = normalizeIDs(ids)
	typeID = utils.NormalizeCode(typeID)
	if len(ids) == 0 {
		return nil, apperr.Validation(map[string]string{"ids": "select at least one room"})
	}
	if err := s.requireType(ctx, typeID); err != nil {
		return nil, err
	}

	updated, err := s.rooms.UpdateType(ctx, ids, typeID)
	if err != nil {
		return nil, fmt.Errorf("batch update rooms: %w", err)
	}
	return batchResult(ids, updated, "updated"), nil
}

// BatchSetRoomsActive skips rooms that cannot be deactivated and reports them.
func (s *catalogService) BatchSetRoomsActive(ctx context.Context, ids []string, active bool) (*domain.BatchResult, error) {
	ids = normalizeIDs(ids)
	if len(ids) == 0 {
		return nil, apperr.Validation(map[string]string{"ids": "select at least one room"})
	}

	targets := ids
	if !active {
		blocked, err := s.rooms.Blocked(ctx, ids, s.today())
		if err != nil {
			return nil, fmt.Errorf("check room reservations: %w", err)
		}
		targets = make([]string, 0, len(ids))
		for _, id := range ids {
			if !slices.Contains(blocked, id) {
				targets = append(targets, id)
			}
		}
	}

	var updated []string
	if len(targets) > 0 {
		var err error
		updated, err = s.rooms.SetActive(ctx, targets, active)
		if err != nil {
			return nil, fmt.Errorf("batch toggle rooms: %w", err)
		}
	}

	verb := "activated"
	if !active {
		verb = "deactivated"
	}
	return batchResult(ids, updated, verb), nil
}

func batchResult(requested, updated []string, verb string) *domain.BatchResult {
	var skipped []string
	for _, id := range requested {
		if !slices.Contains(updated, id) {
			skipped = append(skipped, id)
		}
	}
	res := &domain.BatchResult{Updated: updated, Message: fmt.Sprintf("%d room(s) %s", len(updated), verb)}
	if len(skipped) > 0 {
		res.Skipped = utils.Truncate(skipped, maxSkippedShown)
		res.Message += fmt.Sprintf(", %d skipped", len(skipped))
	}
	return res
}

func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = utils.NormalizeCode(id)
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
