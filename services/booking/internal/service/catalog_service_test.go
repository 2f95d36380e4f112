package service_test

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/staybook/pkg/apperr"
	"github.com/diagnosis/staybook/services/booking/internal/domain"
	"github.com/diagnosis/staybook/services/booking/internal/service"
)

type mockRooms struct {
	rooms   map[string]*domain.Room
	blocked []string
}

func newMockRooms(rooms ...domain.Room) *mockRooms {
	m := &mockRooms{rooms: map[string]*domain.Room{}}
	for i := range rooms {
		r := rooms[i]
		m.rooms[r.ID] = &r
	}
	return m
}

func (m *mockRooms) List(_ context.Context, typeID string) ([]domain.Room, error) {
	var out []domain.Room
	for _, r := range m.rooms {
		if typeID == "" || r.RoomTypeID == typeID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockRooms) GetByID(_ context.Context, id string) (*domain.Room, error) {
	r, ok := m.rooms[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *mockRooms) CountActive(_ context.Context, typeID string) (int, error) {
	n := 0
	for _, r := range m.rooms {
		if r.RoomTypeID == typeID && r.Active {
			n++
		}
	}
	return n, nil
}

func (m *mockRooms) UpdateType(_ context.Context, ids []string, typeID string) ([]string, error) {
	var out []string
	for _, id := range ids {
		if r, ok := m.rooms[id]; ok {
			r.RoomTypeID = typeID
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *mockRooms) SetActive(_ context.Context, ids []string, active bool) ([]string, error) {
	var out []string
	for _, id := range ids {
		if r, ok := m.rooms[id]; ok {
			r.Active = active
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *mockRooms) Blocked(_ context.Context, ids []string, _ domain.Date) ([]string, error) {
	var out []string
	for _, id := range ids {
		if slices.Contains(m.blocked, id) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *mockRooms) AddRooms(_ context.Context, typeID string, count int) ([]string, error) {
	existing := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		existing = append(existing, id)
	}
	ids := domain.NextRoomIDs(existing, count)
	for _, id := range ids {
		m.rooms[id] = &domain.Room{ID: id, RoomTypeID: typeID, Active: true}
	}
	return ids, nil
}

type mockPhotos struct {
	saved   []string
	deleted []string
	failOn  string
}

func (m *mockPhotos) Save(_ context.Context, _, originalName string, r io.Reader) (string, error) {
	if originalName == m.failOn {
		return "", errors.New("unsupported file type")
	}
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	name := "stored-" + originalName
	m.saved = append(m.saved, name)
	return name, nil
}

func (m *mockPhotos) Delete(_ context.Context, _, name string) error {
	m.deleted = append(m.deleted, name)
	return nil
}

func newCatalogFixture() (service.CatalogService, *mockRoomTypes, *mockRooms, *mockPhotos) {
	roomTypes := newMockRoomTypes(domain.RoomType{ID: "D", Name: "Deluxe", Price: domain.NewMoney(100)})
	rooms := newMockRooms(
		domain.Room{ID: "R001", RoomTypeID: "D", Active: true},
		domain.Room{ID: "R002", RoomTypeID: "D", Active: true},
		domain.Room{ID: "R003", RoomTypeID: "D", Active: false},
	)
	photos := &mockPhotos{}
	return service.NewCatalogService(roomTypes, rooms, photos, testConfig(), fixedClock), roomTypes, rooms, photos
}

func upload(name string) service.Upload {
	return service.Upload{Name: name, Body: strings.NewReader("img")}
}

func TestCreateRoomType_SavesPhotos(t *testing.T) {
	svc, roomTypes, _, photos := newCatalogFixture()

	rt, err := svc.CreateRoomType(context.Background(),
		domain.RoomTypeInput{ID: " s ", Name: "  Single   Room", Price: domain.NewMoney(80)},
		[]service.Upload{upload("a.jpg"), upload("b.png")})
	require.NoError(t, err)

	assert.Equal(t, "S", rt.ID)
	assert.Equal(t, "Single Room", rt.Name)
	assert.Equal(t, []string{"stored-a.jpg", "stored-b.png"}, rt.Photos)
	assert.Contains(t, roomTypes.types, "S")
	assert.Len(t, photos.saved, 2)
}

func TestCreateRoomType_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    domain.RoomTypeInput
		field string
	}{
		{"missing id", domain.RoomTypeInput{Name: "Suite", Price: domain.NewMoney(10)}, "id"},
		{"id too long", domain.RoomTypeInput{ID: "ABCD", Name: "Suite", Price: domain.NewMoney(10)}, "id"},
		{"id in use", domain.RoomTypeInput{ID: "d", Name: "Suite", Price: domain.NewMoney(10)}, "id"},
		{"name in use", domain.RoomTypeInput{ID: "S", Name: "Deluxe", Price: domain.NewMoney(10)}, "name"},
		{"name in use with other spacing and case", domain.RoomTypeInput{ID: "S", Name: "  deLUXE ", Price: domain.NewMoney(10)}, "name"},
		{"zero price", domain.RoomTypeInput{ID: "S", Name: "Suite"}, "price"},
		{"price too high", domain.RoomTypeInput{ID: "S", Name: "Suite", Price: domain.NewMoney(1000000)}, "price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _, photos := newCatalogFixture()

			_, err := svc.CreateRoomType(context.Background(), tt.in, []service.Upload{upload("a.jpg")})

			e, ok := apperr.As(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, apperr.KindValidation, e.Kind)
			assert.Contains(t, e.Fields, tt.field)
			assert.Empty(t, photos.saved)
		})
	}
}

func TestCreateRoomType_BadPhotoDiscardsSaved(t *testing.T) {
	svc, roomTypes, _, photos := newCatalogFixture()
	photos.failOn = "b.gif"

	_, err := svc.CreateRoomType(context.Background(),
		domain.RoomTypeInput{ID: "S", Name: "Suite", Price: domain.NewMoney(80)},
		[]service.Upload{upload("a.jpg"), upload("b.gif")})

	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, []string{"stored-a.jpg"}, photos.deleted)
	assert.NotContains(t, roomTypes.types, "S")
}

func TestToggleRoomActive(t *testing.T) {
	svc, _, rooms, _ := newCatalogFixture()
	rooms.blocked = []string{"R001"}

	_, err := svc.ToggleRoomActive(context.Background(), "r001")
	assert.True(t, apperr.HasCode(err, apperr.CodeRoomHasBookings))
	assert.True(t, rooms.rooms["R001"].Active)

	room, err := svc.ToggleRoomActive(context.Background(), "R002")
	require.NoError(t, err)
	assert.False(t, room.Active)

	room, err = svc.ToggleRoomActive(context.Background(), "R003")
	require.NoError(t, err)
	assert.True(t, room.Active)
}

func TestBatchAddRooms(t *testing.T) {
	svc, _, rooms, _ := newCatalogFixture()

	res, err := svc.BatchAddRooms(context.Background(), "D", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"R004", "R005"}, res.Updated)
	assert.Len(t, rooms.rooms, 5)

	for _, n := range []int{0, 51} {
		_, err := svc.BatchAddRooms(context.Background(), "D", n)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "count %d", n)
	}

	_, err = svc.BatchAddRooms(context.Background(), "ZZ", 1)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestBatchSetRoomsActive_SkipsBlocked(t *testing.T) {
	svc, _, rooms, _ := newCatalogFixture()
	rooms.blocked = []string{"R002"}

	res, err := svc.BatchSetRoomsActive(context.Background(), []string{"r001", "R002", "R001", "R009"}, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"R001"}, res.Updated)
	assert.ElementsMatch(t, []string{"R002", "R009"}, res.Skipped)
	assert.Equal(t, "1 room(s) deactivated, 2 skipped", res.Message)
	assert.False(t, rooms.rooms["R001"].Active)
	assert.True(t, rooms.rooms["R002"].Active)
}

func TestDeleteGalleryPhoto(t *testing.T) {
	svc, roomTypes, _, photos := newCatalogFixture()
	roomTypes.types["D"].Photos = []string{"one.jpg"}

	require.NoError(t, svc.DeleteGalleryPhoto(context.Background(), "d", "one.jpg"))
	assert.Equal(t, []string{"one.jpg"}, photos.deleted)

	err := svc.DeleteGalleryPhoto(context.Background(), "D", "one.jpg")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestTypeCalendar_FullyBookedDays(t *testing.T) {
	payments := newMockPayments()
	reservations := newMockReservations(payments,
		domain.Room{ID: "R001", RoomTypeID: "D", Active: true},
		domain.Room{ID: "R002", RoomTypeID: "D", Active: true},
	)
	reservations.occupied = map[string][]domain.DateRange{
		"R001": {{CheckIn: day(3), CheckOut: day(6)}},
		"R002": {{CheckIn: day(5), CheckOut: day(8)}},
	}
	rooms := newMockRooms(
		domain.Room{ID: "R001", RoomTypeID: "D", Active: true},
		domain.Room{ID: "R002", RoomTypeID: "D", Active: true},
	)
	roomTypes := newMockRoomTypes(domain.RoomType{ID: "D", Name: "Deluxe", Price: domain.NewMoney(100)})
	svc := service.NewAvailabilityService(reservations, rooms, roomTypes)

	cal, err := svc.TypeCalendar(context.Background(), "d", "2026-03")
	require.NoError(t, err)

	assert.Equal(t, 2, cal.ActiveRooms)
	require.Len(t, cal.FullyBooked, 1)
	assert.Equal(t, "2026-03-05", cal.FullyBooked[0].String())

	roomCal, err := svc.RoomCalendar(context.Background(), "R001", "2026-03")
	require.NoError(t, err)
	assert.Len(t, roomCal.Occupied, 3)

	_, err = svc.TypeCalendar(context.Background(), "D", "March")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func dayStrings(days []domain.Date) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, d.String())
	}
	return out
}

func TestRoomsCalendar_EveryRoomInIDOrder(t *testing.T) {
	payments := newMockPayments()
	reservations := newMockReservations(payments)
	reservations.occupied = map[string][]domain.DateRange{
		"R002":  {{CheckIn: domain.NewDate(2026, time.February, 27), CheckOut: day(3)}},
		"R1000": {{CheckIn: day(30), CheckOut: domain.NewDate(2026, time.April, 2)}},
	}
	rooms := newMockRooms(
		domain.Room{ID: "R1000", RoomTypeID: "S", Active: true},
		domain.Room{ID: "R002", RoomTypeID: "D", Active: false},
		domain.Room{ID: "R001", RoomTypeID: "D", Active: true},
	)
	svc := service.NewAvailabilityService(reservations, rooms, newMockRoomTypes())

	grid, err := svc.RoomsCalendar(context.Background(), "2026-03")
	require.NoError(t, err)
	require.Len(t, grid, 3)

	assert.Equal(t, "R001", grid[0].RoomID)
	assert.Empty(t, grid[0].Occupied)
	assert.Equal(t, "R002", grid[1].RoomID)
	assert.Equal(t, []string{"2026-03-01", "2026-03-02"}, dayStrings(grid[1].Occupied))
	assert.Equal(t, "R1000", grid[2].RoomID)
	assert.Equal(t, []string{"2026-03-30", "2026-03-31"}, dayStrings(grid[2].Occupied))

	_, err = svc.RoomsCalendar(context.Background(), "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
