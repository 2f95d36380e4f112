package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/staybook/pkg/database"
	"github.com/diagnosis/staybook/services/booking/internal/domain"
)

type RoomRepository interface {
	List(ctx context.Context, typeID string) ([]domain.Room, error)
	GetByID(ctx context.Context, id string) (*domain.Room, error)
	CountActive(ctx context.Context, typeID string) (int, error)
	UpdateType(ctx context.Context, ids []string, typeID string) ([]string, error)
	SetActive(ctx context.Context, ids []string, active bool) ([]string, error)
	// Blocked returns those of ids holding any reservation, refunded or
	// deactivated ones included, that has not checked out by today.
	Blocked(ctx context.Context, ids []string, today domain.Date) ([]string, error)
	AddRooms(ctx context.Context, typeID string, count int) ([]string, error)
}

type roomRepository struct {
	pool *pgxpool.Pool
}

func NewRoomRepository(pool *pgxpool.Pool) RoomRepository {
	return &roomRepository{pool: pool}
}

const roomSelect = `SELECT r.id, r.room_type_id, rt.name, r.active
FROM rooms r JOIN room_types rt ON rt.id = r.room_type_id`

func scanRoom(row scanner) (*domain.Room, error) {
	var room domain.Room
	if err := row.Scan(&room.ID, &room.RoomTypeID, &room.RoomTypeName, &room.Active); err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepository) List(ctx context.Context, typeID string) ([]domain.Room, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, roomSelect+` WHERE $1 = '' OR r.room_type_id = $1 ORDER BY r.id`, typeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []domain.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}

func (r *roomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	room, err := scanRoom(r.pool.QueryRow(ctx, roomSelect+` WHERE r.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return room, err
}

func (r *roomRepository) CountActive(ctx context.Context, typeID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM rooms WHERE room_type_id = $1 AND active`, typeID).Scan(&n)
	return int(n), err
}

func (r *roomRepository) UpdateType(ctx context.Context, ids []string, typeID string) ([]string, error) {
	return r.updateReturningIDs(ctx,
		`UPDATE rooms SET room_type_id = $2 WHERE id = ANY($1) RETURNING id`, ids, typeID)
}

func (r *roomRepository) SetActive(ctx context.Context, ids []string, active bool) ([]string, error) {
	return r.updateReturningIDs(ctx,
		`UPDATE rooms SET active = $2 WHERE id = ANY($1) RETURNING id`, ids, active)
}

func (r *roomRepository) updateReturningIDs(ctx context.Context, q string, ids []string, arg any) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, ids, arg)
	if err != nil {
		return nil, err
	}
	updated, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if database.IsForeignKeyViolation(err) {
		return nil, ErrStateChanged
	}
	return updated, err
}

func (r *roomRepository) Blocked(ctx context.Context, ids []string, today domain.Date) ([]string, error) {
	const q = `SELECT DISTINCT room_id FROM reservations
	WHERE room_id = ANY($1) AND check_out > $2
	ORDER BY room_id`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, ids, today.Time)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// AddRooms appends count rooms to a type, continuing the R%03d sequence.
// The table lock keeps two concurrent batches from picking the same ids.
func (r *roomRepository) AddRooms(ctx context.Context, typeID string, count int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var ids []string
	err := database.WithTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `LOCK TABLE rooms IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id FROM rooms`)
		if err != nil {
			return err
		}
		existing, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}

		ids = domain.NextRoomIDs(existing, count)
		for _, id := range ids {
			if _, err := tx.Exec(ctx,
				`INSERT INTO rooms (id, room_type_id, active) VALUES ($1, $2, TRUE)`, id, typeID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
