package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/staybook/pkg/database"
	"github.com/diagnosis/staybook/services/booking/internal/domain"
)

type RoomTypeRepository interface {
	List(ctx context.Context, nameFilter string) ([]domain.RoomType, error)
	GetByID(ctx context.Context, id string) (*domain.RoomType, error)
	// NameTaken matches key against names folded the way utils.NameKey does.
	NameTaken(ctx context.Context, key, excludeID string) (bool, error)
	Create(ctx context.Context, rt *domain.RoomType) error
	Update(ctx context.Context, id, name string, price domain.Money, newPhotos []string) (*domain.RoomType, error)
	DeletePhoto(ctx context.Context, typeID, photo string) (bool, error)
}

type roomTypeRepository struct {
	pool *pgxpool.Pool
}

func NewRoomTypeRepository(pool *pgxpool.Pool) RoomTypeRepository {
	return &roomTypeRepository{pool: pool}
}

const roomTypeSelect = `SELECT rt.id, rt.name, (rt.price * 100)::bigint,
	(SELECT count(*) FROM rooms r WHERE r.room_type_id = rt.id),
	COALESCE((SELECT array_agg(g.photo_url ORDER BY g.id) FROM room_gallery g WHERE g.room_type_id = rt.id), '{}')
FROM room_types rt`

func scanRoomType(row scanner) (*domain.RoomType, error) {
	var rt domain.RoomType
	var count int64
	if err := row.Scan(&rt.ID, &rt.Name, (*int64)(&rt.Price), &count, &rt.Photos); err != nil {
		return nil, err
	}
	rt.RoomCount = int(count)
	return &rt, nil
}

func (r *roomTypeRepository) List(ctx context.Context, nameFilter string) ([]domain.RoomType, error) {
	const q = roomTypeSelect + `
	WHERE $1 = '' OR rt.name ILIKE '%' || $1 || '%'
	ORDER BY rt.name`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, nameFilter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []domain.RoomType
	for rows.Next() {
		rt, err := scanRoomType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, *rt)
	}
	return types, rows.Err()
}

func (r *roomTypeRepository) GetByID(ctx context.Context, id string) (*domain.RoomType, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rt, err := scanRoomType(r.pool.QueryRow(ctx, roomTypeSelect+` WHERE rt.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rt, err
}

func (r *roomTypeRepository) NameTaken(ctx context.Context, key, excludeID string) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM room_types
		WHERE lower(regexp_replace(btrim(name), '\s+', ' ', 'g')) = $1 AND id <> $2)`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var taken bool
	err := r.pool.QueryRow(ctx, q, key, excludeID).Scan(&taken)
	return taken, err
}

func (r *roomTypeRepository) Create(ctx context.Context, rt *domain.RoomType) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := database.WithTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO room_types (id, name, price) VALUES ($1, $2, $3::numeric / 100)`,
			rt.ID, rt.Name, rt.Price.Cents()); err != nil {
			return err
		}
		return insertPhotos(ctx, tx, rt.ID, rt.Photos)
	})
	if database.IsUniqueViolation(err) {
		return &DuplicateError{Constraint: database.ConstraintName(err)}
	}
	return err
}

func insertPhotos(ctx context.Context, tx pgx.Tx, typeID string, photos []string) error {
	for _, p := range photos {
		if _, err := tx.Exec(ctx,
			`INSERT INTO room_gallery (room_type_id, photo_url) VALUES ($1, $2)`, typeID, p); err != nil {
			return fmt.Errorf("insert gallery photo: %w", err)
		}
	}
	return nil
}

func (r *roomTypeRepository) Update(ctx context.Context, id, name string, price domain.Money, newPhotos []string) (*domain.RoomType, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	found := true
	err := database.WithTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE room_types SET name = $2, price = $3::numeric / 100 WHERE id = $1`,
			id, name, price.Cents())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			found = false
			return nil
		}
		return insertPhotos(ctx, tx, id, newPhotos)
	})
	if database.IsUniqueViolation(err) {
		return nil, &DuplicateError{Constraint: database.ConstraintName(err)}
	}
	if err != nil || !found {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *roomTypeRepository) DeletePhoto(ctx context.Context, typeID, photo string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx,
		`DELETE FROM room_gallery WHERE room_type_id = $1 AND photo_url = $2`, typeID, photo)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
