package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/diagnosis/staybook/pkg/database"
)

// Catalog is the seed file layout.
type Catalog struct {
	RoomTypes []SeedRoomType `yaml:"room_types"`
}

type SeedRoomType struct {
	ID     string   `yaml:"id"`
	Name   string   `yaml:"name"`
	Price  float64  `yaml:"price"`
	Rooms  int      `yaml:"rooms"`
	Photos []string `yaml:"photos"`
}

// LoadCatalog reads and checks a seed file.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	seen := map[string]bool{}
	for i := range c.RoomTypes {
		rt := &c.RoomTypes[i]
		rt.ID = strings.ToUpper(strings.TrimSpace(rt.ID))
		rt.Name = strings.TrimSpace(rt.Name)
		switch {
		case rt.ID == "" || len(rt.ID) > 3:
			return nil, fmt.Errorf("room type %d: id must be 1-3 characters", i+1)
		case rt.Name == "":
			return nil, fmt.Errorf("room type %s: name is required", rt.ID)
		case rt.Price <= 0 || rt.Price > 9999.99:
			return nil, fmt.Errorf("room type %s: price must be in (0, 9999.99]", rt.ID)
		case rt.Rooms < 0:
			return nil, fmt.Errorf("room type %s: rooms must not be negative", rt.ID)
		case seen[rt.ID]:
			return nil, fmt.Errorf("room type %s: duplicate id", rt.ID)
		}
		seen[rt.ID] = true
	}
	return &c, nil
}

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load room types, rooms and gallery photos from a YAML catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := LoadCatalog(file)
			if err != nil {
				return err
			}
			return withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				rooms, err := seedCatalog(cmd.Context(), pool, catalog)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d room types, %d new rooms\n", len(catalog.RoomTypes), rooms)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "catalog.yaml", "catalog file")
	return cmd
}

// seedCatalog upserts room types and tops each type up to its room count.
// Room ids continue the R001 sequence across the whole hotel.
func seedCatalog(ctx context.Context, pool *pgxpool.Pool, c *Catalog) (int, error) {
	added := 0
	err := database.WithTx(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var next int
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(substring(id FROM 2)::int), 0) FROM rooms WHERE id ~ '^R[0-9]+$'`,
		).Scan(&next); err != nil {
			return fmt.Errorf("next room number: %w", err)
		}

		for _, rt := range c.RoomTypes {
			if _, err := tx.Exec(ctx, `
				INSERT INTO room_types (id, name, price) VALUES ($1, $2, $3)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price`,
				rt.ID, rt.Name, fmt.Sprintf("%.2f", rt.Price)); err != nil {
				return fmt.Errorf("upsert room type %s: %w", rt.ID, err)
			}

			for _, photo := range rt.Photos {
				if _, err := tx.Exec(ctx, `
					INSERT INTO room_gallery (room_type_id, photo_url)
					SELECT $1, $2 WHERE NOT EXISTS (
						SELECT 1 FROM room_gallery WHERE room_type_id = $1 AND photo_url = $2)`,
					rt.ID, photo); err != nil {
					return fmt.Errorf("add photo %s: %w", photo, err)
				}
			}

			var have int
			if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM rooms WHERE room_type_id = $1`, rt.ID).Scan(&have); err != nil {
				return fmt.Errorf("count rooms of %s: %w", rt.ID, err)
			}
			for ; have < rt.Rooms; have++ {
				next++
				if _, err := tx.Exec(ctx, `INSERT INTO rooms (id, room_type_id) VALUES ($1, $2)`,
					fmt.Sprintf("R%03d", next), rt.ID); err != nil {
					return fmt.Errorf("add room to %s: %w", rt.ID, err)
				}
				added++
			}
		}
		return nil
	})
	return added, err
}
