package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog(filepath.Join("testdata", "catalog.yaml"))
	require.NoError(t, err)
	require.Len(t, c.RoomTypes, 2)

	assert.Equal(t, "STD", c.RoomTypes[0].ID)
	assert.Equal(t, "Standard", c.RoomTypes[0].Name)
	assert.Equal(t, 5, c.RoomTypes[0].Rooms)
	assert.Equal(t, []string{"std-1.jpg", "std-2.jpg"}, c.RoomTypes[0].Photos)
	assert.InDelta(t, 180.5, c.RoomTypes[1].Price, 0.001)
}

func TestLoadCatalog_Rejects(t *testing.T) {
	cases := map[string]string{
		"long id":      "room_types:\n  - {id: ABCD, name: X, price: 1}\n",
		"zero price":   "room_types:\n  - {id: A, name: X, price: 0}\n",
		"no name":      "room_types:\n  - {id: A, price: 10}\n",
		"duplicate id": "room_types:\n  - {id: a, name: X, price: 1}\n  - {id: A, name: Y, price: 2}\n",
		"bad yaml":     "room_types: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "catalog.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

			_, err := LoadCatalog(path)
			assert.Error(t, err)
		})
	}
}
