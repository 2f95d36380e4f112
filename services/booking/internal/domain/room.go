package domain

import (
	"fmt"
	"strconv"
	"strings"
)

type Room struct {
	ID           string `json:"id"`
	RoomTypeID   string `json:"room_type_id"`
	RoomTypeName string `json:"room_type_name,omitempty"`
	Active       bool   `json:"active"`
}

// RoomNumber extracts n from an id of the form "R<n>".
func RoomNumber(id string) (int, bool) {
	if !strings.HasPrefix(id, "R") {
		return 0, false
	}
	n, err := strconv.Atoi(id[1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// NextRoomIDs continues the R001, R002, ... sequence after the largest
// existing number.
func NextRoomIDs(existing []string, count int) []string {
	max := 0
	for _, id := range existing {
		if n, ok := RoomNumber(id); ok && n > max {
			max = n
		}
	}
	ids := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		ids = append(ids, fmt.Sprintf("R%03d", max+i))
	}
	return ids
}

// BatchResult reports which rooms a batch operation touched.
type BatchResult struct {
	Updated []string `json:"updated"`
	Skipped []string `json:"skipped,omitempty"`
	Message string   `json:"message,omitempty"`
}
