package domain

import (
	"github.com/diagnosis/staybook/internal/utils"
	"github.com/diagnosis/staybook/pkg/apperr"
)

// MaxRoomPrice is the largest nightly price a NUMERIC(6,2) column holds.
const MaxRoomPrice Money = 999999

type RoomType struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Price     Money    `json:"price"`
	Photos    []string `json:"photos"`
	RoomCount int      `json:"room_count"`
}

type RoomTypeInput struct {
	ID    string `json:"id" validate:"omitempty,min=1,max=3,alphanum"`
	Name  string `json:"name" validate:"required,max=100"`
	Price Money  `json:"price"`
}

// Normalize trims the code and name the way they are stored.
func (in *RoomTypeInput) Normalize() {
	in.ID = utils.NormalizeCode(in.ID)
	in.Name = utils.NormalizeString(in.Name)
}

// CheckPrice adds a field error when the price is outside (0, MaxRoomPrice].
func (in *RoomTypeInput) CheckPrice(fields apperr.FieldErrors) {
	switch {
	case in.Price <= 0:
		fields.Add("price", "must be greater than 0")
	case in.Price > MaxRoomPrice:
		fields.Add("price", "must be at most "+MaxRoomPrice.String())
	}
}
