package domain

import "time"

type Review struct {
	ID                int64     `json:"id"`
	MemberID          int64     `json:"member_id"`
	MemberName        string    `json:"member_name,omitempty"`
	ReservationID     int64     `json:"reservation_id"`
	RoomTypeID        string    `json:"room_type_id,omitempty"`
	Comment           string    `json:"comment"`
	Rating            int       `json:"rating"`
	ServiceRating     int       `json:"service_rating"`
	CleanlinessRating int       `json:"cleanliness_rating"`
	CreatedAt         time.Time `json:"created_at"`
}

type ReviewInput struct {
	ReservationID     int64  `json:"reservation_id" validate:"required,gt=0"`
	Comment           string `json:"comment" validate:"required,max=500"`
	Rating            int    `json:"rating" validate:"min=1,max=5"`
	ServiceRating     int    `json:"service_rating" validate:"min=1,max=5"`
	CleanlinessRating int    `json:"cleanliness_rating" validate:"min=1,max=5"`
}
