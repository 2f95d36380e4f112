package domain

// SalesLine totals completed payments for one room type.
type SalesLine struct {
	RoomTypeName string `json:"room_type_name"`
	Payments     int    `json:"payments"`
	Total        Money  `json:"total"`
}

type SalesReport struct {
	Lines []SalesLine `json:"lines"`
	Total Money       `json:"total"`
}

// StayReport summarises the active stays that checked out on Day.
type StayReport struct {
	Day     Date  `json:"day"`
	Stays   int   `json:"stays"`
	Paid    int   `json:"paid"`
	Unpaid  int   `json:"unpaid"`
	Revenue Money `json:"revenue"`
}
