package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/staybook/pkg/auth"
)

// Mount registers every booking route on r. photoDir is served read-only
// under /photos.
func (h *Handlers) Mount(r chi.Router, jwtSecret, photoDir string) {
	member := auth.Require(jwtSecret)
	admin := auth.Require(jwtSecret, auth.RoleAdmin)

	if photoDir != "" {
		r.Handle("/photos/*", http.StripPrefix("/photos/", http.FileServer(http.Dir(photoDir))))
	}

	r.Route("/room-types", func(r chi.Router) {
		r.Get("/", h.ListRoomTypes)
		r.Get("/{id}", h.GetRoomType)
		r.Get("/{id}/reviews", h.ListRoomTypeReviews)
		r.Get("/{id}/calendar", h.RoomTypeCalendar)
	})

	r.Route("/reservations", func(r chi.Router) {
		r.Use(member)
		r.Post("/", h.Reserve)
		r.Get("/mine", h.ListMyReservations)
		r.Get("/{id}", h.GetReservation)
		r.Get("/{id}/reviews", h.ListReservationReviews)
	})

	r.Route("/payments", func(r chi.Router) {
		r.Use(member)
		r.Post("/paypal/orders", h.CreatePayPalOrder)
		r.Post("/paypal/orders/{orderId}/capture", h.CapturePayPalOrder)
		r.Post("/qr", h.GenerateQR)
		r.Post("/qr/{correlationId}/confirm", h.ConfirmQR)
		r.Post("/{id}/qr-refund", h.QRRefund)
		r.Get("/{id}", h.GetPayment)
	})

	r.Route("/reviews", func(r chi.Router) {
		r.Use(member)
		r.Post("/", h.AddReview)
		r.Patch("/{id}", h.UpdateReview)
		r.Delete("/{id}", h.DeleteReview)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(admin)

		r.Post("/room-types", h.CreateRoomType)
		r.Patch("/room-types/{id}", h.UpdateRoomType)
		r.Post("/room-types/{id}/photos", h.AddRoomTypePhotos)
		r.Delete("/room-types/{id}/photos/{file}", h.DeleteRoomTypePhoto)

		r.Get("/rooms", h.ListRooms)
		r.Post("/rooms/batch", h.BatchAddRooms)
		r.Post("/rooms/batch-update", h.BatchUpdateRooms)
		r.Post("/rooms/batch-active", h.BatchSetRoomsActive)
		r.Get("/rooms/calendar", h.RoomsCalendar)
		r.Get("/rooms/{id}", h.GetRoom)
		r.Patch("/rooms/{id}", h.UpdateRoom)
		r.Post("/rooms/{id}/toggle-active", h.ToggleRoomActive)
		r.Get("/rooms/{id}/calendar", h.RoomCalendar)

		r.Get("/reservations", h.ListReservations)
		r.Post("/reservations/{id}/toggle-active", h.ToggleReservationActive)

		r.Post("/payments/{id}/refund", h.Refund)
		r.Get("/reconciliations", h.ListReconciliations)
		r.Post("/reconciliations/{id}/resolve", h.ResolveReconciliation)
		r.Get("/reports/sales", h.SalesReport)
		r.Get("/reports/stays", h.StaysReport)
		r.Get("/reviews", h.ListAllReviews)
	})
}
