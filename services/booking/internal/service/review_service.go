package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/diagnosis/staybook/internal/utils"
	"github.com/diagnosis/staybook/pkg/apperr"
	"github.com/diagnosis/staybook/pkg/validate"
	"github.com/diagnosis/staybook/services/booking/internal/domain"
	"github.com/diagnosis/staybook/services/booking/internal/repository"
)

type ReviewService interface {
	Add(ctx context.Context, memberID int64, in domain.ReviewInput) (*domain.Review, error)
	Update(ctx context.Context, memberID, id int64, in domain.ReviewInput) (*domain.Review, error)
	Delete(ctx context.Context, actor Actor, id int64) error
	ListByRoomType(ctx context.Context, typeID string) ([]domain.Review, error)
	ListByReservation(ctx context.Context, actor Actor, reservationID int64) ([]domain.Review, error)
	ListAll(ctx context.Context) ([]domain.Review, error)
}

type reviewService struct {
	reviews      repository.ReviewRepository
	reservations repository.ReservationRepository
}

func NewReviewService(reviews repository.ReviewRepository, reservations repository.ReservationRepository) ReviewService {
	return &reviewService{reviews: reviews, reservations: reservations}
}

func (s *reviewService) Add(ctx context.Context, memberID int64, in domain.ReviewInput) (*domain.Review, error) {
	in.Comment = utils.NormalizeString(in.Comment)
	if err := validate.Struct(in).Err(); err != nil {
		return nil, err
	}

	res, err := s.reservations.GetByID(ctx, in.ReservationID)
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	if res == nil || res.MemberID != memberID {
		return nil, apperr.NotFound("reservation not found")
	}
	if res.Payment == nil || !res.Payment.IsCompleted() {
		return nil, apperr.BusinessRule(apperr.CodeNotPaid, "only paid reservations can be reviewed")
	}

	rv := &domain.Review{
		MemberID:          memberID,
		ReservationID:     res.ID,
		RoomTypeID:        res.RoomTypeID,
		Comment:           in.Comment,
		Rating:            in.Rating,
		ServiceRating:     in.ServiceRating,
		CleanlinessRating: in.CleanlinessRating,
	}
	if err := s.reviews.Create(ctx, rv); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.BusinessRule(apperr.CodeReviewExists, "this reservation has already been reviewed")
		}
		return nil, fmt.Errorf("create review: %w", err)
	}
	return rv, nil
}

func (s *reviewService) get(ctx context.Context, id int64) (*domain.Review, error) {
	rv, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	if rv == nil {
		return nil, apperr.NotFound("review not found")
	}
	return rv, nil
}

func (s *reviewService) Update(ctx context.Context, memberID, id int64, in domain.ReviewInput) (*domain.Review, error) {
	rv, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rv.MemberID != memberID {
		return nil, apperr.Forbidden("only the author can edit a review")
	}

	in.ReservationID = rv.ReservationID
	in.Comment = utils.NormalizeString(in.Comment)
	if err := validate.Struct(in).Err(); err != nil {
		return nil, err
	}

	rv.Comment = in.Comment
	rv.Rating, rv.ServiceRating, rv.CleanlinessRating = in.Rating, in.ServiceRating, in.CleanlinessRating
	if err := s.reviews.Update(ctx, rv); err != nil {
		if errors.Is(err, repository.ErrStateChanged) {
			return nil, apperr.NotFound("review not found")
		}
		return nil, fmt.Errorf("update review: %w", err)
	}
	return rv, nil
}

func (s *reviewService) Delete(ctx context.Context, actor Actor, id int64) error {
	rv, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if !actor.Owns(rv.MemberID) {
		return apperr.Forbidden("only the author or an admin can delete a review")
	}
	if _, err := s.reviews.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	return nil
}

func (s *reviewService) ListByRoomType(ctx context.Context, typeID string) ([]domain.Review, error) {
	list, err := s.reviews.ListByRoomType(ctx, utils.NormalizeCode(typeID))
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return list, nil
}

func (s *reviewService) ListByReservation(ctx context.Context, actor Actor, reservationID int64) ([]domain.Review, error) {
	res, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	if res == nil || !actor.Owns(res.MemberID) {
		return nil, apperr.NotFound("reservation not found")
	}
	list, err := s.reviews.ListByReservation(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return list, nil
}

func (s *reviewService) ListAll(ctx context.Context) ([]domain.Review, error) {
	list, err := s.reviews.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return list, nil
}
