package service

import (
	"context"
	"fmt"

	"github.com/diagnosis/staybook/pkg/config"
	"github.com/diagnosis/staybook/pkg/logger"
	"github.com/diagnosis/staybook/services/booking/internal/domain"
	"github.com/diagnosis/staybook/services/booking/internal/repository"
)

type ReportService interface {
	Sales(ctx context.Context) (*domain.SalesReport, error)
	// CompletedStays reports the stays that checked out on day. The zero day
	// means yesterday in hotel time.
	CompletedStays(ctx context.Context, day domain.Date) (*domain.StayReport, error)
	// LogCompletedStays is the nightly job body.
	LogCompletedStays(ctx context.Context)
}

type reportService struct {
	payments repository.PaymentRepository
	calendar
}

func NewReportService(payments repository.PaymentRepository, cfg *config.Config, clock Clock) ReportService {
	return &reportService{payments: payments, calendar: newCalendar(cfg, clock)}
}

// Sales totals completed payments per room type name.
func (s *reportService) Sales(ctx context.Context) (*domain.SalesReport, error) {
	lines, err := s.payments.SalesReport(ctx)
	if err != nil {
		return nil, fmt.Errorf("sales report: %w", err)
	}
	report := &domain.SalesReport{Lines: lines}
	if report.Lines == nil {
		report.Lines = []domain.SalesLine{}
	}
	for _, l := range lines {
		report.Total += l.Total
	}
	return report, nil
}

func (s *reportService) CompletedStays(ctx context.Context, day domain.Date) (*domain.StayReport, error) {
	if day.IsZero() {
		day = s.today().AddDays(-1)
	}
	rep, err := s.payments.StayReport(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("stay report: %w", err)
	}
	return rep, nil
}

func (s *reportService) LogCompletedStays(ctx context.Context) {
	rep, err := s.CompletedStays(ctx, domain.Date{})
	if err != nil {
		logger.ErrorContext(ctx, "Completed stays report failed", "error", err)
		return
	}
	if rep.Unpaid > 0 {
		logger.WarnContext(ctx, "Stays checked out without payment", "day", rep.Day.String(), "unpaid", rep.Unpaid)
	}
	logger.InfoContext(ctx, "Completed stays", "day", rep.Day.String(), "stays", rep.Stays,
		"paid", rep.Paid, "revenue", rep.Revenue.String())
}
