package report

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hms/backend/internal/domain/report"
	"github.com/hms/backend/internal/domain/shared"
)

// RevenueReportService aggregates billed, collected and refunded amounts into
// calendar buckets for the finance dashboard
type RevenueReportService struct {
	repo   report.RevenueReportRepository
	logger *zap.Logger
}

// NewRevenueReportService creates a new RevenueReportService
func NewRevenueReportService(repo report.RevenueReportRepository, logger *zap.Logger) *RevenueReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RevenueReportService{repo: repo, logger: logger}
}

// RevenueReportRequest selects the bucket size and optional date range
type RevenueReportRequest struct {
	Period string     `form:"period"`
	From   *time.Time `form:"from"`
	To     *time.Time `form:"to"`
}

// RevenueBucketResponse represents one report bucket in API responses
type RevenueBucketResponse struct {
	Bucket       time.Time       `json:"bucket"`
	TotalBilled  decimal.Decimal `json:"total_billed"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	TotalRefunds decimal.Decimal `json:"total_refunds"`
	NetRevenue   decimal.Decimal `json:"net_revenue"`
}

// RevenueReportResponse is the full report
type RevenueReportResponse struct {
	Period  string                  `json:"period"`
	From    *time.Time              `json:"from,omitempty"`
	To      *time.Time              `json:"to,omitempty"`
	Buckets []RevenueBucketResponse `json:"buckets"`
}

// GetRevenueReport builds the revenue report. With an explicit from/to range
// every bucket in the range is present, zero-filled when it saw no activity;
// without a range only buckets with activity appear
func (s *RevenueReportService) GetRevenueReport(ctx context.Context, req RevenueReportRequest) (*RevenueReportResponse, error) {
	period := report.RevenuePeriod(req.Period)
	if req.Period == "" {
		period = report.RevenuePeriodDay
	}
	if !period.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Period must be 'day' or 'month'")
	}
	if req.From != nil && req.To != nil && req.To.Before(*req.From) {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Report range end must not be before its start")
	}

	filter := report.RevenueReportFilter{Period: period, From: req.From, To: req.To}

	billed, err := s.repo.BilledByBucket(ctx, filter)
	if err != nil {
		return nil, err
	}
	paid, err := s.repo.PaidByBucket(ctx, filter)
	if err != nil {
		return nil, err
	}
	refunds, err := s.repo.RefundsByBucket(ctx, filter)
	if err != nil {
		return nil, err
	}

	buckets := make(map[time.Time]*report.RevenueBucket)
	merge := func(source map[time.Time]decimal.Decimal, apply func(*report.RevenueBucket, decimal.Decimal)) {
		for ts, amount := range source {
			key := truncateToBucket(ts, period)
			b, ok := buckets[key]
			if !ok {
				b = &report.RevenueBucket{
					Bucket:       key,
					TotalBilled:  decimal.Zero,
					TotalPaid:    decimal.Zero,
					TotalRefunds: decimal.Zero,
				}
				buckets[key] = b
			}
			apply(b, amount)
		}
	}
	merge(billed, func(b *report.RevenueBucket, v decimal.Decimal) { b.TotalBilled = b.TotalBilled.Add(v) })
	merge(paid, func(b *report.RevenueBucket, v decimal.Decimal) { b.TotalPaid = b.TotalPaid.Add(v) })
	merge(refunds, func(b *report.RevenueBucket, v decimal.Decimal) { b.TotalRefunds = b.TotalRefunds.Add(v) })

	// Explicit range: emit every bucket in it, including empty ones
	if req.From != nil && req.To != nil {
		for cursor := truncateToBucket(*req.From, period); !cursor.After(*req.To); cursor = nextBucket(cursor, period) {
			if _, ok := buckets[cursor]; !ok {
				buckets[cursor] = &report.RevenueBucket{
					Bucket:       cursor,
					TotalBilled:  decimal.Zero,
					TotalPaid:    decimal.Zero,
					TotalRefunds: decimal.Zero,
				}
			}
		}
	}

	ordered := make([]RevenueBucketResponse, 0, len(buckets))
	for _, b := range buckets {
		ordered = append(ordered, RevenueBucketResponse{
			Bucket:       b.Bucket,
			TotalBilled:  b.TotalBilled,
			TotalPaid:    b.TotalPaid,
			TotalRefunds: b.TotalRefunds,
			NetRevenue:   b.NetRevenue(),
		})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Bucket.Before(ordered[j].Bucket)
	})

	return &RevenueReportResponse{
		Period:  string(period),
		From:    req.From,
		To:      req.To,
		Buckets: ordered,
	}, nil
}

func truncateToBucket(t time.Time, period report.RevenuePeriod) time.Time {
	t = t.UTC()
	if period == report.RevenuePeriodMonth {
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func nextBucket(t time.Time, period report.RevenuePeriod) time.Time {
	if period == report.RevenuePeriodMonth {
		return t.AddDate(0, 1, 0)
	}
	return t.AddDate(0, 0, 1)
}
