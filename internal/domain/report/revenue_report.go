package report

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RevenuePeriod is the calendar bucket size for revenue aggregation
type RevenuePeriod string

const (
	RevenuePeriodDay   RevenuePeriod = "day"
	RevenuePeriodMonth RevenuePeriod = "month"
)

// IsValid checks if the period is a valid RevenuePeriod
func (p RevenuePeriod) IsValid() bool {
	return p == RevenuePeriodDay || p == RevenuePeriodMonth
}

// RevenueBucket is one calendar bucket of the revenue report.
// TotalBilled groups invoices by creation date, TotalPaid groups payments by
// recording date and TotalRefunds groups refunds by creation date
type RevenueBucket struct {
	Bucket       time.Time       `json:"bucket"`
	TotalBilled  decimal.Decimal `json:"total_billed"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	TotalRefunds decimal.Decimal `json:"total_refunds"`
}

// NetRevenue returns paid minus refunded for the bucket
func (b RevenueBucket) NetRevenue() decimal.Decimal {
	return b.TotalPaid.Sub(b.TotalRefunds)
}

// RevenueReportFilter defines the period and optional explicit date range.
// With an explicit range the service zero-fills empty buckets; without one
// only buckets with activity are returned
type RevenueReportFilter struct {
	Period RevenuePeriod
	From   *time.Time
	To     *time.Time
}

// RevenueReportRepository defines the read-only aggregation queries backing
// the revenue report. Implementations never mutate ledger state
type RevenueReportRepository interface {
	// BilledByBucket sums invoice total_payable grouped by creation bucket
	BilledByBucket(ctx context.Context, filter RevenueReportFilter) (map[time.Time]decimal.Decimal, error)

	// PaidByBucket sums payment amounts grouped by recorded_at bucket
	PaidByBucket(ctx context.Context, filter RevenueReportFilter) (map[time.Time]decimal.Decimal, error)

	// RefundsByBucket sums refund amounts grouped by creation bucket
	RefundsByBucket(ctx context.Context, filter RevenueReportFilter) (map[time.Time]decimal.Decimal, error)
}
