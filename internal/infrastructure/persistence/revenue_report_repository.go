package persistence

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/hms/backend/internal/domain/billing"
	"github.com/hms/backend/internal/domain/report"
)

// GormRevenueReportRepository implements RevenueReportRepository with
// aggregate SQL over the ledger tables. Buckets are truncated in UTC so the
// report service and the database agree on bucket keys.
type GormRevenueReportRepository struct {
	db *gorm.DB
}

// NewGormRevenueReportRepository creates a new GormRevenueReportRepository
func NewGormRevenueReportRepository(db *gorm.DB) *GormRevenueReportRepository {
	return &GormRevenueReportRepository{db: db}
}

type bucketRow struct {
	Bucket time.Time
	Total  decimal.Decimal
}

// BilledByBucket sums total payable of invoices by their creation bucket.
// Cancelled invoices never count toward billed revenue.
func (r *GormRevenueReportRepository) BilledByBucket(ctx context.Context, filter report.RevenueReportFilter) (map[time.Time]decimal.Decimal, error) {
	query := r.db.WithContext(ctx).
		Table("invoices").
		Select("date_trunc(?, created_at AT TIME ZONE 'UTC') AS bucket, COALESCE(SUM(total_payable), 0) AS total", string(filter.Period)).
		Where("status <> ?", billing.InvoiceStatusCancelled).
		Group("bucket")
	query = applyRangeFilter(query, "created_at", filter)
	return scanBuckets(query)
}

// PaidByBucket sums payments by the bucket of their recording time
func (r *GormRevenueReportRepository) PaidByBucket(ctx context.Context, filter report.RevenueReportFilter) (map[time.Time]decimal.Decimal, error) {
	query := r.db.WithContext(ctx).
		Table("payments").
		Select("date_trunc(?, recorded_at AT TIME ZONE 'UTC') AS bucket, COALESCE(SUM(amount), 0) AS total", string(filter.Period)).
		Group("bucket")
	query = applyRangeFilter(query, "recorded_at", filter)
	return scanBuckets(query)
}

// RefundsByBucket sums refunds by the bucket of their creation time
func (r *GormRevenueReportRepository) RefundsByBucket(ctx context.Context, filter report.RevenueReportFilter) (map[time.Time]decimal.Decimal, error) {
	query := r.db.WithContext(ctx).
		Table("refunds").
		Select("date_trunc(?, created_at AT TIME ZONE 'UTC') AS bucket, COALESCE(SUM(amount), 0) AS total", string(filter.Period)).
		Group("bucket")
	query = applyRangeFilter(query, "created_at", filter)
	return scanBuckets(query)
}

func applyRangeFilter(query *gorm.DB, column string, filter report.RevenueReportFilter) *gorm.DB {
	if filter.From != nil {
		query = query.Where(column+" >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where(column+" < ?", filter.To.AddDate(0, 0, 1))
	}
	return query
}

func scanBuckets(query *gorm.DB) (map[time.Time]decimal.Decimal, error) {
	var rows []bucketRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	buckets := make(map[time.Time]decimal.Decimal, len(rows))
	for _, row := range rows {
		buckets[row.Bucket.UTC()] = row.Total
	}
	return buckets, nil
}

// Ensure GormRevenueReportRepository implements RevenueReportRepository
var _ report.RevenueReportRepository = (*GormRevenueReportRepository)(nil)
