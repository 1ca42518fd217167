package billing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hms/backend/internal/domain/shared"
)

// PaymentLogStatus represents the gateway-reported outcome of a transaction
type PaymentLogStatus string

const (
	PaymentLogStatusSuccess PaymentLogStatus = "SUCCESS"
	PaymentLogStatusFailed  PaymentLogStatus = "FAILED"
	PaymentLogStatusPending PaymentLogStatus = "PENDING"
)

// IsValid checks if the payment log status is valid
func (s PaymentLogStatus) IsValid() bool {
	return s == PaymentLogStatusSuccess || s == PaymentLogStatusFailed || s == PaymentLogStatusPending
}

// IsSuccess returns true if the gateway reported the transaction as successful
func (s PaymentLogStatus) IsSuccess() bool {
	return s == PaymentLogStatusSuccess
}

// RawPayload holds the untouched gateway callback body for audit and manual
// reconciliation; the ledger never interprets it
type RawPayload map[string]interface{}

// Value implements driver.Valuer interface for GORM to store as JSONB
func (p RawPayload) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (p *RawPayload) Scan(value interface{}) error {
	if value == nil {
		*p = RawPayload{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan RawPayload: unsupported type")
	}

	if len(bytes) == 0 {
		*p = RawPayload{}
		return nil
	}

	return json.Unmarshal(bytes, p)
}

// PaymentLog is a normalized payment-gateway callback persisted by the
// ingestion pipeline. The ledger consumes it but does not own it: the only
// mutation the ledger performs is recording which invoice the log matched,
// so reconciliation replays are no-ops
type PaymentLog struct {
	shared.BaseEntity
	TransactionID string           `json:"transaction_id"`
	InvoiceNumber string           `json:"invoice_number,omitempty"`
	Amount        decimal.Decimal  `json:"amount"`
	Method        PaymentMethod    `json:"method"`
	Status        PaymentLogStatus `json:"status"`
	RawPayload    RawPayload       `json:"raw_payload,omitempty"`
	// MatchedInvoiceID is written back once reconciliation resolves the target
	MatchedInvoiceID *uuid.UUID `json:"matched_invoice_id,omitempty"`
	MatchedAt        *time.Time `json:"matched_at,omitempty"`
}

// NewPaymentLog creates a payment log record as the ingestion pipeline would persist it
func NewPaymentLog(transactionID, invoiceNumber string, amount decimal.Decimal, method PaymentMethod, status PaymentLogStatus, payload RawPayload) (*PaymentLog, error) {
	if transactionID == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Transaction ID cannot be empty")
	}
	if !status.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Invalid payment log status")
	}
	if method == "" {
		method = PaymentMethodMpesa
	}
	return &PaymentLog{
		BaseEntity:    shared.NewBaseEntity(),
		TransactionID: transactionID,
		InvoiceNumber: invoiceNumber,
		Amount:        amount,
		Method:        method,
		Status:        status,
		RawPayload:    payload,
	}, nil
}

// IsMatched returns true once a prior reconciliation resolved this log
func (l *PaymentLog) IsMatched() bool {
	return l.MatchedInvoiceID != nil
}

// MarkMatched records the invoice the log was reconciled against
func (l *PaymentLog) MarkMatched(invoiceID uuid.UUID) {
	now := time.Now()
	l.MatchedInvoiceID = &invoiceID
	l.MatchedAt = &now
	l.UpdatedAt = now
}
