package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/hms/backend/internal/domain/billing"
	"github.com/hms/backend/internal/domain/shared"
)

// MockInvoiceRepository is a mock implementation of billing.InvoiceRepository
type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByInvoiceNumber(ctx context.Context, invoiceNumber string) (*billing.Invoice, error) {
	args := m.Called(ctx, invoiceNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindPendingByPatientAndType(ctx context.Context, patientID uuid.UUID, invoiceType billing.InvoiceType) ([]billing.Invoice, error) {
	args := m.Called(ctx, patientID, invoiceType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindAll(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) Count(ctx context.Context, filter billing.InvoiceFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInvoiceRepository) Save(ctx context.Context, invoice *billing.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) SaveWithLock(ctx context.Context, invoice *billing.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

var _ billing.InvoiceRepository = (*MockInvoiceRepository)(nil)

// MockPaymentRepository is a mock implementation of billing.PaymentRepository
type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) Save(ctx context.Context, payment *billing.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]billing.Payment, error) {
	args := m.Called(ctx, invoiceID)
	return args.Get(0).([]billing.Payment), args.Error(1)
}

func (m *MockPaymentRepository) FindBySourceLogID(ctx context.Context, sourceLogID uuid.UUID) (*billing.Payment, error) {
	args := m.Called(ctx, sourceLogID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Payment), args.Error(1)
}

var _ billing.PaymentRepository = (*MockPaymentRepository)(nil)

// MockRefundRepository is a mock implementation of billing.RefundRepository
type MockRefundRepository struct {
	mock.Mock
}

func (m *MockRefundRepository) Save(ctx context.Context, refund *billing.Refund) error {
	args := m.Called(ctx, refund)
	return args.Error(0)
}

func (m *MockRefundRepository) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]billing.Refund, error) {
	args := m.Called(ctx, invoiceID)
	return args.Get(0).([]billing.Refund), args.Error(1)
}

var _ billing.RefundRepository = (*MockRefundRepository)(nil)

// MockPaymentLogRepository is a mock implementation of billing.PaymentLogRepository
type MockPaymentLogRepository struct {
	mock.Mock
}

func (m *MockPaymentLogRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.PaymentLog, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PaymentLog), args.Error(1)
}

func (m *MockPaymentLogRepository) FindByTransactionID(ctx context.Context, transactionID string) (*billing.PaymentLog, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PaymentLog), args.Error(1)
}

func (m *MockPaymentLogRepository) FindAll(ctx context.Context, filter billing.PaymentLogFilter) ([]billing.PaymentLog, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]billing.PaymentLog), args.Error(1)
}

func (m *MockPaymentLogRepository) Count(ctx context.Context, filter billing.PaymentLogFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPaymentLogRepository) Save(ctx context.Context, log *billing.PaymentLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

var _ billing.PaymentLogRepository = (*MockPaymentLogRepository)(nil)

// MockInvoiceSequence is a mock implementation of billing.InvoiceSequence
type MockInvoiceSequence struct {
	mock.Mock
}

func (m *MockInvoiceSequence) Next(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

var _ billing.InvoiceSequence = (*MockInvoiceSequence)(nil)

// MockPatientDirectory is a mock implementation of billing.PatientDirectory
type MockPatientDirectory struct {
	mock.Mock
}

func (m *MockPatientDirectory) Exists(ctx context.Context, patientID uuid.UUID) (bool, error) {
	args := m.Called(ctx, patientID)
	return args.Bool(0), args.Error(1)
}

var _ billing.PatientDirectory = (*MockPatientDirectory)(nil)

// capturingPublisher records published events for assertions
type capturingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *capturingPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *capturingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.events))
	for i, e := range p.events {
		types[i] = e.EventType()
	}
	return types
}

var _ shared.EventPublisher = (*capturingPublisher)(nil)

// mapIdempotencyStore is a test double for shared.IdempotencyStore
type mapIdempotencyStore struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMapIdempotencyStore() *mapIdempotencyStore {
	return &mapIdempotencyStore{seen: make(map[string]bool)}
}

func (s *mapIdempotencyStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[eventID] {
		return false, nil
	}
	s.seen[eventID] = true
	return true, nil
}

func (s *mapIdempotencyStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[eventID], nil
}

func (s *mapIdempotencyStore) Release(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, eventID)
	return nil
}

func (s *mapIdempotencyStore) Close() error { return nil }

var _ shared.IdempotencyStore = (*mapIdempotencyStore)(nil)
