package application

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"recall/internal/service/recall/domain"
	"recall/internal/service/recall/domain/port"
)

func testTracer() trace.Tracer { return noop.NewTracerProvider().Tracer("test") }

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func getOr[T any](args mock.Arguments, i int) T {
	var zero T
	if v := args.Get(i); v != nil {
		return v.(T)
	}
	return zero
}

type mockRecallRepo struct{ mock.Mock }

func (m *mockRecallRepo) BatchCreate(ctx context.Context, recalls []*domain.Recall) (int64, error) {
	args := m.Called(ctx, recalls)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRecallRepo) FindByToken(ctx context.Context, token string) (*domain.Recall, error) {
	args := m.Called(ctx, token)
	return getOr[*domain.Recall](args, 0), args.Error(1)
}

func (m *mockRecallRepo) MarkClicked(ctx context.Context, token string, at time.Time) (int64, error) {
	args := m.Called(ctx, token, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRecallRepo) MarkClaimed(ctx context.Context, token string, at time.Time) (int64, error) {
	args := m.Called(ctx, token, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRecallRepo) MarkWrittenOff(ctx context.Context, token string, at time.Time) (int64, error) {
	args := m.Called(ctx, token, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRecallRepo) Query(ctx context.Context, f domain.RecallFilter, page, pageSize int) (*domain.Page[*domain.Recall], error) {
	args := m.Called(ctx, f, page, pageSize)
	return getOr[*domain.Page[*domain.Recall]](args, 0), args.Error(1)
}

func (m *mockRecallRepo) Expired(ctx context.Context, before time.Time, limit int) ([]*domain.Recall, error) {
	args := m.Called(ctx, before, limit)
	return getOr[[]*domain.Recall](args, 0), args.Error(1)
}

func (m *mockRecallRepo) Stats(ctx context.Context, merchantID int64, r domain.DateRange) (*domain.RecallStats, error) {
	args := m.Called(ctx, merchantID, r)
	return getOr[*domain.RecallStats](args, 0), args.Error(1)
}

func (m *mockRecallRepo) DailyStats(ctx context.Context, merchantID int64, r domain.DateRange) ([]*domain.DailyRecallStat, error) {
	args := m.Called(ctx, merchantID, r)
	return getOr[[]*domain.DailyRecallStat](args, 0), args.Error(1)
}

func (m *mockRecallRepo) UserHistory(ctx context.Context, merchantID int64, contact, contactType string, limit int) ([]*domain.Recall, error) {
	args := m.Called(ctx, merchantID, contact, contactType, limit)
	return getOr[[]*domain.Recall](args, 0), args.Error(1)
}

func (m *mockRecallRepo) CleanupExpired(ctx context.Context, cutoff, now time.Time) (int64, error) {
	args := m.Called(ctx, cutoff, now)
	return args.Get(0).(int64), args.Error(1)
}

type mockMerchantRepo struct{ mock.Mock }

func (m *mockMerchantRepo) Create(ctx context.Context, merchant *domain.Merchant) (int64, error) {
	args := m.Called(ctx, merchant)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockMerchantRepo) FindByID(ctx context.Context, id int64) (*domain.Merchant, error) {
	args := m.Called(ctx, id)
	return getOr[*domain.Merchant](args, 0), args.Error(1)
}

func (m *mockMerchantRepo) FindByUsername(ctx context.Context, username string) (*domain.Merchant, error) {
	args := m.Called(ctx, username)
	return getOr[*domain.Merchant](args, 0), args.Error(1)
}

func (m *mockMerchantRepo) Update(ctx context.Context, id int64, upd domain.MerchantUpdate, now time.Time) (int64, error) {
	args := m.Called(ctx, id, upd, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockMerchantRepo) SoftDelete(ctx context.Context, id int64, now time.Time) (int64, error) {
	args := m.Called(ctx, id, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockMerchantRepo) Query(ctx context.Context, f domain.MerchantFilter, page, pageSize int) (*domain.Page[*domain.Merchant], error) {
	args := m.Called(ctx, f, page, pageSize)
	return getOr[*domain.Page[*domain.Merchant]](args, 0), args.Error(1)
}

func (m *mockMerchantRepo) Stats(ctx context.Context, merchantID int64) (*domain.MerchantStats, error) {
	args := m.Called(ctx, merchantID)
	return getOr[*domain.MerchantStats](args, 0), args.Error(1)
}

type mockOrderRepo struct{ mock.Mock }

func (m *mockOrderRepo) BatchCreate(ctx context.Context, orders []*domain.Order) (int64, error) {
	args := m.Called(ctx, orders)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockOrderRepo) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	args := m.Called(ctx, id)
	return getOr[*domain.Order](args, 0), args.Error(1)
}

func (m *mockOrderRepo) FindByMerchantOrderNo(ctx context.Context, merchantID int64, orderNo string) (*domain.Order, error) {
	args := m.Called(ctx, merchantID, orderNo)
	return getOr[*domain.Order](args, 0), args.Error(1)
}

func (m *mockOrderRepo) Update(ctx context.Context, id int64, upd domain.OrderUpdate) (int64, error) {
	args := m.Called(ctx, id, upd)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockOrderRepo) UserOrders(ctx context.Context, merchantID int64, userID string, limit int) ([]*domain.Order, error) {
	args := m.Called(ctx, merchantID, userID, limit)
	return getOr[[]*domain.Order](args, 0), args.Error(1)
}

func (m *mockOrderRepo) Query(ctx context.Context, f domain.OrderFilter, page, pageSize int) (*domain.Page[*domain.Order], error) {
	args := m.Called(ctx, f, page, pageSize)
	return getOr[*domain.Page[*domain.Order]](args, 0), args.Error(1)
}

func (m *mockOrderRepo) InactiveUsers(ctx context.Context, merchantID int64, cutoff time.Time, limit int) ([]*domain.InactiveUser, error) {
	args := m.Called(ctx, merchantID, cutoff, limit)
	return getOr[[]*domain.InactiveUser](args, 0), args.Error(1)
}

func (m *mockOrderRepo) SalesStats(ctx context.Context, merchantID int64, r domain.DateRange) (*domain.SalesStats, error) {
	args := m.Called(ctx, merchantID, r)
	return getOr[*domain.SalesStats](args, 0), args.Error(1)
}

func (m *mockOrderRepo) DailySales(ctx context.Context, merchantID int64, r domain.DateRange) ([]*domain.DailySales, error) {
	args := m.Called(ctx, merchantID, r)
	return getOr[[]*domain.DailySales](args, 0), args.Error(1)
}

func (m *mockOrderRepo) TopProducts(ctx context.Context, merchantID int64, limit int, r domain.DateRange) ([]*domain.TopProduct, error) {
	args := m.Called(ctx, merchantID, limit, r)
	return getOr[[]*domain.TopProduct](args, 0), args.Error(1)
}

type mockSMS struct{ mock.Mock }

func (m *mockSMS) Dispatch(ctx context.Context, recalls []*domain.Recall, landingURL func(string) string) (*port.DispatchResult, error) {
	args := m.Called(ctx, recalls, landingURL)
	return getOr[*port.DispatchResult](args, 0), args.Error(1)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, events ...domain.FunnelEvent) error {
	return m.Called(ctx, events).Error(0)
}

type mockViews struct{ mock.Mock }

func (m *mockViews) Incr(ctx context.Context, merchantID int64, token string, expireAt time.Time) (int64, error) {
	args := m.Called(ctx, merchantID, token, expireAt)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockViews) MerchantTotal(ctx context.Context, merchantID int64) (int64, error) {
	args := m.Called(ctx, merchantID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockViews) Get(ctx context.Context, token string) (int64, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(int64), args.Error(1)
}

type mockRules struct{ mock.Mock }

func (m *mockRules) Validate(expr string) error { return m.Called(expr).Error(0) }

func (m *mockRules) Evaluate(expr string, fact port.PortraitFact) (bool, error) {
	args := m.Called(expr, fact)
	return args.Bool(0), args.Error(1)
}

type mockSheets struct{ mock.Mock }

func (m *mockSheets) ReadOrders(r io.Reader, merchantID int64) ([]*domain.Order, error) {
	args := m.Called(r, merchantID)
	return getOr[[]*domain.Order](args, 0), args.Error(1)
}
