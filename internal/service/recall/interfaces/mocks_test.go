package interfaces

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"recall/internal/service/recall/application"
	"recall/internal/service/recall/domain"
)

func getOr[T any](args mock.Arguments, i int) T {
	var zero T
	if v := args.Get(i); v != nil {
		return v.(T)
	}
	return zero
}

type mockMerchants struct{ mock.Mock }

func (m *mockMerchants) Login(ctx context.Context, req application.LoginRequest) (*application.LoginResult, error) {
	args := m.Called(ctx, req)
	return getOr[*application.LoginResult](args, 0), args.Error(1)
}

func (m *mockMerchants) QueryMerchants(ctx context.Context, f domain.MerchantFilter, page, pageSize int) (*domain.Page[*domain.Merchant], error) {
	args := m.Called(ctx, f, page, pageSize)
	return getOr[*domain.Page[*domain.Merchant]](args, 0), args.Error(1)
}

func (m *mockMerchants) MerchantStats(ctx context.Context, merchantID int64) (*domain.MerchantStats, error) {
	args := m.Called(ctx, merchantID)
	return getOr[*domain.MerchantStats](args, 0), args.Error(1)
}

func (m *mockMerchants) GetMerchantByID(ctx context.Context, id int64) (*domain.Merchant, error) {
	args := m.Called(ctx, id)
	return getOr[*domain.Merchant](args, 0), args.Error(1)
}

func (m *mockMerchants) GetMerchantByUsername(ctx context.Context, username string) (*domain.Merchant, error) {
	args := m.Called(ctx, username)
	return getOr[*domain.Merchant](args, 0), args.Error(1)
}

func (m *mockMerchants) UpdateMerchant(ctx context.Context, id int64, upd domain.MerchantUpdate) error {
	return m.Called(ctx, id, upd).Error(0)
}

func (m *mockMerchants) DeleteMerchant(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

type mockOrders struct{ mock.Mock }

func (m *mockOrders) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	args := m.Called(ctx, id)
	return getOr[*domain.Order](args, 0), args.Error(1)
}

func (m *mockOrders) GetOrderByMerchantOrderNo(ctx context.Context, merchantID int64, orderNo string) (*domain.Order, error) {
	args := m.Called(ctx, merchantID, orderNo)
	return getOr[*domain.Order](args, 0), args.Error(1)
}

func (m *mockOrders) UpdateOrder(ctx context.Context, id int64, upd domain.OrderUpdate) error {
	return m.Called(ctx, id, upd).Error(0)
}

func (m *mockOrders) CreateOrders(ctx context.Context, req application.CreateOrdersRequest) (*application.CreateOrdersResult, error) {
	args := m.Called(ctx, req)
	return getOr[*application.CreateOrdersResult](args, 0), args.Error(1)
}

func (m *mockOrders) ImportOrders(ctx context.Context, merchantID int64, r io.Reader) (*application.CreateOrdersResult, error) {
	args := m.Called(ctx, merchantID, r)
	return getOr[*application.CreateOrdersResult](args, 0), args.Error(1)
}

func (m *mockOrders) QueryOrders(ctx context.Context, f domain.OrderFilter, page, pageSize int) (*domain.Page[*domain.Order], error) {
	args := m.Called(ctx, f, page, pageSize)
	return getOr[*domain.Page[*domain.Order]](args, 0), args.Error(1)
}

func (m *mockOrders) GetUserOrders(ctx context.Context, merchantID int64, userID string, limit int) ([]*domain.Order, error) {
	args := m.Called(ctx, merchantID, userID, limit)
	return getOr[[]*domain.Order](args, 0), args.Error(1)
}

func (m *mockOrders) InactiveUsers(ctx context.Context, merchantID int64, inactiveDays, limit int) ([]*domain.InactiveUser, error) {
	args := m.Called(ctx, merchantID, inactiveDays, limit)
	return getOr[[]*domain.InactiveUser](args, 0), args.Error(1)
}

func (m *mockOrders) OrderStats(ctx context.Context, merchantID int64, r domain.DateRange, topN int) (*application.OrderStatsResult, error) {
	args := m.Called(ctx, merchantID, r, topN)
	return getOr[*application.OrderStatsResult](args, 0), args.Error(1)
}

type mockRecalls struct{ mock.Mock }

func (m *mockRecalls) CreateRecalls(ctx context.Context, req application.CreateRecallsRequest) (*application.CreateRecallsResult, error) {
	args := m.Called(ctx, req)
	return getOr[*application.CreateRecallsResult](args, 0), args.Error(1)
}

func (m *mockRecalls) GetRecall(ctx context.Context, token string) (*domain.Recall, error) {
	args := m.Called(ctx, token)
	return getOr[*domain.Recall](args, 0), args.Error(1)
}

func (m *mockRecalls) OpenLanding(ctx context.Context, token string) (*application.LandingView, error) {
	args := m.Called(ctx, token)
	return getOr[*application.LandingView](args, 0), args.Error(1)
}

func (m *mockRecalls) ClaimCoupon(ctx context.Context, req application.ClaimRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *mockRecalls) WriteOff(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *mockRecalls) LandingURL(token string) string {
	return m.Called(token).String(0)
}

func (m *mockRecalls) RecallStats(ctx context.Context, merchantID int64, r domain.DateRange) (*application.RecallStatsResult, error) {
	args := m.Called(ctx, merchantID, r)
	return getOr[*application.RecallStatsResult](args, 0), args.Error(1)
}

func (m *mockRecalls) QueryRecalls(ctx context.Context, f domain.RecallFilter, page, pageSize int) (*domain.Page[*domain.Recall], error) {
	args := m.Called(ctx, f, page, pageSize)
	return getOr[*domain.Page[*domain.Recall]](args, 0), args.Error(1)
}

func (m *mockRecalls) UserRecallHistory(ctx context.Context, merchantID int64, contact, contactType string, limit int) ([]*domain.Recall, error) {
	args := m.Called(ctx, merchantID, contact, contactType, limit)
	return getOr[[]*domain.Recall](args, 0), args.Error(1)
}

func (m *mockRecalls) ExpiredRecalls(ctx context.Context, before time.Time, limit int) ([]*domain.Recall, error) {
	args := m.Called(ctx, before, limit)
	return getOr[[]*domain.Recall](args, 0), args.Error(1)
}

func (m *mockRecalls) RecallDetail(ctx context.Context, token string) (*application.RecallDetailResult, error) {
	args := m.Called(ctx, token)
	return getOr[*application.RecallDetailResult](args, 0), args.Error(1)
}

type mockTargeting struct{ mock.Mock }

func (m *mockTargeting) RecallCandidates(ctx context.Context, q application.CandidateQuery) (*application.CandidatesResult, error) {
	args := m.Called(ctx, q)
	return getOr[*application.CandidatesResult](args, 0), args.Error(1)
}
