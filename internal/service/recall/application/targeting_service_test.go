package application

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"recall/internal/service/recall/domain"
	"recall/internal/service/recall/domain/port"
)

func inactiveUser(id string, amount int64, days int, productType string) *domain.InactiveUser {
	return &domain.InactiveUser{
		UserID:          id,
		LastProductType: productType,
		TotalAmount:     decimal.NewFromInt(amount),
		TotalOrders:     1,
		InactiveDays:    days,
	}
}

func newTargetingFixture() (*TargetingService, *mockOrderRepo, *mockMerchantRepo, *mockRules) {
	orders, merchants, rules := &mockOrderRepo{}, &mockMerchantRepo{}, &mockRules{}
	svc := NewTargetingService(orders, merchants, rules, testTracer())
	svc.now = fixedClock(now)
	merchants.On("FindByID", mock.Anything, int64(1)).Return(&domain.Merchant{ID: 1, Industry: "游戏"}, nil)
	return svc, orders, merchants, rules
}

func TestRecallCandidatesGroupsByPortrait(t *testing.T) {
	svc, orders, _, rules := newTargetingFixture()
	orders.On("InactiveUsers", mock.Anything, int64(1), now.AddDate(0, 0, -30), defaultCandidateLimit).Return([]*domain.InactiveUser{
		inactiveUser("u1", 1500, 40, "RPG"),
		inactiveUser("u2", 50, 200, "RPG"),
		inactiveUser("u3", 2000, 60, "RPG"),
	}, nil)

	res, err := svc.RecallCandidates(context.Background(), CandidateQuery{MerchantID: 1, InactiveDays: 30})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 3, res.Matched)
	require.Len(t, res.Segments, 2)

	first := res.Segments[0]
	assert.Equal(t, domain.UserValueHigh, first.Portrait.UserValue)
	assert.Equal(t, domain.UserStatusDormant, first.Portrait.UserStatus)
	assert.Equal(t, "游戏", first.Portrait.Industry)
	assert.Equal(t, 2, first.Size)
	assert.Equal(t, "u1", first.Representative.UserID)

	second := res.Segments[1]
	assert.Equal(t, domain.UserValueLow, second.Portrait.UserValue)
	assert.Equal(t, domain.UserStatusLost, second.Portrait.UserStatus)
	assert.Equal(t, 1, second.Size)
	rules.AssertNotCalled(t, "Validate", mock.Anything)
}

func TestRecallCandidatesFiltersByRule(t *testing.T) {
	svc, orders, _, rules := newTargetingFixture()
	const rule = `user_value == "high"`
	orders.On("InactiveUsers", mock.Anything, int64(1), mock.Anything, 10).Return([]*domain.InactiveUser{
		inactiveUser("u1", 1500, 40, "RPG"),
		inactiveUser("u2", 50, 40, "RPG"),
		inactiveUser("u3", 1200, 40, "RPG"),
	}, nil)
	rules.On("Validate", rule).Return(nil)
	isHigh := func(f port.PortraitFact) bool { return f.Portrait.UserValue == domain.UserValueHigh }
	rules.On("Evaluate", rule, mock.MatchedBy(func(f port.PortraitFact) bool { return f.TotalAmount == 1200 })).Return(false, assert.AnError)
	rules.On("Evaluate", rule, mock.MatchedBy(isHigh)).Return(true, nil)
	rules.On("Evaluate", rule, mock.Anything).Return(false, nil)

	res, err := svc.RecallCandidates(context.Background(), CandidateQuery{MerchantID: 1, InactiveDays: 7, Limit: 10, Rule: rule})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 1, res.Matched)
	require.Len(t, res.Segments, 1)
	assert.Equal(t, "u1", res.Segments[0].Representative.UserID)
}

func TestRecallCandidatesRejects(t *testing.T) {
	svc, orders, _, rules := newTargetingFixture()
	rules.On("Validate", "bad(").Return(domain.ErrInvalidRule)

	_, err := svc.RecallCandidates(context.Background(), CandidateQuery{MerchantID: 1, InactiveDays: 7, Rule: "bad("})
	assert.ErrorIs(t, err, domain.ErrInvalidRule)

	_, err = svc.RecallCandidates(context.Background(), CandidateQuery{MerchantID: 1})
	_, ok := domain.AsAppError(err)
	assert.True(t, ok)

	orders.AssertNotCalled(t, "InactiveUsers", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRecallCandidatesUnknownMerchant(t *testing.T) {
	svc, orders, merchants, _ := newTargetingFixture()
	merchants.On("FindByID", mock.Anything, int64(2)).Return(nil, domain.ErrMerchantNotFound)

	_, err := svc.RecallCandidates(context.Background(), CandidateQuery{MerchantID: 2, InactiveDays: 7})
	assert.ErrorIs(t, err, domain.ErrMerchantNotFound)
	orders.AssertNotCalled(t, "InactiveUsers", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRecallCandidatesEmpty(t *testing.T) {
	svc, orders, _, _ := newTargetingFixture()
	orders.On("InactiveUsers", mock.Anything, int64(1), mock.Anything, mock.Anything).Return(nil, nil)

	res, err := svc.RecallCandidates(context.Background(), CandidateQuery{MerchantID: 1, InactiveDays: 7})
	require.NoError(t, err)
	assert.NotNil(t, res.Segments)
	assert.Empty(t, res.Segments)
}
