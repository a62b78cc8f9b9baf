package application

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"recall/internal/pkg/logger"
	"recall/internal/service/recall/domain"
	"recall/internal/service/recall/domain/port"
)

const defaultCandidateLimit = 500

// TargetingService 从订单中找出未活跃用户，按画像分群去重，给召回提供候选人。
type TargetingService struct {
	orders    domain.OrderRepository
	merchants domain.MerchantRepository
	rules     port.RuleEngine
	tracer    trace.Tracer
	now       func() time.Time
}

func NewTargetingService(orders domain.OrderRepository, merchants domain.MerchantRepository, rules port.RuleEngine, tracer trace.Tracer) *TargetingService {
	return &TargetingService{orders: orders, merchants: merchants, rules: rules, tracer: tracer, now: time.Now}
}

// RecallCandidates 返回每个画像分群的代表用户和分群人数，分群按首次出现的顺序排列。
// Rule 非空时只保留规则求值为 true 的用户。
func (s *TargetingService) RecallCandidates(ctx context.Context, q CandidateQuery) (*CandidatesResult, error) {
	ctx, span := s.tracer.Start(ctx, "service.RecallCandidates")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("merchant.id", q.MerchantID),
		attribute.Int("inactive_days", q.InactiveDays),
		attribute.String("rule", q.Rule),
	)

	if err := validateStruct(q); err != nil {
		return nil, err
	}
	rule := strings.TrimSpace(q.Rule)
	if rule != "" {
		if err := s.rules.Validate(rule); err != nil {
			return nil, err
		}
	}
	limit := q.Limit
	if limit == 0 {
		limit = defaultCandidateLimit
	}

	merchant, err := s.merchants.FindByID(ctx, q.MerchantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	users, err := s.orders.InactiveUsers(ctx, q.MerchantID, s.now().AddDate(0, 0, -q.InactiveDays), limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	set := domain.NewPortraitSet()
	representatives := make(map[domain.PortraitKey]*domain.InactiveUser)
	matched := 0
	for _, u := range users {
		p := domain.PortraitOf(u, merchant.Industry)
		if rule != "" {
			ok, err := s.rules.Evaluate(rule, port.PortraitFact{
				Portrait:     p,
				TotalAmount:  u.TotalAmount.InexactFloat64(),
				TotalOrders:  u.TotalOrders,
				InactiveDays: int64(u.InactiveDays),
			})
			if err != nil {
				logger.Ctx(ctx).Warn().Err(err).Str("user_id", u.UserID).Msg("rule evaluation failed, user skipped")
				continue
			}
			if !ok {
				continue
			}
		}
		matched++
		if set.Add(p) {
			representatives[p.Key()] = u
		}
	}

	result := &CandidatesResult{Scanned: len(users), Matched: matched, Segments: []*CandidateSegment{}}
	for _, p := range set.Items() {
		result.Segments = append(result.Segments, &CandidateSegment{
			Portrait:       p,
			Size:           set.Count(p),
			Representative: representatives[p.Key()],
		})
	}
	span.SetAttributes(attribute.Int("segments", set.Len()))
	return result, nil
}
