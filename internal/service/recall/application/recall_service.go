package application

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"recall/internal/pkg/logger"
	"recall/internal/pkg/metrics"
	"recall/internal/service/recall/domain"
	"recall/internal/service/recall/domain/port"
	"recall/internal/tracing"
)

// DefaultCleanupRetention 是清理任务默认的保留期: 过期超过 30 天且从未打开的记录会被标记为 expired。
const DefaultCleanupRetention = 30 * 24 * time.Hour

const defaultHistoryLimit = 20

// RecallService 管理召回记录的创建、落地页、领取、核销和过期清理。
type RecallService struct {
	repo      domain.RecallRepository
	sms       port.SMSDispatcher
	publisher port.FunnelPublisher
	views     port.ViewCounter
	tracer    trace.Tracer

	now       func() time.Time
	newToken  func() string
	baseURL   string
	ttl       time.Duration
	retention time.Duration
}

type RecallOption func(*RecallService)

func WithClock(now func() time.Time) RecallOption {
	return func(s *RecallService) { s.now = now }
}

func WithTokenGenerator(gen func() string) RecallOption {
	return func(s *RecallService) { s.newToken = gen }
}

// WithPublicBaseURL 设置落地页链接的前缀，例如 https://recall.example.com。
func WithPublicBaseURL(base string) RecallOption {
	return func(s *RecallService) { s.baseURL = strings.TrimRight(base, "/") }
}

func WithTokenTTL(ttl time.Duration) RecallOption {
	return func(s *RecallService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithCleanupRetention(d time.Duration) RecallOption {
	return func(s *RecallService) {
		if d > 0 {
			s.retention = d
		}
	}
}

func WithFunnelPublisher(p port.FunnelPublisher) RecallOption {
	return func(s *RecallService) { s.publisher = p }
}

func WithViewCounter(v port.ViewCounter) RecallOption {
	return func(s *RecallService) { s.views = v }
}

func NewRecallService(repo domain.RecallRepository, sms port.SMSDispatcher, tracer trace.Tracer, opts ...RecallOption) *RecallService {
	s := &RecallService{
		repo:      repo,
		sms:       sms,
		publisher: noopPublisher{},
		views:     noopViews{},
		tracer:    tracer,
		now:       time.Now,
		newToken:  newHexToken,
		ttl:       domain.TokenTTL,
		retention: DefaultCleanupRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newHexToken 生成 32 位十六进制的随机 token。
func newHexToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// LandingURL 返回 token 对应的落地页地址。
func (s *RecallService) LandingURL(token string) string {
	return s.baseURL + "/landing/" + token
}

// CreateRecalls 为每个目标用户生成 token 并在一个事务里落库，然后把整批记录交给短信服务商。
// 短信是尽力而为的: 发送失败不回滚已写入的记录，失败原因放在 DispatchError 里返回。
func (s *RecallService) CreateRecalls(ctx context.Context, req CreateRecallsRequest) (*CreateRecallsResult, error) {
	ctx, span := s.tracer.Start(ctx, "service.CreateRecalls")
	defer span.End()
	span.SetAttributes(attribute.Int("recalls.count", len(req.RecallUsers)))

	if len(req.RecallUsers) == 0 {
		return nil, domain.ErrEmptyRecalls
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	now := s.now()
	recalls := make([]*domain.Recall, len(req.RecallUsers))
	tokens := make([]string, len(req.RecallUsers))
	for i, in := range req.RecallUsers {
		tokens[i] = s.newToken()
		recalls[i] = domain.NewRecall(in.target(), tokens[i], now, s.ttl)
	}

	persisted, err := s.repo.BatchCreate(ctx, recalls)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	logger.Ctx(ctx).Info().Int64("persisted", persisted).Msg("recalls created")

	events := make([]domain.FunnelEvent, len(recalls))
	for i, r := range recalls {
		events[i] = domain.FunnelEvent{Stage: domain.StageCreated, MerchantID: r.MerchantID, RecallID: r.ID, Token: r.Token, UserName: r.UserName, OccurredAt: now}
	}
	s.publish(ctx, events...)

	result := &CreateRecallsResult{Persisted: persisted, Tokens: tokens}
	dispatch, err := s.sms.Dispatch(ctx, recalls, s.LandingURL)
	result.Dispatch = dispatch
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sms dispatch failed")
		logger.Ctx(ctx).Error().Err(err).Int("recipients", len(recalls)).Msg("sms dispatch failed")
		result.DispatchError = err.Error()
	}
	return result, nil
}

// GetRecall 按 token 查询召回记录，不检查是否过期。
func (s *RecallService) GetRecall(ctx context.Context, token string) (*domain.Recall, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetRecall")
	defer span.End()

	if token == "" {
		return nil, domain.ErrTokenRequired
	}
	r, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return r, nil
}

// OpenLanding 处理落地页访问: 校验 token 和券，标记已打开并累计浏览次数。
// token 不存在、已过期或没有券值时返回 ErrCouponUnavailable，此时不标记打开。
func (s *RecallService) OpenLanding(ctx context.Context, token string) (*LandingView, error) {
	ctx, span := s.tracer.Start(ctx, "service.OpenLanding")
	defer span.End()

	r, err := s.GetRecall(ctx, token)
	if err != nil {
		if _, ok := domain.AsAppError(err); ok {
			return nil, domain.ErrCouponUnavailable
		}
		return nil, err
	}
	span.SetAttributes(attribute.Int64("recall.id", r.ID))
	now := s.now()
	if r.IsExpired(now) {
		return nil, domain.ErrCouponUnavailable
	}
	label, err := r.CouponLabel()
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.MarkClicked(ctx, token, now); err != nil {
		span.RecordError(err)
		return nil, err
	}
	first := !r.Clicked
	r.Click(now)
	if first {
		s.publish(ctx, domain.FunnelEvent{Stage: domain.StageClicked, MerchantID: r.MerchantID, RecallID: r.ID, Token: token, UserName: r.UserName, OccurredAt: now})
	}

	views, err := s.views.Incr(ctx, r.MerchantID, token, r.TokenExpired)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("count landing view failed")
	}

	return &LandingView{
		ID:            r.ID,
		UserName:      r.DisplayName(),
		Coupon:        label,
		Product:       r.Product,
		ProductType:   r.ProductType,
		Token:         token,
		TokenExpired:  r.TokenExpired,
		TokenTimeLeft: int64(r.TimeLeft(now) / time.Second),
		Views:         views,
	}, nil
}

// MarkClicked 直接置 click=1，重复调用只刷新 click_time。token 不存在时影响行数为 0。
func (s *RecallService) MarkClicked(ctx context.Context, token string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "service.MarkClicked")
	defer span.End()

	if token == "" {
		return 0, domain.ErrTokenRequired
	}
	n, err := s.repo.MarkClicked(ctx, token, s.now())
	if err != nil {
		span.RecordError(err)
	}
	return n, err
}

// ClaimCoupon 领取优惠券。先在实体上检查前置条件，再做条件更新，
// 并发的重复领取只有一个会成功，其余返回 ErrAlreadyClaimed。
func (s *RecallService) ClaimCoupon(ctx context.Context, req ClaimRequest) error {
	ctx, span := s.tracer.Start(ctx, "service.ClaimCoupon")
	defer span.End()

	r, err := s.GetRecall(ctx, req.Token)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int64("recall.id", r.ID))
	now := s.now()
	if err := r.Claim(now, req.Username); err != nil {
		return err
	}
	n, err := s.repo.MarkClaimed(ctx, req.Token, now)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if n == 0 {
		return domain.ErrAlreadyClaimed
	}
	logger.Ctx(ctx).Info().Int64("recall_id", r.ID).Int64("merchant_id", r.MerchantID).Msg("coupon claimed")
	s.publish(ctx, domain.FunnelEvent{Stage: domain.StageClaimed, MerchantID: r.MerchantID, RecallID: r.ID, Token: req.Token, UserName: r.UserName, OccurredAt: now})
	return nil
}

// WriteOff 核销已领取的优惠券。
func (s *RecallService) WriteOff(ctx context.Context, token string) error {
	ctx, span := s.tracer.Start(ctx, "service.WriteOff")
	defer span.End()

	r, err := s.GetRecall(ctx, token)
	if err != nil {
		return err
	}
	now := s.now()
	if err := r.WriteOff(now); err != nil {
		return err
	}
	n, err := s.repo.MarkWrittenOff(ctx, token, now)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if n == 0 {
		return domain.ErrAlreadyWrittenOff
	}
	s.publish(ctx, domain.FunnelEvent{Stage: domain.StageWrittenOff, MerchantID: r.MerchantID, RecallID: r.ID, Token: token, UserName: r.UserName, OccurredAt: now})
	return nil
}

// CleanupExpired 把 token_expired 早于 cutoff 且从未打开的记录标记为 expired。
// cutoff 为零值时取 now 减去保留期。
func (s *RecallService) CleanupExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "service.CleanupExpired")
	defer span.End()

	now := s.now()
	if cutoff.IsZero() {
		cutoff = now.Add(-s.retention)
	}
	span.SetAttributes(attribute.String("cleanup.cutoff", cutoff.Format(time.DateTime)))

	n, err := s.repo.CleanupExpired(ctx, cutoff, now)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	logger.Ctx(ctx).Info().Int64("expired", n).Time("cutoff", cutoff).Msg("expired recalls cleaned up")
	if n > 0 {
		s.publish(ctx, domain.FunnelEvent{Stage: domain.StageExpired, Count: n, OccurredAt: now})
	}
	return n, nil
}

// RecallStats 返回汇总和按日的漏斗统计。
func (s *RecallService) RecallStats(ctx context.Context, merchantID int64, r domain.DateRange) (*RecallStatsResult, error) {
	ctx, span := s.tracer.Start(ctx, "service.RecallStats")
	defer span.End()

	summary, err := s.repo.Stats(ctx, merchantID, r)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	daily, err := s.repo.DailyStats(ctx, merchantID, r)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	views, err := s.views.MerchantTotal(ctx, merchantID)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Int64("merchant_id", merchantID).Msg("read landing views failed")
	}
	return &RecallStatsResult{Summary: summary, Daily: daily, Views: views}, nil
}

// RecallDetail 返回召回记录和它的落地页浏览次数，浏览计数读取失败时记为 0。
func (s *RecallService) RecallDetail(ctx context.Context, token string) (*RecallDetailResult, error) {
	ctx, span := s.tracer.Start(ctx, "service.RecallDetail")
	defer span.End()

	r, err := s.GetRecall(ctx, token)
	if err != nil {
		return nil, err
	}
	views, err := s.views.Get(ctx, token)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Int64("recall_id", r.ID).Msg("read landing views failed")
	}
	return &RecallDetailResult{Recall: r, Views: views}, nil
}

func (s *RecallService) UserRecallHistory(ctx context.Context, merchantID int64, contact, contactType string, limit int) ([]*domain.Recall, error) {
	ctx, span := s.tracer.Start(ctx, "service.UserRecallHistory")
	defer span.End()

	if contact == "" {
		return nil, domain.InvalidArgument("联系方式不能为空")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	out, err := s.repo.UserHistory(ctx, merchantID, contact, contactType, limit)
	if err != nil {
		span.RecordError(err)
	}
	return out, err
}

func (s *RecallService) QueryRecalls(ctx context.Context, f domain.RecallFilter, page, pageSize int) (*domain.Page[*domain.Recall], error) {
	ctx, span := s.tracer.Start(ctx, "service.QueryRecalls")
	defer span.End()
	p, err := s.repo.Query(ctx, f, page, pageSize)
	if err != nil {
		span.RecordError(err)
	}
	return p, err
}

// ExpiredRecalls 返回 before 之前过期且从未打开的记录。before 为零值时取当前时间。
func (s *RecallService) ExpiredRecalls(ctx context.Context, before time.Time, limit int) ([]*domain.Recall, error) {
	ctx, span := s.tracer.Start(ctx, "service.ExpiredRecalls")
	defer span.End()
	if before.IsZero() {
		before = s.now()
	}
	out, err := s.repo.Expired(ctx, before, limit)
	if err != nil {
		span.RecordError(err)
	}
	return out, err
}

// publish 记录漏斗指标并发布事件，发布失败只记日志。
func (s *RecallService) publish(ctx context.Context, events ...domain.FunnelEvent) {
	traceID := tracing.GetTraceIDFromContext(ctx)
	for i := range events {
		events[i].TraceID = traceID
		n := events[i].Count
		if n == 0 {
			n = 1
		}
		metrics.FunnelEvents.WithLabelValues(events[i].Stage.MetricLabel()).Add(float64(n))
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Int("events", len(events)).Msg("publish funnel events failed")
	}
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, ...domain.FunnelEvent) error { return nil }

type noopViews struct{}

func (noopViews) Incr(context.Context, int64, string, time.Time) (int64, error) { return 0, nil }
func (noopViews) Get(context.Context, string) (int64, error)                    { return 0, nil }
func (noopViews) MerchantTotal(context.Context, int64) (int64, error)           { return 0, nil }
