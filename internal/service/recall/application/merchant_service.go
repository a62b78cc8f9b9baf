package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"recall/internal/pkg/logger"
	"recall/internal/service/recall/domain"
)

// HashPassword 是沿用的口令摘要: 一次无盐 SHA-256，十六进制输出。
// 强度不足，库里已有的数据依赖它，新账号可以改存 bcrypt 摘要。
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// CheckPassword 校验口令。以 "$2" 开头的摘要按 bcrypt 校验，其余按 HashPassword 比较。
func CheckPassword(stored, password string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return stored == HashPassword(password)
}

// MerchantService 负责商家登录和商家资料维护。
type MerchantService struct {
	repo   domain.MerchantRepository
	tracer trace.Tracer
	now    func() time.Time
	bcrypt bool
}

type MerchantOption func(*MerchantService)

// WithBcrypt 让新建商家和修改后的口令用 bcrypt 存储。
func WithBcrypt() MerchantOption {
	return func(s *MerchantService) { s.bcrypt = true }
}

func WithMerchantClock(now func() time.Time) MerchantOption {
	return func(s *MerchantService) { s.now = now }
}

func NewMerchantService(repo domain.MerchantRepository, tracer trace.Tracer, opts ...MerchantOption) *MerchantService {
	s := &MerchantService{repo: repo, tracer: tracer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login 校验用户名和口令，成功时返回一个一次性的登录 token。
// token 不落库也不会被校验。已软删除的商家视为不存在。
func (s *MerchantService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, "service.Login")
	defer span.End()
	span.SetAttributes(attribute.String("merchant.username", req.Username))

	if strings.TrimSpace(req.Username) == "" {
		return nil, domain.ErrUsernameRequired
	}
	m, err := s.repo.FindByUsername(ctx, req.Username)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if m.IsDeleted {
		return nil, domain.ErrMerchantNotFound
	}
	if !CheckPassword(m.Password, req.Password) {
		logger.Ctx(ctx).Warn().Str("username", req.Username).Msg("password mismatch")
		return nil, domain.ErrPasswordMismatch
	}

	now := s.now()
	seed := fmt.Sprintf("%s%s%f", req.Username, req.Password, float64(now.UnixNano())/1e9)
	sum := sha256.Sum256([]byte(seed))
	return &LoginResult{
		Username: req.Username,
		Name:     m.DisplayName(),
		Token:    hex.EncodeToString(sum[:]),
	}, nil
}

func (s *MerchantService) GetMerchantByID(ctx context.Context, id int64) (*domain.Merchant, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetMerchantByID")
	defer span.End()
	if id <= 0 {
		return nil, domain.InvalidArgument("商户ID不能为空")
	}
	m, err := s.repo.FindByID(ctx, id)
	if err != nil {
		span.RecordError(err)
	}
	return m, err
}

func (s *MerchantService) GetMerchantByUsername(ctx context.Context, username string) (*domain.Merchant, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetMerchantByUsername")
	defer span.End()
	if username == "" {
		return nil, domain.ErrUsernameRequired
	}
	m, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		span.RecordError(err)
	}
	return m, err
}

// CreateMerchant 创建商家，用户名已存在时返回 ErrUsernameTaken。
func (s *MerchantService) CreateMerchant(ctx context.Context, req CreateMerchantRequest) (*domain.Merchant, error) {
	ctx, span := s.tracer.Start(ctx, "service.CreateMerchant")
	defer span.End()

	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindByUsername(ctx, req.Username); err == nil {
		return nil, domain.ErrUsernameTaken
	} else if !errors.Is(err, domain.ErrMerchantNotFound) {
		span.RecordError(err)
		return nil, err
	}

	digest, err := s.digest(req.Password)
	if err != nil {
		return nil, err
	}
	m := &domain.Merchant{
		Username:   req.Username,
		Password:   digest,
		Name:       req.Name,
		Industry:   req.Industry,
		CreateTime: s.now(),
	}
	if _, err := s.repo.Create(ctx, m); err != nil {
		span.RecordError(err)
		return nil, err
	}
	logger.Ctx(ctx).Info().Int64("merchant_id", m.ID).Str("username", m.Username).Msg("merchant created")
	return m, nil
}

// UpdateMerchant 更新商家资料，新口令会重新做摘要。
func (s *MerchantService) UpdateMerchant(ctx context.Context, id int64, upd domain.MerchantUpdate) error {
	ctx, span := s.tracer.Start(ctx, "service.UpdateMerchant")
	defer span.End()

	if id <= 0 {
		return domain.InvalidArgument("商户ID不能为空")
	}
	if upd.Name == nil && upd.Industry == nil && upd.Password == nil {
		return domain.InvalidArgument("没有需要更新的字段")
	}
	if upd.Password != nil {
		digest, err := s.digest(*upd.Password)
		if err != nil {
			return err
		}
		upd.Password = &digest
	}
	n, err := s.repo.Update(ctx, id, upd, s.now())
	if err != nil {
		span.RecordError(err)
		return err
	}
	if n == 0 {
		return domain.ErrMerchantNotFound
	}
	return nil
}

// digest 按服务配置生成口令摘要，新建和改口令共用。
func (s *MerchantService) digest(password string) (string, error) {
	if !s.bcrypt {
		return HashPassword(password), nil
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "bcrypt password")
	}
	return string(b), nil
}

// DeleteMerchant 软删除商家。
func (s *MerchantService) DeleteMerchant(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "service.DeleteMerchant")
	defer span.End()

	n, err := s.repo.SoftDelete(ctx, id, s.now())
	if err != nil {
		span.RecordError(err)
		return err
	}
	if n == 0 {
		return domain.ErrMerchantNotFound
	}
	return nil
}

func (s *MerchantService) QueryMerchants(ctx context.Context, f domain.MerchantFilter, page, pageSize int) (*domain.Page[*domain.Merchant], error) {
	ctx, span := s.tracer.Start(ctx, "service.QueryMerchants")
	defer span.End()
	p, err := s.repo.Query(ctx, f, page, pageSize)
	if err != nil {
		span.RecordError(err)
	}
	return p, err
}

func (s *MerchantService) MerchantStats(ctx context.Context, merchantID int64) (*domain.MerchantStats, error) {
	ctx, span := s.tracer.Start(ctx, "service.MerchantStats")
	defer span.End()
	st, err := s.repo.Stats(ctx, merchantID)
	if err != nil {
		span.RecordError(err)
	}
	return st, err
}
