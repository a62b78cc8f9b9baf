package application

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"recall/internal/service/recall/domain"
	"recall/internal/service/recall/domain/port"
)

var validate = validator.New()

// validateStruct 把 validator 的错误转换成可以直接展示的业务错误。
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, validationMessage(fe))
	}
	return domain.InvalidArgument(strings.Join(msgs, "; "))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s不能为空", fe.Field())
	case "gt", "min":
		return fmt.Sprintf("%s必须大于%s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s必须是 %s 之一", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s不合法", fe.Field())
}

// LoginRequest 是 POST /login 的请求体。
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResult struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Token    string `json:"token"`
}

type CreateMerchantRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name"`
	Industry string `json:"industry"`
}

// OrderInput 是一笔待写入的订单。create_time 为空时取当前时间。
type OrderInput struct {
	OrderID     string          `json:"order_id"`
	MerchantID  int64           `json:"merchant_id" validate:"gt=0"`
	UserID      string          `json:"user_id" validate:"required"`
	Name        string          `json:"name"`
	Contact     string          `json:"contact"`
	ContactType string          `json:"contact_type"`
	Product     string          `json:"product"`
	ProductType string          `json:"product_type"`
	Amount      decimal.Decimal `json:"amount"`
	CreateTime  string          `json:"create_time"`
}

type CreateOrdersRequest struct {
	Orders []OrderInput `json:"orders" validate:"dive"`
}

type CreateOrdersResult struct {
	Inserted int64 `json:"inserted"`
}

// RecallUserInput 是一个召回目标用户。
type RecallUserInput struct {
	MerchantID  int64   `json:"merchant_id" validate:"gt=0"`
	UserName    string  `json:"user_name"`
	Product     string  `json:"product"`
	ProductType string  `json:"product_type"`
	Contact     string  `json:"contact"`
	ContactType string  `json:"contact_type"`
	CouponType  string  `json:"coupon_type" validate:"omitempty,oneof=full_minus no_threshold free_trial"`
	CouponValue *string `json:"coupon_value"`
}

func (in RecallUserInput) target() domain.RecallTarget {
	return domain.RecallTarget{
		MerchantID:  in.MerchantID,
		UserName:    in.UserName,
		Product:     in.Product,
		ProductType: in.ProductType,
		Contact:     in.Contact,
		ContactType: in.ContactType,
		CouponType:  domain.CouponType(in.CouponType),
		CouponValue: in.CouponValue,
	}
}

type CreateRecallsRequest struct {
	RecallUsers []RecallUserInput `json:"recall_users" validate:"dive"`
}

// CreateRecallsResult 同时给出落库条数和短信结果，短信失败不回滚已写入的记录。
type CreateRecallsResult struct {
	Persisted     int64                `json:"persisted"`
	Tokens        []string             `json:"tokens"`
	Dispatch      *port.DispatchResult `json:"dispatch,omitempty"`
	DispatchError string               `json:"dispatch_error,omitempty"`
}

type ClaimRequest struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// LandingView 是落地页模板的数据。
type LandingView struct {
	ID            int64
	UserName      string
	Coupon        string
	Product       string
	ProductType   string
	Token         string
	TokenExpired  time.Time
	TokenTimeLeft int64
	Views         int64
}

// CandidateQuery 是召回候选人的筛选条件。
type CandidateQuery struct {
	MerchantID   int64  `validate:"gt=0"`
	InactiveDays int    `validate:"gt=0"`
	Limit        int    `validate:"gte=0"`
	Rule         string // CEL 表达式，为空表示不过滤
}

// CandidateSegment 是一个画像分群，带一个代表用户和分群人数。
type CandidateSegment struct {
	Portrait       domain.UserPortrait  `json:"portrait"`
	Size           int                  `json:"size"`
	Representative *domain.InactiveUser `json:"representative"`
}

type CandidatesResult struct {
	Scanned  int                 `json:"scanned"`
	Matched  int                 `json:"matched"`
	Segments []*CandidateSegment `json:"segments"`
}

// RecallStatsResult 的 Views 是商家累计的落地页浏览次数，不受日期范围限制。
type RecallStatsResult struct {
	Summary *domain.RecallStats       `json:"summary"`
	Daily   []*domain.DailyRecallStat `json:"daily"`
	Views   int64                     `json:"views"`
}

type RecallDetailResult struct {
	Recall *domain.Recall `json:"recall"`
	Views  int64          `json:"views"`
}

type OrderStatsResult struct {
	Sales       *domain.SalesStats   `json:"sales"`
	Daily       []*domain.DailySales `json:"daily"`
	TopProducts []*domain.TopProduct `json:"top_products"`
}
