package domain

import "time"

// TokenTTL 是召回 token 从创建起的有效期，不会被延长。
const TokenTTL = 7 * 24 * time.Hour

// DefaultUserName 是召回记录没有用户名时落地页上的称呼。
const DefaultUserName = "尊敬的用户"

const (
	StatusActive  = "active"
	StatusExpired = "expired"
)

// ContactTypeMobile 是短信可以送达的联系方式类型。
const ContactTypeMobile = "mobile"

// Recall 是一条召回触达记录，也是漏斗的状态载体: 创建 -> 打开 -> 领取 -> 核销。
// 三个漏斗标记一旦置位就不会回退。
type Recall struct {
	ID           int64     `json:"id"`
	MerchantID   int64     `json:"merchant_id"`
	UserName     string    `json:"user_name"`
	Token        string    `json:"token"`
	TokenExpired time.Time `json:"token_expired"`

	Product     string     `json:"product"`
	ProductType string     `json:"product_type"`
	CouponType  CouponType `json:"coupon_type"`
	CouponValue *string    `json:"coupon_value"`

	Contact     string `json:"contact"`
	ContactType string `json:"contact_type"`

	Clicked      bool       `json:"click"`
	ClickTime    *time.Time `json:"click_time"`
	Claimed      bool       `json:"claim"`
	ClaimTime    *time.Time `json:"claim_time"`
	WrittenOff   bool       `json:"writeoff"`
	WriteOffTime *time.Time `json:"writeoff_time"`

	Status     string     `json:"status"`
	CreateTime time.Time  `json:"create_time"`
	UpdateTime *time.Time `json:"update_time"`
}

// RecallTarget 是创建召回时的一个目标用户。
type RecallTarget struct {
	MerchantID  int64
	UserName    string
	Product     string
	ProductType string
	Contact     string
	ContactType string
	CouponType  CouponType
	CouponValue *string
}

// NewRecall 用目标用户、token 和创建时间构造一条新召回记录。
func NewRecall(t RecallTarget, token string, now time.Time, ttl time.Duration) *Recall {
	if ttl <= 0 {
		ttl = TokenTTL
	}
	return &Recall{
		MerchantID:   t.MerchantID,
		UserName:     t.UserName,
		Token:        token,
		TokenExpired: now.Add(ttl),
		Product:      t.Product,
		ProductType:  t.ProductType,
		CouponType:   t.CouponType,
		CouponValue:  t.CouponValue,
		Contact:      t.Contact,
		ContactType:  t.ContactType,
		Status:       StatusActive,
		CreateTime:   now,
	}
}

// IsExpired 在 token_expired 严格早于 now 或已被清理任务标记为过期时返回 true。
// token_expired 恰好等于 now 时仍然有效。
func (r *Recall) IsExpired(now time.Time) bool {
	return r.Status == StatusExpired || r.TokenExpired.Before(now)
}

// TimeLeft 返回剩余有效时间，不会为负。
func (r *Recall) TimeLeft(now time.Time) time.Duration {
	left := r.TokenExpired.Sub(now)
	if left < 0 || r.Status == StatusExpired {
		return 0
	}
	return left
}

// DisplayName 返回落地页上的用户称呼。
func (r *Recall) DisplayName() string {
	if r.UserName == "" {
		return DefaultUserName
	}
	return r.UserName
}

func (r *Recall) CouponLabel() (string, error) {
	return CouponLabel(r.CouponType, r.CouponValue)
}

// Click 标记已打开。可以重复调用，每次都会刷新 click_time。
func (r *Recall) Click(now time.Time) {
	r.Clicked = true
	r.ClickTime = &now
}

// Claim 领取优惠券，要求已打开、本人领取、未过期且未领取过。
func (r *Recall) Claim(now time.Time, userName string) error {
	switch {
	case !r.Clicked:
		return ErrNotClicked
	case userName != r.UserName:
		return ErrUserMismatch
	case r.IsExpired(now):
		return ErrTokenExpired
	case r.Claimed:
		return ErrAlreadyClaimed
	}
	r.Claimed = true
	r.ClaimTime = &now
	return nil
}

// WriteOff 核销优惠券，要求已领取。
func (r *Recall) WriteOff(now time.Time) error {
	switch {
	case !r.Claimed:
		return ErrNotClaimed
	case r.WrittenOff:
		return ErrAlreadyWrittenOff
	}
	r.WrittenOff = true
	r.WriteOffTime = &now
	return nil
}
