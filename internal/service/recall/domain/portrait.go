package domain

import "github.com/shopspring/decimal"

// 用户价值分层
const (
	UserValueHigh   = "high"
	UserValueMedium = "medium"
	UserValueLow    = "low"
)

// 用户流失状态
const (
	UserStatusDormant = "dormant" // 沉睡
	UserStatusLapsed  = "lapsed"  // 流失
	UserStatusLost    = "lost"    // 深度流失
)

var (
	highValueThreshold   = decimal.NewFromInt(1000)
	mediumValueThreshold = decimal.NewFromInt(200)
)

// ClassifyUserValue 按累计消费金额分层: 1000 及以上为 high，200 及以上为 medium。
func ClassifyUserValue(total decimal.Decimal) string {
	switch {
	case total.GreaterThanOrEqual(highValueThreshold):
		return UserValueHigh
	case total.GreaterThanOrEqual(mediumValueThreshold):
		return UserValueMedium
	}
	return UserValueLow
}

// ClassifyUserStatus 按未下单天数分级: 180 天及以上 lost，90 天及以上 lapsed，其余 dormant。
func ClassifyUserStatus(inactiveDays int) string {
	switch {
	case inactiveDays >= 180:
		return UserStatusLost
	case inactiveDays >= 90:
		return UserStatusLapsed
	}
	return UserStatusDormant
}

// PortraitOf 用未活跃用户的订单聚合和商家行业生成画像。
func PortraitOf(u *InactiveUser, industry string) UserPortrait {
	return UserPortrait{
		UserValue:   ClassifyUserValue(u.TotalAmount),
		UserStatus:  ClassifyUserStatus(u.InactiveDays),
		ProductType: u.LastProductType,
		Industry:    industry,
		Extra: map[string]any{
			"user_id":      u.UserID,
			"last_product": u.LastProduct,
			"total_orders": u.TotalOrders,
		},
	}
}

// PortraitKey 是用户画像的身份，只由四个分群字段组成。
type PortraitKey struct {
	UserValue   string
	UserStatus  string
	ProductType string
	Industry    string
}

// UserPortrait 是用于召回分群的用户画像。相等性只看 Key，Extra 中的字段不参与。
type UserPortrait struct {
	UserValue   string         `json:"user_value"`
	UserStatus  string         `json:"user_status"`
	ProductType string         `json:"product_type"`
	Industry    string         `json:"industry"`
	Extra       map[string]any `json:"extra,omitempty"`
}

func (p UserPortrait) Key() PortraitKey {
	return PortraitKey{
		UserValue:   p.UserValue,
		UserStatus:  p.UserStatus,
		ProductType: p.ProductType,
		Industry:    p.Industry,
	}
}

// Equal 按四个分群字段比较。
func (p UserPortrait) Equal(other UserPortrait) bool {
	return p.Key() == other.Key()
}

// PortraitSet 按 Key 去重，保持首次插入顺序，并记录每个分群命中的次数。
type PortraitSet struct {
	order  []PortraitKey
	items  map[PortraitKey]UserPortrait
	counts map[PortraitKey]int
}

func NewPortraitSet() *PortraitSet {
	return &PortraitSet{
		items:  make(map[PortraitKey]UserPortrait),
		counts: make(map[PortraitKey]int),
	}
}

// Add 加入画像，分群已存在时保留第一个代表并返回 false。
func (s *PortraitSet) Add(p UserPortrait) bool {
	k := p.Key()
	s.counts[k]++
	if _, ok := s.items[k]; ok {
		return false
	}
	s.items[k] = p
	s.order = append(s.order, k)
	return true
}

func (s *PortraitSet) Contains(p UserPortrait) bool {
	_, ok := s.items[p.Key()]
	return ok
}

func (s *PortraitSet) Len() int { return len(s.order) }

// Count 返回该分群被 Add 的次数。
func (s *PortraitSet) Count(p UserPortrait) int { return s.counts[p.Key()] }

// Items 按插入顺序返回每个分群的代表画像。
func (s *PortraitSet) Items() []UserPortrait {
	out := make([]UserPortrait, len(s.order))
	for i, k := range s.order {
		out[i] = s.items[k]
	}
	return out
}
