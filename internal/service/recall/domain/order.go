package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order 是商家导入的一笔历史订单，按 (merchant_id, user_id) 聚合做活跃度分析。
type Order struct {
	ID          int64           `json:"id"`
	MerchantID  int64           `json:"merchant_id"`
	OrderNo     string          `json:"order_id"` // 商家侧订单号，可为空
	UserID      string          `json:"user_id"`
	Name        string          `json:"name"`
	Contact     string          `json:"contact"`
	ContactType string          `json:"contact_type"`
	Product     string          `json:"product"`
	ProductType string          `json:"product_type"`
	Amount      decimal.Decimal `json:"amount"`
	CreateTime  time.Time       `json:"create_time"`
}

// InactiveUser 是超过指定天数没有下单的用户的订单聚合。
type InactiveUser struct {
	UserID          string          `json:"user_id"`
	UserName        string          `json:"user_name"`
	Contact         string          `json:"contact"`
	ContactType     string          `json:"contact_type"`
	LastProduct     string          `json:"last_product"`
	LastProductType string          `json:"last_product_type"`
	LastOrderTime   time.Time       `json:"last_order_time"`
	TotalOrders     int64           `json:"total_orders"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	InactiveDays    int             `json:"inactive_days"`
}

// OrderUpdate 是订单更正，nil 字段保持不变。id、merchant_id 和 create_time 不可更正。
type OrderUpdate struct {
	OrderNo     *string          `json:"order_id"`
	UserID      *string          `json:"user_id"`
	Name        *string          `json:"name"`
	Contact     *string          `json:"contact"`
	ContactType *string          `json:"contact_type"`
	Product     *string          `json:"product"`
	ProductType *string          `json:"product_type"`
	Amount      *decimal.Decimal `json:"amount"`
}

// Empty 表示没有任何要更正的字段。
func (u OrderUpdate) Empty() bool {
	return u.OrderNo == nil && u.UserID == nil && u.Name == nil && u.Contact == nil &&
		u.ContactType == nil && u.Product == nil && u.ProductType == nil && u.Amount == nil
}

type OrderFilter struct {
	MerchantID  int64
	UserID      string
	ProductType string
	Range       DateRange
}

// DateRange 是闭区间，两端都可缺省。
type DateRange struct {
	Start *time.Time
	End   *time.Time
}
