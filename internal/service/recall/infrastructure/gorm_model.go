package infrastructure

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// 以下模型只用于建表和迁移，运行期的读写走 SQL 构建器。

// MerchantModel 对应 t_merchant 表
type MerchantModel struct {
	ID         int64        `gorm:"column:id;primaryKey;autoIncrement"`
	Username   string       `gorm:"column:username;type:varchar(64);not null;uniqueIndex:uk_username"`
	Password   string       `gorm:"column:password;type:varchar(128);not null"`
	Name       *string      `gorm:"column:name;type:varchar(128)"`
	Industry   *string      `gorm:"column:industry;type:varchar(64)"`
	IsDeleted  bool         `gorm:"column:is_deleted;not null;default:0"`
	CreateTime time.Time    `gorm:"column:create_time;not null;default:CURRENT_TIMESTAMP"`
	UpdateTime sql.NullTime `gorm:"column:update_time"`
}

func (MerchantModel) TableName() string { return merchantTable }

// OrderModel 对应 t_order 表
type OrderModel struct {
	ID          int64           `gorm:"column:id;primaryKey;autoIncrement"`
	MerchantID  int64           `gorm:"column:merchant_id;not null;index:idx_merchant_user,priority:1"`
	OrderID     *string         `gorm:"column:order_id;type:varchar(64)"`
	UserID      string          `gorm:"column:user_id;type:varchar(64);not null;index:idx_merchant_user,priority:2"`
	Name        *string         `gorm:"column:name;type:varchar(128)"`
	Contact     *string         `gorm:"column:contact;type:varchar(128)"`
	ContactType *string         `gorm:"column:contact_type;type:varchar(32)"`
	Product     *string         `gorm:"column:product;type:varchar(128)"`
	ProductType *string         `gorm:"column:product_type;type:varchar(64)"`
	Amount      decimal.Decimal `gorm:"column:amount;type:decimal(12,2);not null;default:0"`
	CreateTime  time.Time       `gorm:"column:create_time;not null;index"`
}

func (OrderModel) TableName() string { return orderTable }

// RecallModel 对应 t_recall 表
type RecallModel struct {
	ID           int64        `gorm:"column:id;primaryKey;autoIncrement"`
	MerchantID   int64        `gorm:"column:merchant_id;not null;index:idx_merchant_contact,priority:1"`
	UserName     *string      `gorm:"column:user_name;type:varchar(128)"`
	Token        string       `gorm:"column:token;type:varchar(64);not null;uniqueIndex:uk_token"`
	TokenExpired time.Time    `gorm:"column:token_expired;not null;index:idx_expired_click,priority:1"`
	Product      *string      `gorm:"column:product;type:varchar(128)"`
	ProductType  *string      `gorm:"column:product_type;type:varchar(64)"`
	CouponType   *string      `gorm:"column:coupon_type;type:varchar(32)"`
	CouponValue  *string      `gorm:"column:coupon_value;type:varchar(64)"`
	Contact      *string      `gorm:"column:contact;type:varchar(128);index:idx_merchant_contact,priority:2"`
	ContactType  *string      `gorm:"column:contact_type;type:varchar(32)"`
	Click        bool         `gorm:"column:click;not null;default:0;index:idx_expired_click,priority:2"`
	ClickTime    sql.NullTime `gorm:"column:click_time"`
	Claim        bool         `gorm:"column:claim;not null;default:0"`
	ClaimTime    sql.NullTime `gorm:"column:claim_time"`
	Writeoff     bool         `gorm:"column:writeoff;not null;default:0"`
	WriteoffTime sql.NullTime `gorm:"column:writeoff_time"`
	Status       string       `gorm:"column:status;type:varchar(16);not null;default:active"`
	CreateTime   time.Time    `gorm:"column:create_time;not null;index"`
	UpdateTime   sql.NullTime `gorm:"column:update_time"`
}

func (RecallModel) TableName() string { return recallTable }
