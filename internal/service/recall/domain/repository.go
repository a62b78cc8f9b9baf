package domain

import (
	"context"
	"time"
)

// MerchantRepository 是商家表的存取接口。找不到记录时返回 ErrMerchantNotFound。
type MerchantRepository interface {
	Create(ctx context.Context, m *Merchant) (int64, error)
	FindByID(ctx context.Context, id int64) (*Merchant, error)
	FindByUsername(ctx context.Context, username string) (*Merchant, error)
	Update(ctx context.Context, id int64, upd MerchantUpdate, now time.Time) (int64, error)
	SoftDelete(ctx context.Context, id int64, now time.Time) (int64, error)
	Query(ctx context.Context, f MerchantFilter, page, pageSize int) (*Page[*Merchant], error)
	Stats(ctx context.Context, merchantID int64) (*MerchantStats, error)
}

type OrderRepository interface {
	BatchCreate(ctx context.Context, orders []*Order) (int64, error)
	FindByID(ctx context.Context, id int64) (*Order, error)
	FindByMerchantOrderNo(ctx context.Context, merchantID int64, orderNo string) (*Order, error)
	Update(ctx context.Context, id int64, upd OrderUpdate) (int64, error)
	UserOrders(ctx context.Context, merchantID int64, userID string, limit int) ([]*Order, error)
	Query(ctx context.Context, f OrderFilter, page, pageSize int) (*Page[*Order], error)
	InactiveUsers(ctx context.Context, merchantID int64, cutoff time.Time, limit int) ([]*InactiveUser, error)
	SalesStats(ctx context.Context, merchantID int64, r DateRange) (*SalesStats, error)
	DailySales(ctx context.Context, merchantID int64, r DateRange) ([]*DailySales, error)
	TopProducts(ctx context.Context, merchantID int64, limit int, r DateRange) ([]*TopProduct, error)
}

// RecallRepository 是召回表的存取接口。
// MarkClaimed 和 MarkWrittenOff 是条件更新，前置状态不满足时影响行数为 0。
type RecallRepository interface {
	BatchCreate(ctx context.Context, recalls []*Recall) (int64, error)
	FindByToken(ctx context.Context, token string) (*Recall, error)
	MarkClicked(ctx context.Context, token string, at time.Time) (int64, error)
	MarkClaimed(ctx context.Context, token string, at time.Time) (int64, error)
	MarkWrittenOff(ctx context.Context, token string, at time.Time) (int64, error)
	Query(ctx context.Context, f RecallFilter, page, pageSize int) (*Page[*Recall], error)
	Expired(ctx context.Context, before time.Time, limit int) ([]*Recall, error)
	Stats(ctx context.Context, merchantID int64, r DateRange) (*RecallStats, error)
	DailyStats(ctx context.Context, merchantID int64, r DateRange) ([]*DailyRecallStat, error)
	UserHistory(ctx context.Context, merchantID int64, contact, contactType string, limit int) ([]*Recall, error)
	CleanupExpired(ctx context.Context, cutoff, now time.Time) (int64, error)
}

type RecallFilter struct {
	MerchantID  int64
	Status      string
	Clicked     *bool
	Claimed     *bool
	ProductType string
	Range       DateRange
}
