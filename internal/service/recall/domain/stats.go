package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Page 是一页查询结果。
type Page[T any] struct {
	Data       []T   `json:"data"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

func NewPage[T any](data []T, page, pageSize int, total int64) *Page[T] {
	var pages int64
	if pageSize > 0 {
		pages = (total + int64(pageSize) - 1) / int64(pageSize)
	}
	if data == nil {
		data = []T{}
	}
	return &Page[T]{Data: data, Page: page, PageSize: pageSize, Total: total, TotalPages: pages}
}

// RecallStats 是召回漏斗的汇总，比率为百分比并保留两位小数。
type RecallStats struct {
	TotalRecalls   int64      `json:"total_recalls"`
	ClickedCount   int64      `json:"clicked_count"`
	ClaimedCount   int64      `json:"claimed_count"`
	WriteOffCount  int64      `json:"writeoff_count"`
	ExpiredCount   int64      `json:"expired_count"`
	ClickRate      float64    `json:"click_rate"`
	ClaimRate      float64    `json:"claim_rate"`
	WriteOffRate   float64    `json:"writeoff_rate"`
	EarliestRecall *time.Time `json:"earliest_recall"`
	LatestRecall   *time.Time `json:"latest_recall"`
}

type DailyRecallStat struct {
	Date          string `json:"date"`
	TotalRecalls  int64  `json:"total_recalls"`
	ClickedCount  int64  `json:"clicked_count"`
	ClaimedCount  int64  `json:"claimed_count"`
	WriteOffCount int64  `json:"writeoff_count"`
	ExpiredCount  int64  `json:"expired_count"`
}

type SalesStats struct {
	OrderCount     int64           `json:"order_count"`
	UserCount      int64           `json:"user_count"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	AvgAmount      decimal.Decimal `json:"avg_amount"`
	MinAmount      decimal.Decimal `json:"min_amount"`
	MaxAmount      decimal.Decimal `json:"max_amount"`
	FirstOrderTime *time.Time      `json:"first_order_time"`
	LastOrderTime  *time.Time      `json:"last_order_time"`
}

type DailySales struct {
	Date        string          `json:"date"`
	OrderCount  int64           `json:"order_count"`
	UserCount   int64           `json:"user_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	AvgAmount   decimal.Decimal `json:"avg_amount"`
}

type TopProduct struct {
	Product     string          `json:"product"`
	ProductType string          `json:"product_type"`
	SalesCount  int64           `json:"sales_count"`
	SalesAmount decimal.Decimal `json:"sales_amount"`
	UserCount   int64           `json:"user_count"`
}

type MerchantStats struct {
	TotalMerchants int64      `json:"total_merchants"`
	IndustryCount  int64      `json:"industry_count"`
	EarliestCreate *time.Time `json:"earliest_create"`
	LatestCreate   *time.Time `json:"latest_create"`
}
