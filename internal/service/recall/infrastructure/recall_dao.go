package infrastructure

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"recall/internal/pkg/database"
	"recall/internal/pkg/sqlbuilder"
	"recall/internal/service/recall/domain"
)

const recallTable = "t_recall"

var recallColumns = []string{
	"id", "merchant_id", "user_name", "token", "token_expired",
	"product", "product_type", "coupon_type", "coupon_value",
	"contact", "contact_type",
	"click", "click_time", "claim", "claim_time", "writeoff", "writeoff_time",
	"status", "create_time", "update_time",
}

// RecallDAO 是 domain.RecallRepository 基于 SQL 构建器的实现。
type RecallDAO struct {
	baseDAO
}

func NewRecallDAO(pool *database.Pool) *RecallDAO {
	return &RecallDAO{baseDAO{pool: pool, table: recallTable}}
}

func scanRecall(s database.Scanner) (*domain.Recall, error) {
	var (
		r                                              domain.Recall
		userName, product, productType, couponType     sql.NullString
		couponValue, contact, contactType, status      sql.NullString
		clickTime, claimTime, writeoffTime, updateTime sql.NullTime
	)
	err := s.Scan(
		&r.ID, &r.MerchantID, &userName, &r.Token, &r.TokenExpired,
		&product, &productType, &couponType, &couponValue,
		&contact, &contactType,
		&r.Clicked, &clickTime, &r.Claimed, &claimTime, &r.WrittenOff, &writeoffTime,
		&status, &r.CreateTime, &updateTime,
	)
	if err != nil {
		return nil, err
	}
	r.UserName = nullString(userName)
	r.Product = nullString(product)
	r.ProductType = nullString(productType)
	r.CouponType = domain.CouponType(nullString(couponType))
	r.CouponValue = nullStringPtr(couponValue)
	r.Contact = nullString(contact)
	r.ContactType = nullString(contactType)
	r.ClickTime = nullTimePtr(clickTime)
	r.ClaimTime = nullTimePtr(claimTime)
	r.WriteOffTime = nullTimePtr(writeoffTime)
	r.Status = nullString(status)
	r.UpdateTime = nullTimePtr(updateTime)
	return &r, nil
}

func recallRow(r *domain.Recall) sqlbuilder.Row {
	return sqlbuilder.Row{
		"merchant_id":   r.MerchantID,
		"user_name":     r.UserName,
		"token":         r.Token,
		"token_expired": r.TokenExpired,
		"product":       r.Product,
		"product_type":  r.ProductType,
		"coupon_type":   emptyToNil(string(r.CouponType)),
		"coupon_value":  optional(r.CouponValue),
		"contact":       r.Contact,
		"contact_type":  r.ContactType,
		"click":         r.Clicked,
		"claim":         r.Claimed,
		"writeoff":      r.WrittenOff,
		"status":        r.Status,
		"create_time":   r.CreateTime,
	}
}

// BatchCreate 在一个事务中写入一批召回记录。
func (d *RecallDAO) BatchCreate(ctx context.Context, recalls []*domain.Recall) (int64, error) {
	rows := make([]sqlbuilder.Row, len(recalls))
	for i, r := range recalls {
		rows[i] = recallRow(r)
	}
	return d.batchInsert(ctx, rows)
}

func (d *RecallDAO) FindByToken(ctx context.Context, token string) (*domain.Recall, error) {
	query, args := sqlbuilder.BuildSelect(sqlbuilder.SelectQuery{
		Table:  recallTable,
		Fields: recallColumns,
		Where:  sqlbuilder.Conditions{"token": token},
		Limit:  1,
	})
	r, found, err := database.QueryOne(ctx, d.pool, query, args, scanRecall)
	if err != nil {
		return nil, errors.Wrap(err, "find recall by token")
	}
	if !found {
		return nil, domain.ErrRecallNotFound
	}
	return r, nil
}

// MarkClicked 置 click=1 并刷新 click_time，重复调用只更新时间。
func (d *RecallDAO) MarkClicked(ctx context.Context, token string, at time.Time) (int64, error) {
	return d.update(ctx,
		sqlbuilder.Row{"click": true, "click_time": at, "update_time": at},
		sqlbuilder.Conditions{"token": token})
}

// MarkClaimed 只在 click=1 且 claim=0 时生效，并发的重复领取只有一个能更新成功。
func (d *RecallDAO) MarkClaimed(ctx context.Context, token string, at time.Time) (int64, error) {
	return d.update(ctx,
		sqlbuilder.Row{"claim": true, "claim_time": at, "update_time": at},
		sqlbuilder.Conditions{"token": token, "click": true, "claim": false})
}

// MarkWrittenOff 只在 claim=1 且 writeoff=0 时生效。
func (d *RecallDAO) MarkWrittenOff(ctx context.Context, token string, at time.Time) (int64, error) {
	return d.update(ctx,
		sqlbuilder.Row{"writeoff": true, "writeoff_time": at, "update_time": at},
		sqlbuilder.Conditions{"token": token, "claim": true, "writeoff": false})
}

func (d *RecallDAO) Query(ctx context.Context, f domain.RecallFilter, page, pageSize int) (*domain.Page[*domain.Recall], error) {
	where := sqlbuilder.Conditions{
		"click":       f.Clicked,
		"claim":       f.Claimed,
		"create_time": rangeCondition(f.Range),
	}
	if f.MerchantID > 0 {
		where["merchant_id"] = f.MerchantID
	}
	if f.Status != "" {
		where["status"] = f.Status
	}
	if f.ProductType != "" {
		where["product_type"] = f.ProductType
	}
	return queryPage(ctx, d.pool, sqlbuilder.SelectQuery{
		Table:   recallTable,
		Fields:  recallColumns,
		Where:   where,
		OrderBy: "create_time DESC, id DESC",
	}, page, pageSize, scanRecall)
}

// Expired 返回 token 已过期且从未打开的记录，最多 limit 条。
func (d *RecallDAO) Expired(ctx context.Context, before time.Time, limit int) ([]*domain.Recall, error) {
	query, args := sqlbuilder.BuildSelect(sqlbuilder.SelectQuery{
		Table:   recallTable,
		Fields:  recallColumns,
		Where:   sqlbuilder.Conditions{"token_expired": sqlbuilder.Lt(before), "click": false},
		OrderBy: "token_expired ASC",
		Limit:   limit,
	})
	out, err := database.Query(ctx, d.pool, query, args, scanRecall)
	return out, errors.Wrap(err, "query expired recalls")
}

func (d *RecallDAO) Stats(ctx context.Context, merchantID int64, r domain.DateRange) (*domain.RecallStats, error) {
	where := sqlbuilder.Conditions{"create_time": rangeCondition(r)}
	if merchantID > 0 {
		where["merchant_id"] = merchantID
	}
	query, args := sqlbuilder.BuildSelect(sqlbuilder.SelectQuery{
		Table: recallTable,
		Fields: []string{
			"COUNT(*) AS total_recalls",
			"COUNT(CASE WHEN click = 1 THEN 1 END) AS clicked_count",
			"COUNT(CASE WHEN claim = 1 THEN 1 END) AS claimed_count",
			"COUNT(CASE WHEN writeoff = 1 THEN 1 END) AS writeoff_count",
			"COUNT(CASE WHEN token_expired < NOW() OR status = 'expired' THEN 1 END) AS expired_count",
			"MIN(create_time) AS earliest_recall",
			"MAX(create_time) AS latest_recall",
		},
		Where: where,
	})
	stats, _, err := database.QueryOne(ctx, d.pool, query, args, func(s database.Scanner) (*domain.RecallStats, error) {
		var (
			st               domain.RecallStats
			earliest, latest sql.NullTime
		)
		if err := s.Scan(&st.TotalRecalls, &st.ClickedCount, &st.ClaimedCount, &st.WriteOffCount,
			&st.ExpiredCount, &earliest, &latest); err != nil {
			return nil, err
		}
		st.EarliestRecall = nullTimePtr(earliest)
		st.LatestRecall = nullTimePtr(latest)
		return &st, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "recall stats")
	}
	if stats == nil {
		stats = &domain.RecallStats{}
	}
	stats.ClickRate = ratePercent(stats.ClickedCount, stats.TotalRecalls)
	stats.ClaimRate = ratePercent(stats.ClaimedCount, stats.TotalRecalls)
	stats.WriteOffRate = ratePercent(stats.WriteOffCount, stats.TotalRecalls)
	return stats, nil
}

func (d *RecallDAO) DailyStats(ctx context.Context, merchantID int64, r domain.DateRange) ([]*domain.DailyRecallStat, error) {
	query, args := sqlbuilder.BuildSelect(sqlbuilder.SelectQuery{
		Table: recallTable,
		Fields: []string{
			"DATE(create_time) AS recall_date",
			"COUNT(*) AS total_recalls",
			"COUNT(CASE WHEN click = 1 THEN 1 END) AS clicked_count",
			"COUNT(CASE WHEN claim = 1 THEN 1 END) AS claimed_count",
			"COUNT(CASE WHEN writeoff = 1 THEN 1 END) AS writeoff_count",
			"COUNT(CASE WHEN token_expired < NOW() OR status = 'expired' THEN 1 END) AS expired_count",
		},
		Where: sqlbuilder.Conditions{
			"merchant_id":       merchantID,
			"DATE(create_time)": dateRangeCondition(r),
		},
		GroupBy: []string{"DATE(create_time)"},
		OrderBy: "recall_date",
	})
	out, err := database.Query(ctx, d.pool, query, args, func(s database.Scanner) (*domain.DailyRecallStat, error) {
		var (
			st  domain.DailyRecallStat
			day time.Time
		)
		if err := s.Scan(&day, &st.TotalRecalls, &st.ClickedCount, &st.ClaimedCount,
			&st.WriteOffCount, &st.ExpiredCount); err != nil {
			return nil, err
		}
		st.Date = day.Format(time.DateOnly)
		return &st, nil
	})
	return out, errors.Wrap(err, "daily recall stats")
}

// UserHistory 返回同一联系方式最近收到的召回。
func (d *RecallDAO) UserHistory(ctx context.Context, merchantID int64, contact, contactType string, limit int) ([]*domain.Recall, error) {
	query, args := sqlbuilder.BuildSelect(sqlbuilder.SelectQuery{
		Table:  recallTable,
		Fields: recallColumns,
		Where: sqlbuilder.Conditions{
			"merchant_id":  merchantID,
			"contact":      contact,
			"contact_type": contactType,
		},
		OrderBy: "create_time DESC",
		Limit:   limit,
	})
	out, err := database.Query(ctx, d.pool, query, args, scanRecall)
	return out, errors.Wrap(err, "user recall history")
}

// CleanupExpired 把 token_expired 早于 cutoff 且从未打开的记录标记为 expired，不删除数据。
func (d *RecallDAO) CleanupExpired(ctx context.Context, cutoff, now time.Time) (int64, error) {
	return d.update(ctx,
		sqlbuilder.Row{"status": domain.StatusExpired, "update_time": now},
		sqlbuilder.Conditions{
			"token_expired": sqlbuilder.Lt(cutoff),
			"click":         false,
		})
}
