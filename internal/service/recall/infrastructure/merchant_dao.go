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

const merchantTable = "t_merchant"

var merchantColumns = []string{
	"id", "username", "password", "name", "industry", "is_deleted", "create_time", "update_time",
}

// MerchantDAO 是 domain.MerchantRepository 的 SQL 实现。
type MerchantDAO struct {
	baseDAO
}

func NewMerchantDAO(pool *database.Pool) *MerchantDAO {
	return &MerchantDAO{baseDAO{pool: pool, table: merchantTable}}
}

func scanMerchant(s database.Scanner) (*domain.Merchant, error) {
	var (
		m              domain.Merchant
		name, industry sql.NullString
		updateTime     sql.NullTime
	)
	if err := s.Scan(&m.ID, &m.Username, &m.Password, &name, &industry, &m.IsDeleted,
		&m.CreateTime, &updateTime); err != nil {
		return nil, err
	}
	m.Name = nullString(name)
	m.Industry = nullString(industry)
	m.UpdateTime = nullTimePtr(updateTime)
	return &m, nil
}

func (d *MerchantDAO) Create(ctx context.Context, m *domain.Merchant) (int64, error) {
	id, err := d.insert(ctx, sqlbuilder.Row{
		"username":    m.Username,
		"password":    m.Password,
		"name":        emptyToNil(m.Name),
		"industry":    emptyToNil(m.Industry),
		"is_deleted":  m.IsDeleted,
		"create_time": m.CreateTime,
	})
	if err != nil {
		return 0, err
	}
	m.ID = id
	return id, nil
}

func (d *MerchantDAO) findOne(ctx context.Context, where sqlbuilder.Conditions) (*domain.Merchant, error) {
	query, args := sqlbuilder.BuildSelect(sqlbuilder.SelectQuery{
		Table:  merchantTable,
		Fields: merchantColumns,
		Where:  where,
		Limit:  1,
	})
	m, found, err := database.QueryOne(ctx, d.pool, query, args, scanMerchant)
	if err != nil {
		return nil, errors.Wrap(err, "find merchant")
	}
	if !found {
		return nil, domain.ErrMerchantNotFound
	}
	return m, nil
}

func (d *MerchantDAO) FindByID(ctx context.Context, id int64) (*domain.Merchant, error) {
	return d.findOne(ctx, sqlbuilder.Conditions{"id": id})
}

func (d *MerchantDAO) FindByUsername(ctx context.Context, username string) (*domain.Merchant, error) {
	return d.findOne(ctx, sqlbuilder.Conditions{"username": username})
}

// Update 只写入非 nil 字段，并刷新 update_time。
func (d *MerchantDAO) Update(ctx context.Context, id int64, upd domain.MerchantUpdate, now time.Time) (int64, error) {
	return d.update(ctx, sqlbuilder.Row{
		"name":        optional(upd.Name),
		"industry":    optional(upd.Industry),
		"password":    optional(upd.Password),
		"update_time": now,
	}, sqlbuilder.Conditions{"id": id})
}

// SoftDelete 置 is_deleted=1，记录本身保留。
func (d *MerchantDAO) SoftDelete(ctx context.Context, id int64, now time.Time) (int64, error) {
	return d.update(ctx,
		sqlbuilder.Row{"is_deleted": true, "update_time": now},
		sqlbuilder.Conditions{"id": id})
}

func (d *MerchantDAO) Query(ctx context.Context, f domain.MerchantFilter, page, pageSize int) (*domain.Page[*domain.Merchant], error) {
	where := sqlbuilder.Conditions{}
	if !f.IncludeDeleted {
		where["is_deleted"] = false
	}
	if f.Industry != "" {
		where["industry"] = f.Industry
	}
	if f.NameLike != "" {
		where["name"] = sqlbuilder.Like(f.NameLike)
	}
	return queryPage(ctx, d.pool, sqlbuilder.SelectQuery{
		Table:   merchantTable,
		Fields:  merchantColumns,
		Where:   where,
		OrderBy: "id DESC",
	}, page, pageSize, scanMerchant)
}

// Stats 汇总商家数量和行业数，merchantID 为 0 时统计全部。
func (d *MerchantDAO) Stats(ctx context.Context, merchantID int64) (*domain.MerchantStats, error) {
	where := sqlbuilder.Conditions{}
	if merchantID > 0 {
		where["id"] = merchantID
	}
	query, args := sqlbuilder.BuildSelect(sqlbuilder.SelectQuery{
		Table: merchantTable,
		Fields: []string{
			"COUNT(*) AS total_merchants",
			"COUNT(DISTINCT industry) AS industry_count",
			"MIN(create_time) AS earliest_create",
			"MAX(create_time) AS latest_create",
		},
		Where: where,
	})
	st, found, err := database.QueryOne(ctx, d.pool, query, args, func(s database.Scanner) (*domain.MerchantStats, error) {
		var (
			st               domain.MerchantStats
			earliest, latest sql.NullTime
		)
		if err := s.Scan(&st.TotalMerchants, &st.IndustryCount, &earliest, &latest); err != nil {
			return nil, err
		}
		st.EarliestCreate = nullTimePtr(earliest)
		st.LatestCreate = nullTimePtr(latest)
		return &st, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "merchant stats")
	}
	if !found {
		return &domain.MerchantStats{}, nil
	}
	return st, nil
}
