package infrastructure

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"recall/internal/pkg/database"
	"recall/internal/pkg/sqlbuilder"
	"recall/internal/service/recall/domain"
)

const orderTable = "t_order"

var orderColumns = []string{
	"id", "merchant_id", "order_id", "user_id", "name", "contact", "contact_type",
	"product", "product_type", "amount", "create_time",
}

// OrderDAO 是 domain.OrderRepository 的 SQL 实现。
type OrderDAO struct {
	baseDAO
}

func NewOrderDAO(pool *database.Pool) *OrderDAO {
	return &OrderDAO{baseDAO{pool: pool, table: orderTable}}
}

func scanOrder(s database.Scanner) (*domain.Order, error) {
	var (
		o                                   domain.Order
		orderNo, name, contact, contactType sql.NullString
		product, productType                sql.NullString
	)
	if err := s.Scan(&o.ID, &o.MerchantID, &orderNo, &o.UserID, &name, &contact, &contactType,
		&product, &productType, &o.Amount, &o.CreateTime); err != nil {
		return nil, err
	}
	o.OrderNo = nullString(orderNo)
	o.Name = nullString(name)
	o.Contact = nullString(contact)
	o.ContactType = nullString(contactType)
	o.Product = nullString(product)
	o.ProductType = nullString(productType)
	return &o, nil
}

func orderRow(o *domain.Order) sqlbuilder.Row {
	return sqlbuilder.Row{
		"merchant_id":  o.MerchantID,
		"order_id":     emptyToNil(o.OrderNo),
		"user_id":      o.UserID,
		"name":         emptyToNil(o.Name),
		"contact":      emptyToNil(o.Contact),
		"contact_type": emptyToNil(o.ContactType),
		"product":      emptyToNil(o.Product),
		"product_type": emptyToNil(o.ProductType),
		"amount":       o.Amount,
		"create_time":  o.CreateTime,
	}
}

func (d *OrderDAO) BatchCreate(ctx context.Context, orders []*domain.Order) (int64, error) {
	rows := make([]sqlbuilder.Row, len(orders))
	for i, o := range orders {
		rows[i] = orderRow(o)
	}
	return d.batchInsert(ctx, rows)
}

func (d *OrderDAO) findOne(ctx context.Context, where sqlbuilder.Conditions) (*domain.Order, error) {
	query, args := sqlbuilder.BuildSelect(sqlbuilder.SelectQuery{
		Table:  orderTable,
		Fields: orderColumns,
		Where:  where,
		Limit:  1,
	})
	o, found, err := database.QueryOne(ctx, d.pool, query, args, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "find order")
	}
	if !found {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

func (d *OrderDAO) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	return d.findOne(ctx, sqlbuilder.Conditions{"id": id})
}

// FindByMerchantOrderNo 按商家侧订单号查找，用于导入后的人工更正。
func (d *OrderDAO) FindByMerchantOrderNo(ctx context.Context, merchantID int64, orderNo string) (*domain.Order, error) {
	return d.findOne(ctx, sqlbuilder.Conditions{"merchant_id": merchantID, "order_id": orderNo})
}

// Update 只写入非 nil 字段。
func (d *OrderDAO) Update(ctx context.Context, id int64, upd domain.OrderUpdate) (int64, error) {
	return d.update(ctx, sqlbuilder.Row{
		"order_id":     optional(upd.OrderNo),
		"user_id":      optional(upd.UserID),
		"name":         optional(upd.Name),
		"contact":      optional(upd.Contact),
		"contact_type": optional(upd.ContactType),
		"product":      optional(upd.Product),
		"product_type": optional(upd.ProductType),
		"amount":       optional(upd.Amount),
	}, sqlbuilder.Conditions{"id": id})
}

func (d *OrderDAO) UserOrders(ctx context.Context, merchantID int64, userID string, limit int) ([]*domain.Order, error) {
	query, args := sqlbuilder.BuildSelect(sqlbuilder.SelectQuery{
		Table:   orderTable,
		Fields:  orderColumns,
		Where:   sqlbuilder.Conditions{"merchant_id": merchantID, "user_id": userID},
		OrderBy: "create_time DESC",
		Limit:   limit,
	})
	out, err := database.Query(ctx, d.pool, query, args, scanOrder)
	return out, errors.Wrap(err, "user orders")
}

func (d *OrderDAO) Query(ctx context.Context, f domain.OrderFilter, page, pageSize int) (*domain.Page[*domain.Order], error) {
	where := sqlbuilder.Conditions{
		"merchant_id": f.MerchantID,
		"create_time": rangeCondition(f.Range),
	}
	if f.UserID != "" {
		where["user_id"] = f.UserID
	}
	if f.ProductType != "" {
		where["product_type"] = f.ProductType
	}
	return queryPage(ctx, d.pool, sqlbuilder.SelectQuery{
		Table:   orderTable,
		Fields:  orderColumns,
		Where:   where,
		OrderBy: "create_time DESC, id DESC",
	}, page, pageSize, scanOrder)
}

// InactiveUsers 按用户聚合订单，返回最后一次下单早于 cutoff 的用户，最久未下单的排在前面。
func (d *OrderDAO) InactiveUsers(ctx context.Context, merchantID int64, cutoff time.Time, limit int) ([]*domain.InactiveUser, error) {
	query, args := sqlbuilder.BuildSelect(sqlbuilder.SelectQuery{
		Table: orderTable,
		Fields: []string{
			"user_id",
			"MAX(name) AS user_name",
			"MAX(contact) AS contact",
			"MAX(contact_type) AS contact_type",
			"SUBSTRING_INDEX(GROUP_CONCAT(product ORDER BY create_time DESC SEPARATOR '\\n'), '\\n', 1) AS last_product",
			"SUBSTRING_INDEX(GROUP_CONCAT(product_type ORDER BY create_time DESC SEPARATOR '\\n'), '\\n', 1) AS last_product_type",
			"MAX(create_time) AS last_order_time",
			"COUNT(*) AS total_orders",
			"SUM(amount) AS total_amount",
			"DATEDIFF(CURDATE(), MAX(create_time)) AS inactive_days",
		},
		Where:   sqlbuilder.Conditions{"merchant_id": merchantID},
		GroupBy: []string{"user_id"},
		Having:  sqlbuilder.Conditions{"MAX(create_time)": sqlbuilder.Lt(cutoff)},
		OrderBy: "last_order_time ASC",
		Limit:   limit,
	})
	out, err := database.Query(ctx, d.pool, query, args, func(s database.Scanner) (*domain.InactiveUser, error) {
		var (
			u                            domain.InactiveUser
			name, contact, contactType   sql.NullString
			lastProduct, lastProductType sql.NullString
			total                        decimal.NullDecimal
		)
		if err := s.Scan(&u.UserID, &name, &contact, &contactType, &lastProduct, &lastProductType,
			&u.LastOrderTime, &u.TotalOrders, &total, &u.InactiveDays); err != nil {
			return nil, err
		}
		u.UserName = nullString(name)
		u.Contact = nullString(contact)
		u.ContactType = nullString(contactType)
		u.LastProduct = nullString(lastProduct)
		u.LastProductType = nullString(lastProductType)
		u.TotalAmount = total.Decimal
		return &u, nil
	})
	return out, errors.Wrap(err, "inactive users")
}

func (d *OrderDAO) SalesStats(ctx context.Context, merchantID int64, r domain.DateRange) (*domain.SalesStats, error) {
	query, args := sqlbuilder.BuildSelect(sqlbuilder.SelectQuery{
		Table: orderTable,
		Fields: []string{
			"COUNT(*) AS order_count",
			"COUNT(DISTINCT user_id) AS user_count",
			"SUM(amount) AS total_amount",
			"AVG(amount) AS avg_amount",
			"MIN(amount) AS min_amount",
			"MAX(amount) AS max_amount",
			"MIN(create_time) AS first_order_time",
			"MAX(create_time) AS last_order_time",
		},
		Where:   sqlbuilder.Conditions{"merchant_id": merchantID, "create_time": rangeCondition(r)},
		GroupBy: []string{"merchant_id"},
	})
	st, found, err := database.QueryOne(ctx, d.pool, query, args, func(s database.Scanner) (*domain.SalesStats, error) {
		var (
			st                     domain.SalesStats
			total, avg, minA, maxA decimal.NullDecimal
			first, last            sql.NullTime
		)
		if err := s.Scan(&st.OrderCount, &st.UserCount, &total, &avg, &minA, &maxA, &first, &last); err != nil {
			return nil, err
		}
		st.TotalAmount = total.Decimal
		st.AvgAmount = avg.Decimal.Round(2)
		st.MinAmount = minA.Decimal
		st.MaxAmount = maxA.Decimal
		st.FirstOrderTime = nullTimePtr(first)
		st.LastOrderTime = nullTimePtr(last)
		return &st, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "sales stats")
	}
	if !found {
		return &domain.SalesStats{}, nil
	}
	return st, nil
}

func (d *OrderDAO) DailySales(ctx context.Context, merchantID int64, r domain.DateRange) ([]*domain.DailySales, error) {
	query, args := sqlbuilder.BuildSelect(sqlbuilder.SelectQuery{
		Table: orderTable,
		Fields: []string{
			"DATE(create_time) AS order_date",
			"COUNT(*) AS order_count",
			"COUNT(DISTINCT user_id) AS user_count",
			"SUM(amount) AS total_amount",
			"AVG(amount) AS avg_amount",
		},
		Where: sqlbuilder.Conditions{
			"merchant_id":       merchantID,
			"DATE(create_time)": dateRangeCondition(r),
		},
		GroupBy: []string{"DATE(create_time)"},
		OrderBy: "order_date",
	})
	out, err := database.Query(ctx, d.pool, query, args, func(s database.Scanner) (*domain.DailySales, error) {
		var (
			ds         domain.DailySales
			day        time.Time
			total, avg decimal.NullDecimal
		)
		if err := s.Scan(&day, &ds.OrderCount, &ds.UserCount, &total, &avg); err != nil {
			return nil, err
		}
		ds.Date = day.Format(time.DateOnly)
		ds.TotalAmount = total.Decimal
		ds.AvgAmount = avg.Decimal.Round(2)
		return &ds, nil
	})
	return out, errors.Wrap(err, "daily sales")
}

func (d *OrderDAO) TopProducts(ctx context.Context, merchantID int64, limit int, r domain.DateRange) ([]*domain.TopProduct, error) {
	query, args := sqlbuilder.BuildSelect(sqlbuilder.SelectQuery{
		Table: orderTable,
		Fields: []string{
			"product",
			"product_type",
			"COUNT(*) AS sales_count",
			"SUM(amount) AS sales_amount",
			"COUNT(DISTINCT user_id) AS user_count",
		},
		Where:   sqlbuilder.Conditions{"merchant_id": merchantID, "create_time": rangeCondition(r)},
		GroupBy: []string{"product", "product_type"},
		OrderBy: "sales_count DESC, sales_amount DESC",
		Limit:   limit,
	})
	out, err := database.Query(ctx, d.pool, query, args, func(s database.Scanner) (*domain.TopProduct, error) {
		var (
			tp                   domain.TopProduct
			product, productType sql.NullString
			amount               decimal.NullDecimal
		)
		if err := s.Scan(&product, &productType, &tp.SalesCount, &amount, &tp.UserCount); err != nil {
			return nil, err
		}
		tp.Product = nullString(product)
		tp.ProductType = nullString(productType)
		tp.SalesAmount = amount.Decimal
		return &tp, nil
	})
	return out, errors.Wrap(err, "top products")
}
