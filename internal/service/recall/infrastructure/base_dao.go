package infrastructure

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"recall/internal/pkg/database"
	"recall/internal/pkg/sqlbuilder"
	"recall/internal/service/recall/domain"
)

// ErrUnscopedUpdate 防止 DAO 因条件为空而更新整张表。
var ErrUnscopedUpdate = errors.New("refusing to update without conditions")

// baseDAO 持有连接池和表名，提供各实体 DAO 共用的写操作。
type baseDAO struct {
	pool  *database.Pool
	table string
}

// update 执行限定范围的更新，条件为空时直接拒绝。
func (d *baseDAO) update(ctx context.Context, row sqlbuilder.Row, where sqlbuilder.Conditions) (int64, error) {
	if where.Empty() {
		return 0, ErrUnscopedUpdate
	}
	query, args, err := sqlbuilder.BuildUpdate(d.table, row, where)
	if err != nil {
		return 0, err
	}
	res, err := d.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "update %s", d.table)
	}
	return res.RowsAffected, nil
}

func (d *baseDAO) insert(ctx context.Context, row sqlbuilder.Row) (int64, error) {
	query, args, err := sqlbuilder.BuildInsert(d.table, row)
	if err != nil {
		return 0, err
	}
	res, err := d.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "insert %s", d.table)
	}
	return res.LastInsertID, nil
}

// batchInsert 在一个事务里写入多行。多行 INSERT 的列取自第一行，
// 所以先按非空列集合分组，每组一条语句，保证可空列不会错位或被丢弃。
func (d *baseDAO) batchInsert(ctx context.Context, rows []sqlbuilder.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	groups := groupByColumns(rows)

	var affected int64
	err := d.pool.WithTx(ctx, func(tx *sql.Tx) error {
		for _, g := range groups {
			query, args, err := sqlbuilder.BuildBatchInsert(d.table, g)
			if err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			affected += n
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "batch insert %s", d.table)
	}
	return affected, nil
}

func groupByColumns(rows []sqlbuilder.Row) [][]sqlbuilder.Row {
	index := make(map[string]int)
	var groups [][]sqlbuilder.Row
	for _, r := range rows {
		cols := make([]string, 0, len(r))
		for c, v := range r {
			if v != nil {
				cols = append(cols, c)
			}
		}
		sort.Strings(cols)
		sig := strings.Join(cols, ",")
		i, ok := index[sig]
		if !ok {
			i = len(groups)
			index[sig] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}
	return groups
}

// queryPage 并发执行分页的数据查询和计数查询。
func queryPage[T any](ctx context.Context, pool *database.Pool, q sqlbuilder.SelectQuery, page, pageSize int,
	scan func(database.Scanner) (T, error)) (*domain.Page[T], error) {
	p := sqlbuilder.BuildPaginated(q, page, pageSize)

	var (
		data  []T
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		data, err = database.Query(gctx, pool, p.DataSQL, p.DataParams, scan)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = database.Count(gctx, pool, p.CountSQL, p.CountParams)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, errors.Wrapf(err, "paginate %s", q.Table)
	}
	return domain.NewPage(data, p.Page, p.PageSize, total), nil
}

// rangeCondition 把闭区间翻译成 BETWEEN / >= / <=，两端都缺省时不加条件。
func rangeCondition(r domain.DateRange) any {
	switch {
	case r.Start != nil && r.End != nil:
		return sqlbuilder.Between(*r.Start, *r.End)
	case r.Start != nil:
		return sqlbuilder.Gte(*r.Start)
	case r.End != nil:
		return sqlbuilder.Lte(*r.End)
	}
	return nil
}

// dateRangeCondition 按日期比较，用于 DATE(create_time) 的日报查询。
func dateRangeCondition(r domain.DateRange) any {
	day := func(t *time.Time) *string {
		if t == nil {
			return nil
		}
		s := t.Format(time.DateOnly)
		return &s
	}
	start, end := day(r.Start), day(r.End)
	switch {
	case start != nil && end != nil:
		return sqlbuilder.Between(*start, *end)
	case start != nil:
		return sqlbuilder.Gte(*start)
	case end != nil:
		return sqlbuilder.Lte(*end)
	}
	return nil
}

func nullString(v sql.NullString) string {
	if v.Valid {
		return v.String
	}
	return ""
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// emptyToNil 让空字符串在 INSERT 中被省略，由数据库写入 NULL 或默认值。
func emptyToNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func ratePercent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	v := float64(part) / float64(total) * 100
	return float64(int64(v*100+0.5)) / 100
}

func optional[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
