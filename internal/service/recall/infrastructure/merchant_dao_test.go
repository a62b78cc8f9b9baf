package infrastructure

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recall/internal/service/recall/domain"
)

func TestMerchantDAO_CreateSetsID(t *testing.T) {
	pool, mock := newMockPool(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO t_merchant (create_time, is_deleted, name, password, username) VALUES (?, ?, ?, ?, ?)").
		WithArgs(now, 0, "小店", "digest", "shop").
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectCommit()

	m := &domain.Merchant{Username: "shop", Password: "digest", Name: "小店", CreateTime: now}
	id, err := NewMerchantDAO(pool).Create(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, int64(42), m.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMerchantDAO_CreateThenFindByID(t *testing.T) {
	pool, mock := newMockPool(t)
	now := time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO t_merchant (create_time, industry, is_deleted, name, password, username) VALUES (?, ?, ?, ?, ?, ?)").
		WithArgs(now, "游戏", 0, "小店", "digest", "shop").
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT " + strings.Join(merchantColumns, ", ") + " FROM t_merchant WHERE id = ? LIMIT 1").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(merchantColumns).AddRow(42, "shop", "digest", "小店", "游戏", false, now, nil))

	dao := NewMerchantDAO(pool)
	in := &domain.Merchant{Username: "shop", Password: "digest", Name: "小店", Industry: "游戏", CreateTime: now}
	id, err := dao.Create(context.Background(), in)
	require.NoError(t, err)

	got, err := dao.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, in, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMerchantDAO_FindByUsername(t *testing.T) {
	pool, mock := newMockPool(t)
	query := "SELECT " + strings.Join(merchantColumns, ", ") + " FROM t_merchant WHERE username = ? LIMIT 1"
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(query).WithArgs("shop").
		WillReturnRows(sqlmock.NewRows(merchantColumns).AddRow(1, "shop", "digest", nil, "游戏", false, created, nil))
	mock.ExpectQuery(query).WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(merchantColumns))

	dao := NewMerchantDAO(pool)
	m, err := dao.FindByUsername(context.Background(), "shop")
	require.NoError(t, err)
	assert.Equal(t, "shop", m.DisplayName())
	assert.Equal(t, "游戏", m.Industry)

	_, err = dao.FindByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrMerchantNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMerchantDAO_UpdateWritesOnlyProvidedFields(t *testing.T) {
	pool, mock := newMockPool(t)
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	name := "新名字"

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE t_merchant SET name = ?, update_time = ? WHERE id = ?").
		WithArgs(name, now, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := NewMerchantDAO(pool).Update(context.Background(), 3, domain.MerchantUpdate{Name: &name}, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMerchantDAO_SoftDelete(t *testing.T) {
	pool, mock := newMockPool(t)
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE t_merchant SET is_deleted = ?, update_time = ? WHERE id = ?").
		WithArgs(1, now, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := NewMerchantDAO(pool).SoftDelete(context.Background(), 3, now)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMerchantDAO_QueryExcludesDeletedByDefault(t *testing.T) {
	pool, mock := newMockPool(t)
	mock.MatchExpectationsInOrder(false)
	cols := strings.Join(merchantColumns, ", ")

	mock.ExpectQuery("SELECT "+cols+" FROM t_merchant WHERE is_deleted = ? AND name LIKE ? ORDER BY id DESC LIMIT 20").
		WithArgs(0, "%游%").
		WillReturnRows(sqlmock.NewRows(merchantColumns))
	mock.ExpectQuery("SELECT COUNT(*) AS total FROM t_merchant WHERE is_deleted = ? AND name LIKE ?").
		WithArgs(0, "%游%").
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(0))

	page, err := NewMerchantDAO(pool).Query(context.Background(), domain.MerchantFilter{NameLike: "游"}, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 20, page.PageSize)
	assert.Empty(t, page.Data)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaseDAO_RefusesUnscopedUpdate(t *testing.T) {
	pool, mock := newMockPool(t)
	d := &baseDAO{pool: pool, table: recallTable}

	_, err := d.update(context.Background(), map[string]any{"status": "expired"}, nil)
	assert.ErrorIs(t, err, ErrUnscopedUpdate)
	assert.NoError(t, mock.ExpectationsWereMet())
}
