package infrastructure

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"recall/internal/pkg/database"
	"recall/internal/service/recall/application"
	"recall/internal/service/recall/domain"
)

func newMockPool(t *testing.T) (*database.Pool, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return database.NewPool(db, 0), mock
}

func TestRecallDAO_MarkClaimedIsConditional(t *testing.T) {
	pool, mock := newMockPool(t)
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE t_recall SET claim = ?, claim_time = ?, update_time = ? WHERE claim = ? AND click = ? AND token = ?").
		WithArgs(1, at, at, 0, 1, "tk").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	n, err := NewRecallDAO(pool).MarkClaimed(context.Background(), "tk", at)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecallDAO_MarkClickedIsUnconditional(t *testing.T) {
	pool, mock := newMockPool(t)
	first := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(time.Minute)

	for _, at := range []time.Time{first, second} {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE t_recall SET click = ?, click_time = ?, update_time = ? WHERE token = ?").
			WithArgs(1, at, at, "tk").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	dao := NewRecallDAO(pool)
	n, err := dao.MarkClicked(context.Background(), "tk", first)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = dao.MarkClicked(context.Background(), "tk", second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimCoupon_ZeroRowsUpdatedIsAlreadyClaimed(t *testing.T) {
	pool, mock := newMockPool(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	created := now.Add(-time.Hour)

	mock.ExpectQuery("SELECT " + strings.Join(recallColumns, ", ") + " FROM t_recall WHERE token = ? LIMIT 1").
		WithArgs("tk").
		WillReturnRows(sqlmock.NewRows(recallColumns).AddRow(
			7, 1, "A", "tk", created.Add(domain.TokenTTL),
			"月卡", "game", "full_minus", "100-20",
			"13800000000", "mobile",
			true, created, false, nil, false, nil,
			"active", created, nil,
		))
	// 另一个请求已经先把 claim 置 1
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE t_recall SET claim = ?, claim_time = ?, update_time = ? WHERE claim = ? AND click = ? AND token = ?").
		WithArgs(1, now, now, 0, 1, "tk").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	svc := application.NewRecallService(NewRecallDAO(pool), nil, noop.NewTracerProvider().Tracer("test"),
		application.WithClock(func() time.Time { return now }))
	err := svc.ClaimCoupon(context.Background(), application.ClaimRequest{Token: "tk", Username: "A"})
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecallDAO_MarkWrittenOffRequiresClaim(t *testing.T) {
	pool, mock := newMockPool(t)
	at := time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE t_recall SET update_time = ?, writeoff = ?, writeoff_time = ? WHERE claim = ? AND token = ? AND writeoff = ?").
		WithArgs(at, 1, at, 1, "tk", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := NewRecallDAO(pool).MarkWrittenOff(context.Background(), "tk", at)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecallDAO_CleanupExpired(t *testing.T) {
	pool, mock := newMockPool(t)
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	cutoff := now.Add(-30 * 24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE t_recall SET status = ?, update_time = ? WHERE click = ? AND token_expired < ?").
		WithArgs(domain.StatusExpired, now, 0, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	n, err := NewRecallDAO(pool).CleanupExpired(context.Background(), cutoff, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecallDAO_FindByTokenNotFound(t *testing.T) {
	pool, mock := newMockPool(t)
	query := "SELECT " + strings.Join(recallColumns, ", ") + " FROM t_recall WHERE token = ? LIMIT 1"
	mock.ExpectQuery(query).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(recallColumns))

	_, err := NewRecallDAO(pool).FindByToken(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrRecallNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecallDAO_FindByTokenScansNullableColumns(t *testing.T) {
	pool, mock := newMockPool(t)
	created := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	query := "SELECT " + strings.Join(recallColumns, ", ") + " FROM t_recall WHERE token = ? LIMIT 1"
	mock.ExpectQuery(query).
		WithArgs("tk").
		WillReturnRows(sqlmock.NewRows(recallColumns).AddRow(
			7, 1, nil, "tk", created.Add(domain.TokenTTL),
			"月卡", "game", "full_minus", "100-20",
			"13800000000", "mobile",
			true, created, false, nil, false, nil,
			"active", created, nil,
		))

	r, err := NewRecallDAO(pool).FindByToken(context.Background(), "tk")
	require.NoError(t, err)
	assert.Equal(t, int64(7), r.ID)
	assert.Equal(t, "", r.UserName)
	assert.Equal(t, domain.CouponFullMinus, r.CouponType)
	require.NotNil(t, r.CouponValue)
	assert.Equal(t, "100-20", *r.CouponValue)
	assert.True(t, r.Clicked)
	require.NotNil(t, r.ClickTime)
	assert.Nil(t, r.ClaimTime)
	assert.Nil(t, r.UpdateTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecallDAO_BatchCreateGroupsNullableColumns(t *testing.T) {
	pool, mock := newMockPool(t)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	value := "50"

	withCoupon := domain.NewRecall(domain.RecallTarget{
		MerchantID: 1, UserName: "a", Contact: "13800000001", ContactType: "mobile",
		CouponType: domain.CouponNoThreshold, CouponValue: &value,
	}, "t1", now, 0)
	withoutCoupon := domain.NewRecall(domain.RecallTarget{
		MerchantID: 1, UserName: "b", Contact: "13800000002", ContactType: "mobile",
	}, "t2", now, 0)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO t_recall (claim, click, contact, contact_type, coupon_type, coupon_value, " +
		"create_time, merchant_id, product, product_type, status, token, token_expired, user_name, writeoff) " +
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO t_recall (claim, click, contact, contact_type, " +
		"create_time, merchant_id, product, product_type, status, token, token_expired, user_name, writeoff) " +
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	n, err := NewRecallDAO(pool).BatchCreate(context.Background(), []*domain.Recall{withCoupon, withoutCoupon})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecallDAO_BatchCreateRollsBackOnFailure(t *testing.T) {
	pool, mock := newMockPool(t)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	r := domain.NewRecall(domain.RecallTarget{MerchantID: 1, UserName: "a"}, "dup", now, 0)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO t_recall (claim, click, contact, contact_type, create_time, merchant_id, " +
		"product, product_type, status, token, token_expired, user_name, writeoff) " +
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := NewRecallDAO(pool).BatchCreate(context.Background(), []*domain.Recall{r})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecallDAO_QueryPaginates(t *testing.T) {
	pool, mock := newMockPool(t)
	mock.MatchExpectationsInOrder(false)
	clicked := true

	cols := strings.Join(recallColumns, ", ")
	mock.ExpectQuery("SELECT "+cols+" FROM t_recall WHERE click = ? AND merchant_id = ? "+
		"ORDER BY create_time DESC, id DESC LIMIT 10 OFFSET 10").
		WithArgs(1, int64(5)).
		WillReturnRows(sqlmock.NewRows(recallColumns))
	mock.ExpectQuery("SELECT COUNT(*) AS total FROM t_recall WHERE click = ? AND merchant_id = ?").
		WithArgs(1, int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(12))

	page, err := NewRecallDAO(pool).Query(context.Background(),
		domain.RecallFilter{MerchantID: 5, Clicked: &clicked}, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(12), page.Total)
	assert.Equal(t, int64(2), page.TotalPages)
	assert.Empty(t, page.Data)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecallDAO_StatsComputesRates(t *testing.T) {
	pool, mock := newMockPool(t)
	mock.ExpectQuery("SELECT COUNT(*) AS total_recalls, " +
		"COUNT(CASE WHEN click = 1 THEN 1 END) AS clicked_count, " +
		"COUNT(CASE WHEN claim = 1 THEN 1 END) AS claimed_count, " +
		"COUNT(CASE WHEN writeoff = 1 THEN 1 END) AS writeoff_count, " +
		"COUNT(CASE WHEN token_expired < NOW() OR status = 'expired' THEN 1 END) AS expired_count, " +
		"MIN(create_time) AS earliest_recall, MAX(create_time) AS latest_recall " +
		"FROM t_recall WHERE merchant_id = ?").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c", "d", "e", "f", "g"}).
			AddRow(3, 2, 1, 0, 1, nil, nil))

	st, err := NewRecallDAO(pool).Stats(context.Background(), 1, domain.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.TotalRecalls)
	assert.Equal(t, 66.67, st.ClickRate)
	assert.Equal(t, 33.33, st.ClaimRate)
	assert.Zero(t, st.WriteOffRate)
	assert.Nil(t, st.EarliestRecall)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRatePercent(t *testing.T) {
	assert.Zero(t, ratePercent(5, 0))
	assert.Equal(t, 100.0, ratePercent(4, 4))
	assert.Equal(t, 12.5, ratePercent(1, 8))
}
