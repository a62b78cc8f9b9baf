package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestRecall() *Recall {
	return NewRecall(RecallTarget{
		MerchantID:  1,
		UserName:    "A",
		Product:     "P1",
		ProductType: "T1",
		Contact:     "1500000",
		ContactType: "mobile",
	}, "tok", baseTime, TokenTTL)
}

func TestNewRecall(t *testing.T) {
	r := newTestRecall()
	assert.Equal(t, baseTime.Add(7*24*time.Hour), r.TokenExpired)
	assert.False(t, r.Clicked)
	assert.False(t, r.Claimed)
	assert.False(t, r.WrittenOff)
	assert.Equal(t, StatusActive, r.Status)

	r = NewRecall(RecallTarget{}, "tok", baseTime, 0)
	assert.Equal(t, baseTime.Add(TokenTTL), r.TokenExpired)
}

func TestIsExpiredBoundary(t *testing.T) {
	r := newTestRecall()
	assert.False(t, r.IsExpired(r.TokenExpired.Add(-time.Second)))
	assert.False(t, r.IsExpired(r.TokenExpired), "equal deadline is still valid")
	assert.True(t, r.IsExpired(r.TokenExpired.Add(time.Nanosecond)))

	r.Status = StatusExpired
	assert.True(t, r.IsExpired(baseTime))
}

func TestTimeLeft(t *testing.T) {
	r := newTestRecall()
	assert.Equal(t, 7*24*time.Hour, r.TimeLeft(baseTime))
	assert.Equal(t, time.Duration(0), r.TimeLeft(r.TokenExpired.Add(time.Hour)))
}

func TestClickIsIdempotentAndRefreshesTime(t *testing.T) {
	r := newTestRecall()
	r.Click(baseTime)
	require.True(t, r.Clicked)
	assert.Equal(t, baseTime, *r.ClickTime)

	later := baseTime.Add(time.Minute)
	r.Click(later)
	assert.True(t, r.Clicked)
	assert.Equal(t, later, *r.ClickTime)
}

func TestClaimGuards(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(r *Recall)
		user    string
		at      time.Time
		wantErr error
	}{
		{name: "before click", prepare: func(r *Recall) {}, user: "A", at: baseTime, wantErr: ErrNotClicked},
		{name: "other user", prepare: func(r *Recall) { r.Click(baseTime) }, user: "B", at: baseTime, wantErr: ErrUserMismatch},
		{name: "expired", prepare: func(r *Recall) { r.Click(baseTime) }, user: "A", at: baseTime.Add(8 * 24 * time.Hour), wantErr: ErrTokenExpired},
		{
			name: "twice",
			prepare: func(r *Recall) {
				r.Click(baseTime)
				require.NoError(t, r.Claim(baseTime, "A"))
			},
			user: "A", at: baseTime, wantErr: ErrAlreadyClaimed,
		},
		{name: "ok", prepare: func(r *Recall) { r.Click(baseTime) }, user: "A", at: baseTime.Add(time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRecall()
			tt.prepare(r)
			err := r.Claim(tt.at, tt.user)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, r.Claimed)
			assert.Equal(t, tt.at, *r.ClaimTime)
		})
	}
}

func TestClaimBeforeClickLeavesRecordUntouched(t *testing.T) {
	r := newTestRecall()
	assert.ErrorIs(t, r.Claim(baseTime, "A"), ErrNotClicked)
	assert.False(t, r.Claimed)
	assert.Nil(t, r.ClaimTime)
}

func TestWriteOff(t *testing.T) {
	r := newTestRecall()
	assert.ErrorIs(t, r.WriteOff(baseTime), ErrNotClaimed)

	r.Click(baseTime)
	require.NoError(t, r.Claim(baseTime, "A"))
	require.NoError(t, r.WriteOff(baseTime))
	assert.True(t, r.WrittenOff)
	assert.ErrorIs(t, r.WriteOff(baseTime), ErrAlreadyWrittenOff)
}

func TestDisplayName(t *testing.T) {
	r := newTestRecall()
	assert.Equal(t, "A", r.DisplayName())
	r.UserName = ""
	assert.Equal(t, DefaultUserName, r.DisplayName())
}

func TestAppErrorLookup(t *testing.T) {
	appErr, ok := AsAppError(ErrUserMismatch)
	require.True(t, ok)
	assert.Equal(t, CodeSoftFailure, appErr.Code)
	assert.Equal(t, "这不是你的优惠券！", appErr.Message)

	_, ok = AsAppError(assert.AnError)
	assert.False(t, ok)
}

func TestFunnelStageMetricLabel(t *testing.T) {
	assert.Equal(t, "claimed", StageClaimed.MetricLabel())
	assert.Equal(t, "written_off", StageWrittenOff.MetricLabel())
}
