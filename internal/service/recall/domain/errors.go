package domain

import "github.com/pkg/errors"

// CodeSoftFailure 是业务失败时响应体里的 status_code，HTTP 状态码仍为 200。
const CodeSoftFailure = "500"

// AppError 是可以直接展示给调用方的业务错误。
type AppError struct {
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

func NewAppError(message string) *AppError {
	return &AppError{Code: CodeSoftFailure, Message: message}
}

// AsAppError 在错误链中查找 AppError。
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// InvalidArgument 构造一个参数校验失败的业务错误。
func InvalidArgument(message string) *AppError {
	return NewAppError(message)
}

var (
	// 登录
	ErrUsernameRequired = NewAppError("请填写用户名")
	ErrMerchantNotFound = NewAppError("用户不存在")
	ErrPasswordMismatch = NewAppError("密码不正确")
	ErrUsernameTaken    = NewAppError("用户名已存在")

	// 订单
	ErrEmptyOrders   = NewAppError("没有订单数据")
	ErrOrderNotFound = NewAppError("订单不存在")
	ErrInvalidSheet  = NewAppError("订单表格格式不正确")

	// 召回
	ErrEmptyRecalls      = NewAppError("没有数据可存储")
	ErrTokenRequired     = NewAppError("token不能为空")
	ErrRecallNotFound    = NewAppError("无效的优惠券链接")
	ErrNotClicked        = NewAppError("请先打开优惠券链接！")
	ErrUserMismatch      = NewAppError("这不是你的优惠券！")
	ErrTokenExpired      = NewAppError("优惠券已过期")
	ErrAlreadyClaimed    = NewAppError("优惠券已领取，请勿重复领取")
	ErrNotClaimed        = NewAppError("优惠券尚未领取，无法核销")
	ErrAlreadyWrittenOff = NewAppError("优惠券已核销")
	ErrCouponUnavailable = NewAppError("无效的优惠券链接或优惠券已过期。")
	ErrInvalidRule       = NewAppError("筛选规则不合法")
)

const (
	MsgLoginSuccess    = "登录成功"
	MsgClaimSuccess    = "优惠券领取成功！请前往游戏内商城使用。"
	MsgWriteOffSuccess = "核销成功"
)
