package domain

import (
	"fmt"
	"strings"
)

// CouponType 决定 coupon_value 的编码方式。
type CouponType string

const (
	// CouponFullMinus 满减券，coupon_value 为 "门槛-金额"
	CouponFullMinus CouponType = "full_minus"
	// CouponNoThreshold 无门槛立减券，coupon_value 为金额
	CouponNoThreshold CouponType = "no_threshold"
	// CouponFreeTrial 免费试用券，coupon_value 为天数
	CouponFreeTrial CouponType = "free_trial"
)

const (
	fullMinusFallbackLabel = "满额立减优惠券"
	genericCouponLabel     = "专属优惠券"
)

func (t CouponType) Valid() bool {
	switch t {
	case CouponFullMinus, CouponNoThreshold, CouponFreeTrial:
		return true
	}
	return false
}

// CouponLabel 把券类型和券值解码成展示文案。
// 券值缺失返回 ErrCouponUnavailable；券值为空串或满减券格式不对时降级为满额立减文案，不报错。
func CouponLabel(t CouponType, value *string) (string, error) {
	if value == nil {
		return "", ErrCouponUnavailable
	}
	v := strings.TrimSpace(*value)
	if v == "" && t.Valid() {
		return fullMinusFallbackLabel, nil
	}
	switch t {
	case CouponFullMinus:
		parts := strings.Split(v, "-")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fullMinusFallbackLabel, nil
		}
		return fmt.Sprintf("满%s元立减%s元优惠券", parts[0], parts[1]), nil
	case CouponNoThreshold:
		return fmt.Sprintf("立减%s元优惠券", v), nil
	case CouponFreeTrial:
		return fmt.Sprintf("免费试用%s天优惠券", v), nil
	}
	return genericCouponLabel, nil
}
