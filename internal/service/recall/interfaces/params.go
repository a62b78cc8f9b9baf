package interfaces

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"recall/internal/service/recall/domain"
)

const dateLayout = time.DateOnly

func queryInt64(q url.Values, key string) (int64, error) {
	v := q.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, domain.InvalidArgument(key + "必须是整数")
	}
	return n, nil
}

func queryInt(q url.Values, key string, fallback int) (int, error) {
	v := q.Get(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, domain.InvalidArgument(key + "必须是整数")
	}
	return n, nil
}

func queryBool(q url.Values, key string) (*bool, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, domain.InvalidArgument(key + "必须是布尔值")
	}
	return &b, nil
}

// pathID 读取路径中的 {id}。
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.InvalidArgument("ID必须是正整数")
	}
	return id, nil
}

// requireMerchantID 读取必填的 merchant_id 参数。
func requireMerchantID(q url.Values) (int64, error) {
	id, err := queryInt64(q, "merchant_id")
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, domain.InvalidArgument("商户ID不能为空")
	}
	return id, nil
}

// dateRange 解析 start / end 两个 YYYY-MM-DD 参数，end 包含当天。
func dateRange(r *http.Request) (domain.DateRange, error) {
	var out domain.DateRange
	q := r.URL.Query()
	if v := q.Get("start"); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, time.Local)
		if err != nil {
			return out, domain.InvalidArgument("start日期格式应为YYYY-MM-DD")
		}
		out.Start = &t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, time.Local)
		if err != nil {
			return out, domain.InvalidArgument("end日期格式应为YYYY-MM-DD")
		}
		t = t.Add(24*time.Hour - time.Second)
		out.End = &t
	}
	return out, nil
}
