package domain

import "time"

// Merchant 是商家账号，只做软删除。
type Merchant struct {
	ID         int64      `json:"id"`
	Username   string     `json:"username"`
	Password   string     `json:"-"` // 摘要，见 application.HashPassword
	Name       string     `json:"name"`
	Industry   string     `json:"industry"`
	IsDeleted  bool       `json:"is_deleted"`
	CreateTime time.Time  `json:"create_time"`
	UpdateTime *time.Time `json:"update_time"`
}

// DisplayName 返回商家名称，未设置时用用户名。
func (m *Merchant) DisplayName() string {
	if m.Name == "" {
		return m.Username
	}
	return m.Name
}

// MerchantUpdate 是可修改的商家字段，nil 表示不修改。id、create_time 不可修改。
type MerchantUpdate struct {
	Name     *string
	Industry *string
	Password *string
}

type MerchantFilter struct {
	Industry       string
	NameLike       string
	IncludeDeleted bool
}
