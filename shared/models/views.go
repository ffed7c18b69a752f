package models

import "time"

// LoginUserView is the redacted projection returned after login and by the
// current-user endpoint. It never carries the password digest or secret key.
type LoginUserView struct {
	ID          int64     `json:"id"`
	UserAccount string    `json:"userAccount"`
	UserName    string    `json:"userName"`
	UserAvatar  string    `json:"userAvatar"`
	Email       string    `json:"email,omitempty"`
	UserRole    Role      `json:"userRole"`
	AccessKey   string    `json:"accessKey"`
	CreatedAt   time.Time `json:"createTime"`
	UpdatedAt   time.Time `json:"updateTime"`
}

// DevKeyView is a freshly rotated credential pair. The secret key is only
// ever shown in this view.
type DevKeyView struct {
	AccessKey string `json:"accessKey"`
	SecretKey string `json:"secretKey"`
}

func ToLoginUserView(u *User) *LoginUserView {
	if u == nil {
		return nil
	}
	return &LoginUserView{
		ID:          u.ID,
		UserAccount: u.UserAccount,
		UserName:    u.UserName,
		UserAvatar:  u.UserAvatar,
		Email:       u.Email,
		UserRole:    u.UserRole,
		AccessKey:   u.AccessKey,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
