package models

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is the full relational record. The session cache stores it verbatim,
// so every field is serialised; API responses go through the views instead.
type User struct {
	ID           int64     `json:"id"`
	UserAccount  string    `json:"userAccount"`
	UserPassword string    `json:"userPassword"`
	AccessKey    string    `json:"accessKey"`
	SecretKey    string    `json:"secretKey"`
	Email        string    `json:"email"`
	UserName     string    `json:"userName"`
	UserAvatar   string    `json:"userAvatar"`
	UserRole     Role      `json:"userRole"`
	CreatedAt    time.Time `json:"createTime"`
	UpdatedAt    time.Time `json:"updateTime"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.UserRole == RoleAdmin
}
