package models

import (
	"time"

	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleEmployee Role = "EMPLOYEE"
	RoleCustomer Role = "CUSTOMER"
)

// IsStaff reports whether the role answers from the shared support inbox.
func (r Role) IsStaff() bool {
	return r == RoleEmployee || r == RoleAdmin
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEmployee, RoleCustomer:
		return true
	}
	return false
}

type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name     string `gorm:"not null" json:"name"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Image    string `json:"image"`
	Role     Role   `gorm:"type:text;default:'CUSTOMER';index" json:"role"`
	Password string `json:"-"`
}
