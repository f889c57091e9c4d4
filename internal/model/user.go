package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Roles, in decreasing privilege. Admin and manager may manage registers not
// bound to their own device; cashier and employee may not.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleCashier  = "cashier"
	RoleEmployee = "employee"
)

// User stores system users with role-based access.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Username     string    `gorm:"uniqueIndex;not null"`
	Name         string    `gorm:"not null"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"type:varchar(20);not null"`
	// InternalSalesLimit caps a manager's internal-consumption sales per
	// operation; zero means no cap. Admins are always exempt.
	InternalSalesLimit decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Active             bool            `gorm:"not null;default:true"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CanManageAnyRegister reports whether the role may open/close registers not
// bound to the caller's own device.
func (u *User) CanManageAnyRegister() bool {
	return u.Role == RoleAdmin || u.Role == RoleManager
}
