package models

import (
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RolePreparer   Role = "preparer"
	RoleViewer     Role = "viewer"
)

// User is a responsible party: preparer or supervisor of reports.
type User struct {
	gorm.Model
	Username   string `gorm:"uniqueIndex;not null" json:"username"`
	FullName   string `json:"full_name"`
	Password   string `gorm:"not null" json:"-"`
	Role       Role   `gorm:"not null" json:"role"`
	Email      string `gorm:"uniqueIndex" json:"email"`
	Phone      string `json:"phone"`
	Department string `json:"department"`
	IsActive   bool   `gorm:"default:true" json:"is_active"`
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}

// DisplayName returns the full name when set, else the username.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

const (
	PermViewReports    = "view_reports"
	PermSubmitReports  = "submit_reports"
	PermApproveReports = "approve_reports"
	PermViewAlerts     = "view_alerts"
	PermManageUsers    = "manage_users"
	PermSystemConfig   = "system_config"
)

// HasPermission reports whether the user's role grants action.
func (u *User) HasPermission(action string) bool {
	switch u.Role {
	case RoleAdmin:
		return true
	case RoleSupervisor:
		return action != PermManageUsers && action != PermSystemConfig
	case RolePreparer:
		return action == PermViewReports || action == PermSubmitReports || action == PermViewAlerts
	case RoleViewer:
		return action == PermViewReports || action == PermViewAlerts
	default:
		return false
	}
}
