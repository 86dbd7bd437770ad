package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleLearner    = "learner"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

type User struct {
	gorm.Model
	Username     string `gorm:"unique;not null"`
	Email        string `gorm:"unique;not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"default:learner"` // learner, instructor, admin
	Group        string
	University   string
}

type LoginHistory struct {
	gorm.Model
	UserID    uint
	LoginTime time.Time
}
