package models

import (
    "time"
)

// User roles.
const (
    RoleAdmin      = "admin"
    RoleInstructor = "instructor"
    RoleStudent    = "student"
)

type User struct {
    ID        uint   `gorm:"primaryKey"`
    UserID    string `gorm:"type:uuid;uniqueIndex"`
    FullName  string
    Email     string `gorm:"uniqueIndex"`
    Password  string
    Role      string `gorm:"size:16;index"`
    Active    bool
    CreatedAt time.Time
    UpdatedAt time.Time
}

func IsValidRole(role string) bool {
    switch role {
    case RoleAdmin, RoleInstructor, RoleStudent:
        return true
    }
    return false
}
