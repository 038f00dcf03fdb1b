package models

import (
    "time"

    "github.com/google/uuid"
    "gorm.io/gorm"
)

type Formation struct {
    ID        string `gorm:"type:uuid;primaryKey"`
    Code      string `gorm:"uniqueIndex"`
    Name      string
    Active    bool `gorm:"default:true"`
    CreatedAt time.Time
    UpdatedAt time.Time
}

func (f *Formation) BeforeCreate(tx *gorm.DB) (err error) {
    if f.ID == "" {
        f.ID = uuid.NewString()
    }
    return nil
}

// Enrollment maps a student user to the formations they attend.
type Enrollment struct {
    ID             uint   `gorm:"primaryKey"`
    UserIDRef      string `gorm:"type:uuid;uniqueIndex:uniq_user_formation"`
    FormationIDRef string `gorm:"type:uuid;uniqueIndex:uniq_user_formation"`
    CreatedAt      time.Time
}
