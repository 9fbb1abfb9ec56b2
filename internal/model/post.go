package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// PostStatus listing status
type PostStatus string

const (
	PostStatusActive    PostStatus = "active"
	PostStatusSold      PostStatus = "sold"
	PostStatusWithdrawn PostStatus = "withdrawn"
)

// Item conditions
const (
	ConditionNew     = "new"
	ConditionLikeNew = "like_new"
	ConditionGood    = "good"
	ConditionFair    = "fair"
	ConditionPoor    = "poor"
)

// Post a second-hand listing. Price is in cents.
type Post struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PosterID    uint64     `gorm:"type:bigint unsigned;not null;index" json:"poster_id"`
	Title       string     `gorm:"type:varchar(200);not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	Category    string     `gorm:"type:varchar(50);index" json:"category"`
	Images      JSONArray  `gorm:"type:json" json:"images,omitempty"`
	Price       int64      `gorm:"type:bigint;not null" json:"price"`
	Condition   string     `gorm:"type:varchar(20);not null;default:'good'" json:"condition"`
	Location    string     `gorm:"type:varchar(100)" json:"location"`
	Status      PostStatus `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	CreatedAt   time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (Post) TableName() string {
	return "posts"
}

// IsActive reports whether the listing can still be ordered or edited
func (p *Post) IsActive() bool {
	return p.Status == PostStatusActive
}

// IsValidCondition reports whether c is a known item condition
func IsValidCondition(c string) bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}

// JSONArray custom json array type
type JSONArray []string

// Value implement driver.Valuer interface
func (j JSONArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implement sql.Scanner interface
func (j *JSONArray) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONArray", value)
	}

	return json.Unmarshal(bytes, j)
}
