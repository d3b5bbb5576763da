package domain

import "time"

// SysConfig system configuration key/value store
type SysConfig struct {
	ID        int64     `json:"id,string" form:"id"` // Primary key ID
	Sort      int       `json:"sort" form:"sort"`    // Sort order
	Type      string    `json:"type" form:"type"`    // Category
	Name      string    `json:"name" form:"name"`    // Key
	Value     string    `json:"value" form:"value"`  // Value
	Remark    string    `json:"remark" form:"remark"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName Specify table name
func (SysConfig) TableName() string {
	return "sys_config"
}
