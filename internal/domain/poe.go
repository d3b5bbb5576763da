package domain

import (
	"strconv"
	"strings"
	"time"
)

// PoE control module related models

// Device control modes. Only auto-mode devices participate in
// keep-alive driven switching; the other two are operator pinned.
const (
	ModeAuto      = "auto"
	ModeAlwaysOn  = "always_on"
	ModeAlwaysOff = "always_off"
)

// PoeSwitch a managed PoE switch reachable over its web interface
type PoeSwitch struct {
	ID              int64     `json:"id,string" form:"id"`               // Primary key ID
	Name            string    `json:"name" form:"name"`                  // Switch name
	SwitchType      string    `json:"switch_type" form:"switch_type"`    // Vendor family code (e.g. gs30xep)
	Ipaddr          string    `json:"ipaddr" form:"ipaddr"`              // Management IP
	Password        string    `json:"password" form:"password"`          // Web login password
	SnmpPort        int       `json:"snmp_port" form:"snmp_port"`        // Device SNMP Port
	SnmpCommunity   string    `json:"snmp_community" form:"snmp_community"` // Device SNMP Community string
	SnmpState       string    `json:"snmp_state" form:"snmp_state"`      // Device SNMP State (enabled/disabled)
	Online          bool      `json:"online" form:"online"`              // Last probe reachability
	LastSeenAt      time.Time `json:"last_seen_at"`                      // Last successful exchange
	LastProbeResult string    `json:"last_probe_result" form:"last_probe_result"` // ok/failed/message
	Status          string    `json:"status" form:"status"`              // Device status (enabled/disabled)
	Remark          string    `json:"remark" form:"remark"`              // Remark
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName Specify table name
func (PoeSwitch) TableName() string {
	return "poe_switch"
}

// PoeDevice a powered device attached to one switch port
type PoeDevice struct {
	ID             int64     `json:"id,string" form:"id"`              // Primary key ID
	SwitchID       int64     `json:"switch_id,string" form:"switch_id"` // Owning PoeSwitch ID
	Name           string    `json:"name" form:"name"`                 // Device name
	Port           int       `json:"port" form:"port"`                 // Switch port number 1..8
	Mode           string    `json:"mode" form:"mode"`                 // auto / always_on / always_off
	Enabled        bool      `json:"enabled" form:"enabled"`           // Last known power state
	LinkedPagingIds string   `json:"linked_paging_ids" form:"linked_paging_ids"` // Comma separated paging device IDs
	Remark         string    `json:"remark" form:"remark"`             // Remark
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName Specify table name
func (PoeDevice) TableName() string {
	return "poe_device"
}

// LinkedPagingList parses the comma separated paging linkage column.
func (d PoeDevice) LinkedPagingList() []int64 {
	if strings.TrimSpace(d.LinkedPagingIds) == "" {
		return nil
	}
	parts := strings.Split(d.LinkedPagingIds, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

// PagingDevice an audio paging source; Active marks the sources
// currently selected by the monitoring session
type PagingDevice struct {
	ID        int64     `json:"id,string" form:"id"` // Primary key ID
	Name      string    `json:"name" form:"name"`    // Device name
	Active    bool      `json:"active" form:"active"`
	Remark    string    `json:"remark" form:"remark"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName Specify table name
func (PagingDevice) TableName() string {
	return "paging_device"
}

// PoeToggleLog audit record for one attempted port toggle
type PoeToggleLog struct {
	ID        int64     `json:"id,string"`           // Snowflake ID
	DeviceID  int64     `json:"device_id,string"`    // Target device
	SwitchID  int64     `json:"switch_id,string"`    // Target switch
	Port      int       `json:"port"`                // Port number
	Enabled   bool      `json:"enabled"`             // Desired state
	Success   bool      `json:"success"`             // Outcome
	ErrMsg    string    `json:"err_msg"`             // Failure message if any
	Source    string    `json:"source"`              // api / keepalive / poller
	CreatedAt time.Time `json:"created_at"`
}

// TableName Specify table name
func (PoeToggleLog) TableName() string {
	return "poe_toggle_log"
}
