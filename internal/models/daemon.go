package models

import (
	"net"
	"strconv"
	"time"
)

// DashboardInfo describes a running dashboard server, as discovered from
// the pid and port marker files.
type DashboardInfo struct {
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// NewDashboardInfo creates dashboard info for the current process.
func NewDashboardInfo(host string, port, pid int) *DashboardInfo {
	return &DashboardInfo{
		Host:      host,
		Port:      port,
		PID:       pid,
		StartedAt: time.Now().UTC(),
	}
}

// BaseURL returns the HTTP base URL of the dashboard.
func (d *DashboardInfo) BaseURL() string {
	return "http://" + net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}
