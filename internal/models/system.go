package models

import "time"

// SystemStatus represents the dashboard server's own resource usage
type SystemStatus struct {
	Hostname         string    `json:"hostname"`
	CPUPercent       float64   `json:"cpu_percent"`
	CoreCount        int       `json:"core_count"`
	MemoryTotalGB    float64   `json:"memory_total_gb"`
	MemoryUsedGB     float64   `json:"memory_used_gb"`
	MemoryPercent    float64   `json:"memory_percent"`
	DiskPercent      float64   `json:"disk_percent"`
	ProcessRSSMB     float64   `json:"process_rss_mb"`
	ProcessThreads   int32     `json:"process_threads"`
	ConnectedClients int       `json:"connected_clients"`
	Uptime           string    `json:"uptime"`
	Timestamp        time.Time `json:"timestamp"`
}
