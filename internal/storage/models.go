package storage

import (
	"time"

	"github.com/alvmarrod/proxy-harvest/internal/proxy"
)

// ProxyRecord is a row of the proxy table
type ProxyRecord struct {
	ID        int
	IP        string
	Port      int
	Login     string
	Password  string
	Scheme    string // "" means http
	CreatedAt time.Time
}

// ToProxy converts the row into a schedulable proxy
func (r ProxyRecord) ToProxy() *proxy.Proxy {
	return &proxy.Proxy{
		ID:       r.ID,
		Host:     r.IP,
		Port:     r.Port,
		Username: r.Login,
		Password: r.Password,
		Scheme:   r.Scheme,
	}
}

// RecordFromProxy builds a row for insertion. ID and CreatedAt are
// assigned by the database.
func RecordFromProxy(p *proxy.Proxy) ProxyRecord {
	return ProxyRecord{
		IP:       p.Host,
		Port:     p.Port,
		Login:    p.Username,
		Password: p.Password,
		Scheme:   p.Scheme,
	}
}

// Metrics tracks run statistics for export on exit
type Metrics struct {
	RunID             string    `json:"run_id"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	ItemCount         int       `json:"item_count"`
	ItemsSucceeded    int       `json:"items_succeeded"`
	ItemsExhausted    int       `json:"items_exhausted"`
	Attempts          int       `json:"attempts"`
	FailedAttempts    int       `json:"failed_attempts"`
	Cooldowns         int       `json:"cooldowns"`
	EmptyPoolPauses   int       `json:"empty_pool_pauses"`
	TotalFetchTimeMs  int64     `json:"total_fetch_time_ms"`
	AvgFetchTimeMs    int64     `json:"avg_fetch_time_ms"`
	TerminationReason string    `json:"termination_reason"`
}
