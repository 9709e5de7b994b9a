// Package logs records an audit trail of authenticated requests and
// exposes the admin log-browsing API.
package logs

import "time"

// Entry is one recorded request
type Entry struct {
	ID         int64     `json:"id"`
	Message    string    `json:"message"`
	UserID     int64     `json:"user_id"`
	Username   string    `json:"username"`
	StatusCode int       `json:"status_code"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Permission string    `json:"permission"`
	CreateTime time.Time `json:"create_time"`
}

// Filter narrows a log listing. Start and End only apply together.
type Filter struct {
	Username string
	Keyword  string
	Start    *time.Time
	End      *time.Time
	Limit    int
	Offset   int
}
