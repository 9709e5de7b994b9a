// Package books implements the book catalog: a small CRUD surface whose
// mutations are gated by fine-grained permission grants.
package books

import "time"

// Book is one catalog entry
type Book struct {
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	Author     string     `json:"author"`
	Summary    string     `json:"summary"`
	Image      string     `json:"image"`
	CreateTime time.Time  `json:"create_time"`
	UpdateTime time.Time  `json:"update_time"`
	DeleteTime *time.Time `json:"-"`
}
