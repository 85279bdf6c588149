package store

import (
	"database/sql"
	"time"
)

// IDFRecord is one frame row exactly as persisted. Media and table columns
// hold raw JSON text of whatever historical shape was last written; callers
// run them through the media normalizer before use.
type IDFRecord struct {
	ID          int64
	Cluster     string
	Project     string
	Code        string
	Title       string
	Description sql.NullString
	Site        sql.NullString
	Room        sql.NullString
	Gallery     sql.NullString
	Documents   sql.NullString
	Diagrams    sql.NullString
	DFO         sql.NullString
	Location    sql.NullString
	Logo        sql.NullString
	TableData   sql.NullString
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Device is one inventory row scoped to a frame. The set is replaced
// wholesale on upload, never edited row by row.
type Device struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Model   string `json:"model,omitempty"`
	Serial  string `json:"serial,omitempty"`
	Rack    string `json:"rack,omitempty"`
	Site    string `json:"site,omitempty"`
	Notes   string `json:"notes,omitempty"`
	IDFCode string `json:"idf_code"`
	Cluster string `json:"-"`
	Project string `json:"-"`
}

// User is an operator account. Role is either "admin" or "viewer".
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	LastLoginAt  sql.NullTime
}
