package app

import (
	"database/sql"
	"encoding/json"
	"log"
	"strings"
	"time"

	"qartha/api/internal/health"
	"qartha/api/internal/media"
	"qartha/api/internal/store"
)

// IdfSummary is one row of a frame listing.
type IdfSummary struct {
	Cluster string         `json:"cluster"`
	Project string         `json:"project"`
	Code    string         `json:"code"`
	Title   string         `json:"title"`
	Site    string         `json:"site,omitempty"`
	Room    string         `json:"room,omitempty"`
	Health  *health.Health `json:"health,omitempty"`
}

// IdfDetail is the full frame view with normalized, projected media.
type IdfDetail struct {
	Cluster     string        `json:"cluster"`
	Project     string        `json:"project"`
	Code        string        `json:"code"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Site        string        `json:"site,omitempty"`
	Room        string        `json:"room,omitempty"`
	Images      []media.Item  `json:"images"`
	Documents   []media.Item  `json:"documents"`
	Diagrams    []media.Item  `json:"diagrams"`
	DFO         []media.Item  `json:"dfo"`
	Location    *media.Item   `json:"location"`
	Logo        *media.Item   `json:"logo"`
	Table       *health.Table `json:"table"`
	Health      health.Health `json:"health"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// IdfUpsert is the create/update request body. On update, nil fields are
// left untouched; only what the request carries is written.
type IdfUpsert struct {
	Code        string         `json:"code,omitempty"`
	Title       *string        `json:"title,omitempty"`
	Description *string        `json:"description,omitempty"`
	Site        *string        `json:"site,omitempty"`
	Room        *string        `json:"room,omitempty"`
	Images      *[]media.Item  `json:"images,omitempty"`
	Documents   *[]media.Item  `json:"documents,omitempty"`
	Diagrams    *[]media.Item  `json:"diagrams,omitempty"`
	DFO         *[]media.Item  `json:"dfo,omitempty"`
	Location    *media.Item     `json:"location,omitempty"`
	Logo        *media.Item     `json:"logo,omitempty"`
	Table       json.RawMessage `json:"table,omitempty"`
}

func text(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

func nullText(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func rawText(ns sql.NullString) any {
	if !ns.Valid {
		return nil
	}
	return ns.String
}

// parseTable decodes the stored port table. Malformed historical values
// degrade to no table, the same policy the media normalizer follows.
func parseTable(ns sql.NullString) *health.Table {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" || ns.String == "null" {
		return nil
	}
	var table health.Table
	if err := json.Unmarshal([]byte(ns.String), &table); err != nil {
		log.Printf("app: discarding malformed table_data %.60q", ns.String)
		return nil
	}
	if len(table.Columns) == 0 && len(table.Rows) == 0 {
		return nil
	}
	return &table
}

func serializeTable(table *health.Table) sql.NullString {
	if table == nil {
		return sql.NullString{}
	}
	data, err := json.Marshal(table)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}

func firstOrNil(items []media.Item) *media.Item {
	if len(items) == 0 {
		return nil
	}
	item := items[0]
	return &item
}

// detail builds the external view of a record: every media column
// normalized, then projected onto the request base URL.
func (s *Service) detail(rec store.IDFRecord, base string) IdfDetail {
	images := media.Normalize(rawText(rec.Gallery), media.ArityMany)
	documents := media.Normalize(rawText(rec.Documents), media.ArityMany)
	diagrams := media.Normalize(rawText(rec.Diagrams), media.ArityMany)
	dfo := media.Normalize(rawText(rec.DFO), media.ArityMany)
	location := media.Normalize(rawText(rec.Location), media.AritySingle)
	logo := media.Normalize(rawText(rec.Logo), media.AritySingle)
	table := parseTable(rec.TableData)

	return IdfDetail{
		Cluster:     rec.Cluster,
		Project:     rec.Project,
		Code:        rec.Code,
		Title:       rec.Title,
		Description: text(rec.Description),
		Site:        text(rec.Site),
		Room:        text(rec.Room),
		Images:      s.projector.ExternalItems(base, images),
		Documents:   s.projector.ExternalItems(base, documents),
		Diagrams:    s.projector.ExternalItems(base, diagrams),
		DFO:         s.projector.ExternalItems(base, dfo),
		Location:    firstOrNil(s.projector.ExternalItems(base, location)),
		Logo:        firstOrNil(s.projector.ExternalItems(base, logo)),
		Table:       table,
		Health:      health.Evaluate(table),
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

func summary(rec store.IDFRecord, includeHealth bool) IdfSummary {
	sum := IdfSummary{
		Cluster: rec.Cluster,
		Project: rec.Project,
		Code:    rec.Code,
		Title:   rec.Title,
		Site:    text(rec.Site),
		Room:    text(rec.Room),
	}
	if includeHealth {
		h := health.Evaluate(parseTable(rec.TableData))
		sum.Health = &h
	}
	return sum
}
