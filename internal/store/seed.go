package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var seedIDFs = []IDFRecord{
	{
		Cluster:     "Trinity",
		Project:     "Sabinas Project",
		Code:        "IDF-1001",
		Title:       "Sabinas HQ - Main IDF",
		Description: nullString("Principal rack de distribución para operaciones Sabinas."),
		Site:        nullString("TrinityRail HQ"),
		Room:        nullString("Rack A"),
		Gallery:     nullString(`[]`),
		Documents:   nullString(`[]`),
		Diagrams:    nullString(`[{"url": "/static/Trinity/sabinas/diagrams/IDF-1001_diagram.png", "name": "Diagrama general", "kind": "diagram"}]`),
		Location:    nullString(`[{"url": "/static/Trinity/sabinas/location/IDF-1001_location.png", "name": "Plano de ubicación", "kind": "image"}]`),
		DFO:         nullString(`{"url": "/static/Trinity/sabinas/dfo/IDF-1001_dfo.png", "name": "DFO", "kind": "image"}`),
		Logo:        nullString(`{"url": "/static/Trinity/sabinas/logos/IDF-1001-logo.png", "name": "Sabinas", "kind": "image"}`),
		TableData: nullString(`{
			"columns": [
				{"key": "tray", "label": "Charola", "type": "text"},
				{"key": "panel", "label": "Panel", "type": "text"},
				{"key": "port", "label": "Puerto", "type": "number"},
				{"key": "status", "label": "Estado", "type": "status", "options": ["OK", "Revisión", "Falla", "Libre", "Reservado"]}
			],
			"rows": [
				{"tray": "T-01", "panel": "PP-A1", "port": 1, "status": "OK"}
			]
		}`),
	},
	{
		Cluster:     "Trinity",
		Project:     "Sabinas Project",
		Code:        "IDF-1002",
		Title:       "Sabinas HQ - Backup",
		Description: nullString("Nodo redundante para continuidad operativa."),
		Site:        nullString("TrinityRail HQ"),
		Room:        nullString("Rack B"),
		Gallery:     nullString(`[]`),
		Documents:   nullString(`[]`),
		Diagrams:    nullString(`[]`),
		Location:    nullString(`[]`),
	},
}

// SeedIDFs inserts the sample frames once, when the idfs table is empty.
func (s *PostgresStore) SeedIDFs(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM idfs`).Scan(&count); err != nil {
		return fmt.Errorf("count idfs for seed: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, rec := range seedIDFs {
		if _, err := s.InsertIDF(ctx, rec); err != nil {
			return fmt.Errorf("seed idf %s: %w", rec.Code, err)
		}
	}
	log.Printf("store: seeded %d sample idfs", len(seedIDFs))
	return nil
}
