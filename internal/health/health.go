// Package health aggregates a frame's port table into a single status light.
package health

import "strings"

// Column describes one port table column. Type may carry the "status" tag
// that marks the column driving health aggregation.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
	Type  string `json:"type,omitempty"`
}

// Table is the spreadsheet-like port listing attached to a frame. Rows are
// free-form mappings keyed by column key.
type Table struct {
	Columns []Column         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// Level is the aggregate status light.
type Level string

const (
	LevelGray   Level = "gray"
	LevelGreen  Level = "green"
	LevelYellow Level = "yellow"
	LevelRed    Level = "red"
)

// Counts holds per-token totals for the recognized status vocabulary.
// Unrecognized cell values are excluded entirely.
type Counts struct {
	OK        int `json:"ok"`
	Revision  int `json:"revision"`
	Falla     int `json:"falla"`
	Libre     int `json:"libre"`
	Reservado int `json:"reservado"`
}

// Health is the evaluated aggregate for one frame.
type Health struct {
	Level  Level  `json:"level"`
	Counts Counts `json:"counts"`
}

// Evaluate derives the status light from a port table. A nil table, a table
// without rows, or a table with no recognizable status column all evaluate to
// gray with zero counts rather than an error.
//
// Level priority is fixed: any falla wins red, else any revision wins yellow,
// else any recognized healthy token (ok, libre, reservado) wins green, else
// gray. Failures dominate cautions dominate healthy signals.
func Evaluate(table *Table) Health {
	if table == nil || len(table.Rows) == 0 {
		return Health{Level: LevelGray}
	}

	key := statusKey(table)
	if key == "" {
		return Health{Level: LevelGray}
	}

	var counts Counts
	for _, row := range table.Rows {
		cell, _ := row[key].(string)
		switch strings.ToLower(strings.TrimSpace(cell)) {
		case "ok":
			counts.OK++
		case "revision":
			counts.Revision++
		case "falla":
			counts.Falla++
		case "libre":
			counts.Libre++
		case "reservado":
			counts.Reservado++
		}
	}

	return Health{Level: level(counts), Counts: counts}
}

func level(c Counts) Level {
	switch {
	case c.Falla > 0:
		return LevelRed
	case c.Revision > 0:
		return LevelYellow
	case c.OK > 0 || c.Libre > 0 || c.Reservado > 0:
		return LevelGreen
	default:
		return LevelGray
	}
}

// statusKey locates the status-bearing column: a column typed "status" wins,
// then a column keyed "status" or "estado", then a probe of the row keys
// themselves, since old tables stored rows without declaring columns.
func statusKey(table *Table) string {
	for _, col := range table.Columns {
		if strings.EqualFold(col.Type, "status") {
			return col.Key
		}
	}
	for _, col := range table.Columns {
		k := strings.ToLower(col.Key)
		if k == "status" || k == "estado" {
			return col.Key
		}
	}
	for _, row := range table.Rows {
		for _, k := range []string{"status", "estado"} {
			if _, ok := row[k]; ok {
				return k
			}
		}
	}
	return ""
}
