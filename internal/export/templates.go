package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"
)

var sheetTemplate = template.Must(template.New("sheet").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
	// cell renders a row value of any JSON-decoded type as display text.
	"cell": func(row map[string]any, key string) string {
		switch v := row[key].(type) {
		case string:
			return v
		case float64:
			if v == float64(int64(v)) {
				return strconv.FormatInt(int64(v), 10)
			}
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(v)
		case nil:
			return ""
		default:
			return fmt.Sprint(v)
		}
	},
}).Parse(sheetHTML))

// RenderSheetHTML renders the frame sheet template.
func RenderSheetHTML(sheet Sheet) (string, error) {
	var buf bytes.Buffer
	if err := sheetTemplate.Execute(&buf, sheet); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const sheetHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Code}} - {{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; max-width: 800px; margin: 2rem auto; color: #222; }
    header { display: flex; justify-content: space-between; align-items: center; border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    header img { max-height: 48px; }
    h1 { margin: 0; font-size: 1.4rem; }
    .meta { color: #666; font-size: 0.9em; margin: 0.5rem 0 1.5rem; }
    .badge { display: inline-block; padding: 2px 10px; border-radius: 10px; color: #fff; font-size: 0.85em; }
    .badge-red { background: #c0392b; }
    .badge-yellow { background: #d4a017; }
    .badge-green { background: #27842a; }
    .badge-gray { background: #888; }
    h2 { font-size: 1.1rem; border-bottom: 1px solid #ccc; padding-bottom: 0.25rem; margin-top: 1.5rem; }
    table { width: 100%; border-collapse: collapse; font-size: 0.9em; }
    th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; }
    th { background: #f0f0f0; }
    ul.files { padding-left: 1.2rem; }
    .section-img { max-width: 100%; max-height: 320px; margin: 0.5rem 0; }
  </style>
</head>
<body>
  <header>
    <div>
      <h1>{{.Code}} — {{.Title}}</h1>
      <div class="meta">{{.Cluster}} / {{.Project}}{{if .Site}} · {{.Site}}{{end}}{{if .Room}} · {{.Room}}{{end}}</div>
    </div>
    {{if .LogoURL}}<img src="{{.LogoURL}}" alt="logo">{{end}}
  </header>

  <p>
    <span class="badge badge-{{.Health.Level}}">{{.Health.Level}}</span>
    &nbsp;OK: {{.Health.Counts.OK}} · Revision: {{.Health.Counts.Revision}} · Falla: {{.Health.Counts.Falla}} · Libre: {{.Health.Counts.Libre}} · Reservado: {{.Health.Counts.Reservado}}
  </p>

  {{if .Description}}<p>{{.Description}}</p>{{end}}

  {{if .LocationURL}}
  <h2>Location</h2>
  <img class="section-img" src="{{.LocationURL}}" alt="location">
  {{end}}

  {{if .Table}}{{if .Table.Rows}}
  <h2>Ports</h2>
  <table>
    <tr>{{range .Table.Columns}}<th>{{if .Label}}{{.Label}}{{else}}{{.Key}}{{end}}</th>{{end}}</tr>
    {{$cols := .Table.Columns}}
    {{range .Table.Rows}}
      {{$row := .}}
      <tr>{{range $cols}}<td>{{cell $row .Key}}</td>{{end}}</tr>
    {{end}}
  </table>
  {{end}}{{end}}

  {{if .Devices}}
  <h2>Devices</h2>
  <table>
    <tr><th>Name</th><th>Model</th><th>Serial</th><th>Rack</th><th>Site</th><th>Notes</th></tr>
    {{range .Devices}}
    <tr><td>{{.Name}}</td><td>{{.Model}}</td><td>{{.Serial}}</td><td>{{.Rack}}</td><td>{{.Site}}</td><td>{{.Notes}}</td></tr>
    {{end}}
  </table>
  {{end}}

  {{if .Diagrams}}
  <h2>Diagrams</h2>
  <ul class="files">{{range .Diagrams}}<li>{{.Name}}</li>{{end}}</ul>
  {{end}}

  {{if .DFO}}
  <h2>Fiber Layout</h2>
  <ul class="files">{{range .DFO}}<li>{{.Name}}</li>{{end}}</ul>
  {{end}}

  {{if .Documents}}
  <h2>Documents</h2>
  <ul class="files">{{range .Documents}}<li>{{.Name}}</li>{{end}}</ul>
  {{end}}

  {{if .Images}}
  <h2>Gallery</h2>
  {{range .Images}}<img class="section-img" src="{{.URL}}" alt="{{.Name}}">{{end}}
  {{end}}

  <div class="meta">Generated {{formatDate .GeneratedAt "Jan 2, 2006 15:04 MST"}}</div>
</body>
</html>`
