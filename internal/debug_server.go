package internal

import (
	"context"
	"encoding/json"
	"eventmaster/storage"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var inspectTemplate = template.Must(template.New("inspect").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>eventmaster inspect</title></head>
<body>
<form><input name="prefix" value="{{.Prefix}}"><button>Filter</button></form>
<h3>Diagnostics</h3>
<ul>{{range $k, $v := .Stats}}<li>{{$k}}: {{$v}}</li>{{end}}</ul>
<table border="1" cellpadding="4">
<tr><th>Key</th><th>Type</th><th>Namespace</th><th>Records</th><th>Timestamp</th><th>Detail</th></tr>
{{range .Items}}<tr><td>{{.Key}}</td><td>{{.Type}}</td><td>{{.Namespace}}</td><td>{{.Records}}</td><td>{{.Timestamp}}</td><td>{{.Detail}}</td></tr>
{{end}}</table>
</body></html>`))

// InspectRow is one persisted key as shown by the inspect page and command.
type InspectRow struct {
	Key       string `json:"key"`
	Type      string `json:"type"`
	Namespace string `json:"namespace"`
	Records   string `json:"records"`
	Timestamp string `json:"timestamp"`
	Detail    string `json:"detail"`
}

type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// Inspect lists every key under prefix.
func Inspect(ctx context.Context, store storage.Persistence, prefix string) ([]InspectRow, error) {
	keys, err := store.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	rows := make([]InspectRow, 0, len(keys))
	for _, key := range keys {
		val, ok, err := store.Read(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, MapRow(key, val))
		}
	}
	return rows, nil
}

// NewInspectHandler serves an HTML dump of the store, filtered with ?prefix=.
func NewInspectHandler(store storage.Persistence, statsProvider StatsProvider) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := PageData{
			Prefix: r.URL.Query().Get("prefix"),
			Stats:  make(map[string]any),
		}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}
		items, err := Inspect(r.Context(), store, data.Prefix)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		data.Items = items

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = inspectTemplate.Execute(w, data)
	})
}

// MapRow classifies a key by its layout and counts the records it holds.
func MapRow(key string, val []byte) InspectRow {
	row := InspectRow{
		Key:       key,
		Type:      "RAW",
		Namespace: "-",
		Records:   "-",
		Timestamp: "--:--:--",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}

	base, suffix, corrupt := strings.Cut(key, ".corrupt.")
	switch {
	case strings.HasPrefix(base, "counter:events_"):
		row.Type = "COUNTER"
		row.Namespace = strings.TrimPrefix(base, "counter:events_")
		row.Detail = "Next after " + string(val)
	case strings.HasPrefix(base, "events_"):
		row.Type = "EVENTS"
		row.Namespace = strings.TrimPrefix(base, "events_")
	case strings.HasPrefix(base, "@App:Chats_"):
		row.Type = "CHATS"
		row.Namespace = strings.TrimPrefix(base, "@App:Chats_")
	case strings.HasPrefix(base, "sync_"):
		row.Type = "SYNC"
		row.Namespace = strings.TrimPrefix(base, "sync_")
	case strings.HasPrefix(base, "remote:"):
		row.Type = "REMOTE"
		row.Namespace = strings.TrimPrefix(base, "remote:")
	}

	if corrupt {
		row.Type = "CORRUPT " + row.Type
		if tsNano, err := strconv.ParseInt(suffix, 10, 64); err == nil {
			row.Timestamp = time.Unix(0, tsNano).Format("2006-01-02 15:04:05")
		}
		return row
	}
	if n, ok := countRecords(val); ok {
		row.Records = strconv.Itoa(n)
	}
	return row
}

func countRecords(val []byte) (int, bool) {
	var envelope struct {
		Records []json.RawMessage      `json:"records"`
		Entries map[string]interface{} `json:"entries"`
	}
	if err := json.Unmarshal(val, &envelope); err == nil {
		switch {
		case envelope.Records != nil:
			return len(envelope.Records), true
		case envelope.Entries != nil:
			return len(envelope.Entries), true
		}
	}
	var list []json.RawMessage
	if err := json.Unmarshal(val, &list); err == nil {
		return len(list), true
	}
	return 0, false
}
