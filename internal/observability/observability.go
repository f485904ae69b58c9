// Package observability provides an append-only per-domain JSONL event log,
// cheap counters, and on-demand summaries (counts, alerts) over a rolling
// time window.
package observability

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tas-ingestion/ingestion/internal/ingesterr"
)

// Event is a single recorded observability event.
type Event struct {
	Timestamp string         `json:"timestamp"`
	Domain    string         `json:"domain"`
	Event     string         `json:"event"`
	Status    string         `json:"status"`
	Level     string         `json:"level"`
	Fields    map[string]any `json:"-"`
}

// MarshalJSON flattens Fields alongside the fixed event attributes.
func (e Event) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"timestamp": e.Timestamp,
		"domain":    e.Domain,
		"event":     e.Event,
		"status":    e.Status,
		"level":     e.Level,
	}
	for k, v := range e.Fields {
		m[k] = v
	}
	return json.Marshal(m)
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	e.Timestamp, _ = m["timestamp"].(string)
	e.Domain, _ = m["domain"].(string)
	e.Event, _ = m["event"].(string)
	e.Status, _ = m["status"].(string)
	e.Level, _ = m["level"].(string)
	e.Fields = map[string]any{}
	for k, v := range m {
		switch k {
		case "timestamp", "domain", "event", "status", "level":
			continue
		}
		e.Fields[k] = v
	}
	return nil
}

// Alert is a derived condition surfaced by Summarize.
type Alert struct {
	Type     string `json:"type"`
	Count    int    `json:"count"`
	Severity string `json:"severity"`
}

// Summary reports counts and alerts over a time window.
type Summary struct {
	Domain         string         `json:"domain"`
	WindowHours    int            `json:"window_hours"`
	EventCount     int            `json:"event_count"`
	CountsByEvent  map[string]int `json:"counts_by_event"`
	CountsByStatus map[string]int `json:"counts_by_status"`
	Alerts         []Alert        `json:"alerts"`
}

func utcNowISO() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.999999999Z07:00")
}

func parseISO(ts string) (time.Time, bool) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// Store is the observability collaborator for one OBSERVABILITY_ROOT.
type Store struct {
	Root string
}

func NewStore(root string) *Store { return &Store{Root: root} }

func (s *Store) domainDir(domain string) (string, error) {
	if domain == "" {
		return "", ingesterr.NewValidation("domain", "domain is required")
	}
	return filepath.Join(s.Root, domain), nil
}

func (s *Store) eventsPath(domain string) (string, error) {
	dd, err := s.domainDir(domain)
	if err != nil {
		return "", err
	}
	return filepath.Join(dd, "events.jsonl"), nil
}

func (s *Store) countersPath(domain string) (string, error) {
	dd, err := s.domainDir(domain)
	if err != nil {
		return "", err
	}
	return filepath.Join(dd, "counters.json"), nil
}

// RecordEvent appends an event and increments its derived counters.
func (s *Store) RecordEvent(domain, event, status, level string, fields map[string]any) (Event, error) {
	if status == "" {
		status = "success"
	}
	if level == "" {
		level = "INFO"
	}

	dd, err := s.domainDir(domain)
	if err != nil {
		return Event{}, err
	}
	if err := os.MkdirAll(dd, 0o755); err != nil {
		return Event{}, ingesterr.NewBackend("observability.record_event.mkdir", err)
	}

	ev := Event{Timestamp: utcNowISO(), Domain: domain, Event: event, Status: status, Level: level, Fields: fields}

	eventsPath, err := s.eventsPath(domain)
	if err != nil {
		return Event{}, err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return Event{}, err
	}
	if err := appendLine(eventsPath, b); err != nil {
		return Event{}, ingesterr.NewBackend("observability.record_event.append", err)
	}

	if err := s.Increment(domain, "event:"+event, 1); err != nil {
		return Event{}, err
	}
	if err := s.Increment(domain, "status:"+status, 1); err != nil {
		return Event{}, err
	}
	if err := s.Increment(domain, "event_status:"+event+":"+status, 1); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Increment bumps a named counter by amount (read-modify-write; concurrent
// increments may race and lose updates).
func (s *Store) Increment(domain, key string, amount int) error {
	dd, err := s.domainDir(domain)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dd, 0o755); err != nil {
		return ingesterr.NewBackend("observability.increment.mkdir", err)
	}
	path, err := s.countersPath(domain)
	if err != nil {
		return err
	}

	counters := map[string]int{}
	if raw, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(raw, &counters)
	}
	counters[key] += amount

	keys := make([]string, 0, len(counters))
	for k := range counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make(map[string]int, len(counters))
	for _, k := range keys {
		ordered[k] = counters[k]
	}

	b, err := json.MarshalIndent(ordered, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return ingesterr.NewBackend("observability.increment.write", err)
	}
	return nil
}

// ListEvents returns the most recent events (newest first), bounded to limit.
func (s *Store) ListEvents(domain string, limit int) ([]Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	path, err := s.eventsPath(domain)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, ingesterr.NewBackend("observability.list_events.read", err)
	}

	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}

	var events []Event
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Summarize aggregates events in the last `hours` into counts and alerts.
func (s *Store) Summarize(domain string, hours int) (Summary, error) {
	events, err := s.ListEvents(domain, 10000)
	if err != nil {
		return Summary{}, err
	}

	since := time.Now().UTC()
	if hours > 0 {
		since = since.Add(-time.Duration(hours) * time.Hour)
	}

	countsByEvent := map[string]int{}
	countsByStatus := map[string]int{}
	filteredCount := 0
	integrityFailures := 0
	quarantined := 0

	for _, e := range events {
		ts, ok := parseISO(e.Timestamp)
		if !ok || ts.Before(since) {
			continue
		}
		filteredCount++
		countsByEvent[e.Event]++
		countsByStatus[e.Status]++
		if e.Event == "ingestion_integrity_failure" {
			integrityFailures++
		}
		if e.Event == "ingestion_quarantine" {
			quarantined++
		}
	}

	var alerts []Alert
	if integrityFailures > 0 {
		alerts = append(alerts, Alert{Type: "integrity_failure", Count: integrityFailures, Severity: "high"})
	}
	if quarantined > 0 {
		alerts = append(alerts, Alert{Type: "quarantine", Count: quarantined, Severity: "medium"})
	}

	return Summary{
		Domain:         domain,
		WindowHours:    hours,
		EventCount:     filteredCount,
		CountsByEvent:  countsByEvent,
		CountsByStatus: countsByStatus,
		Alerts:         alerts,
	}, nil
}

func appendLine(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}
