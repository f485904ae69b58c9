// Package release manages release creation, promotion, and audit logging:
//
//	<releases_root>/<domain>/
//	  active_release.txt
//	  releases/<release_id>/release.json
//	  audit.jsonl
package release

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tas-ingestion/ingestion/internal/ingesterr"
)

// Record is a release's stored metadata.
type Record struct {
	ReleaseID string         `json:"release_id"`
	Domain    string         `json:"domain"`
	CreatedBy string         `json:"created_by,omitempty"`
	CreatedAt string         `json:"created_at"`
	Extra     map[string]any `json:"-"`
}

// AuditEvent is an append-only promotion audit entry.
type AuditEvent struct {
	Timestamp         string `json:"timestamp"`
	Event             string `json:"event"`
	Domain            string `json:"domain"`
	ReleaseID         string `json:"release_id"`
	PreviousReleaseID string `json:"previous_release_id,omitempty"`
	Actor             string `json:"actor,omitempty"`
	Reason            string `json:"reason,omitempty"`
}

func utcNowISO() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.999999999Z07:00")
}

// Manager is the release lifecycle controller for one RELEASES_ROOT.
type Manager struct {
	Root string
}

func NewManager(root string) *Manager { return &Manager{Root: root} }

func (m *Manager) domainDir(domain string) (string, error) {
	if domain == "" {
		return "", ingesterr.NewValidation("domain", "domain is required")
	}
	return filepath.Join(m.Root, domain), nil
}

func (m *Manager) releaseDir(domain, releaseID string) (string, error) {
	if releaseID == "" {
		return "", ingesterr.NewValidation("release_id", "release_id is required")
	}
	dd, err := m.domainDir(domain)
	if err != nil {
		return "", err
	}
	return filepath.Join(dd, "releases", releaseID), nil
}

func (m *Manager) activeReleasePath(domain string) (string, error) {
	dd, err := m.domainDir(domain)
	if err != nil {
		return "", err
	}
	return filepath.Join(dd, "active_release.txt"), nil
}

func (m *Manager) auditPath(domain string) (string, error) {
	dd, err := m.domainDir(domain)
	if err != nil {
		return "", err
	}
	return filepath.Join(dd, "audit.jsonl"), nil
}

// CreateRelease writes a release directory with minimal metadata and any
// extra payload fields merged in.
func (m *Manager) CreateRelease(domain, releaseID, createdBy string, payload map[string]any) (map[string]any, error) {
	releaseDir, err := m.releaseDir(domain, releaseID)
	if err != nil {
		return nil, err
	}
	domainDir, _ := m.domainDir(domain)

	meta := map[string]any{
		"release_id": releaseID,
		"domain":     domain,
		"created_by": createdBy,
		"created_at": utcNowISO(),
	}
	for k, v := range payload {
		meta[k] = v
	}

	if err := os.MkdirAll(releaseDir, 0o755); err != nil {
		return nil, ingesterr.NewBackend("release.create.mkdir_release", err)
	}
	if err := os.MkdirAll(domainDir, 0o755); err != nil {
		return nil, ingesterr.NewBackend("release.create.mkdir_domain", err)
	}

	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, ingesterr.NewBackend("release.create.marshal", err)
	}
	if err := os.WriteFile(filepath.Join(releaseDir, "release.json"), b, 0o644); err != nil {
		return nil, ingesterr.NewBackend("release.create.write", err)
	}
	return meta, nil
}

// GetActiveRelease returns the active release id for domain, or "" if none.
func (m *Manager) GetActiveRelease(domain string) (string, error) {
	path, err := m.activeReleasePath(domain)
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", ingesterr.NewBackend("release.get_active.read", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// PromoteRelease marks release_id as the domain's active release and appends
// an audit event.
func (m *Manager) PromoteRelease(domain, releaseID, promotedBy, reason string) (AuditEvent, error) {
	previous, err := m.GetActiveRelease(domain)
	if err != nil {
		return AuditEvent{}, err
	}

	domainDir, err := m.domainDir(domain)
	if err != nil {
		return AuditEvent{}, err
	}
	releaseDir, err := m.releaseDir(domain, releaseID)
	if err != nil {
		return AuditEvent{}, err
	}
	if err := os.MkdirAll(domainDir, 0o755); err != nil {
		return AuditEvent{}, ingesterr.NewBackend("release.promote.mkdir_domain", err)
	}
	if err := os.MkdirAll(releaseDir, 0o755); err != nil {
		return AuditEvent{}, ingesterr.NewBackend("release.promote.mkdir_release", err)
	}

	activePath, _ := m.activeReleasePath(domain)
	if err := os.WriteFile(activePath, []byte(releaseID), 0o644); err != nil {
		return AuditEvent{}, ingesterr.NewBackend("release.promote.write_active", err)
	}

	event := AuditEvent{
		Timestamp:         utcNowISO(),
		Event:             "security_release_promoted",
		Domain:            domain,
		ReleaseID:         releaseID,
		PreviousReleaseID: previous,
		Actor:             promotedBy,
		Reason:            reason,
	}

	auditPath, err := m.auditPath(domain)
	if err != nil {
		return AuditEvent{}, err
	}
	if err := appendJSONLine(auditPath, event); err != nil {
		return AuditEvent{}, ingesterr.NewBackend("release.promote.append_audit", err)
	}
	return event, nil
}

// ListAudit returns the most recent audit events (newest first), bounded to limit.
func (m *Manager) ListAudit(domain string, limit int) ([]AuditEvent, error) {
	path, err := m.auditPath(domain)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, ingesterr.NewBackend("release.list_audit.read", err)
	}

	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}

	var events []AuditEvent
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var ev AuditEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// ListReleases enumerates release ids under <root>/<domain>/releases/.
func (m *Manager) ListReleases(domain string) ([]string, error) {
	dd, err := m.domainDir(domain)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(dd, "releases"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, ingesterr.NewBackend("release.list_releases.read_dir", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func appendJSONLine(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = f.Write(b)
	return err
}
