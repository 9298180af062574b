package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/YuvDwi/Cradle/errors"
	"github.com/YuvDwi/Cradle/message"
)

// MemoryStore keeps everything in process memory. Used by tests and by
// deployments that run without Postgres.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*SessionRecord
	alerts   map[string]*message.AlertEvent
	devices  map[string]*DeviceRecord
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*SessionRecord),
		alerts:   make(map[string]*message.AlertEvent),
		devices:  make(map[string]*DeviceRecord),
	}
}

func (s *MemoryStore) CreateSession(_ context.Context, rec *SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.sessions[rec.SessionID] = &cp
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) FinishSession(_ context.Context, rec *SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[rec.SessionID]; !ok {
		return errors.ErrSessionNotFound
	}

	cp := *rec
	cp.IsActive = false
	s.sessions[rec.SessionID] = &cp
	return nil
}

func (s *MemoryStore) ListSessions(_ context.Context, q SessionQuery) ([]*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []*SessionRecord
	for _, rec := range s.sessions {
		if q.DeviceID != "" && rec.DeviceID != q.DeviceID {
			continue
		}
		if q.ActiveOnly && !rec.IsActive {
			continue
		}
		cp := *rec
		sessions = append(sessions, &cp)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (s *MemoryStore) CreateAlert(_ context.Context, alert *message.AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *alert
	s.alerts[alert.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAlert(_ context.Context, id string) (*message.AlertEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alert, ok := s.alerts[id]
	if !ok {
		return nil, errors.ErrAlertNotFound
	}
	cp := *alert
	return &cp, nil
}

func (s *MemoryStore) ListAlerts(_ context.Context, q AlertQuery) ([]*message.AlertEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var alerts []*message.AlertEvent
	for _, alert := range s.alerts {
		if q.Severity != "" && alert.Severity != q.Severity {
			continue
		}
		if q.Type != "" && alert.Type != q.Type {
			continue
		}
		if q.DeviceID != "" && alert.DeviceID != q.DeviceID {
			continue
		}
		cp := *alert
		alerts = append(alerts, &cp)
	}

	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].Timestamp.After(alerts[j].Timestamp)
	})

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}

func (s *MemoryStore) AcknowledgeAlert(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok {
		return errors.ErrAlertNotFound
	}

	alert.Acknowledged = true
	t := at
	alert.AcknowledgedAt = &t
	return nil
}

func (s *MemoryStore) AlertStats(_ context.Context) (*AlertStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &AlertStats{
		BySeverity: make(map[string]int64),
		ByType:     make(map[string]int64),
	}
	for _, alert := range s.alerts {
		stats.Total++
		if alert.Acknowledged {
			stats.Acknowledged++
		}
		stats.BySeverity[string(alert.Severity)]++
		stats.ByType[string(alert.Type)]++
	}
	return stats, nil
}

func (s *MemoryStore) UpsertDevice(_ context.Context, rec *DeviceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	cp := *rec
	if existing, ok := s.devices[rec.DeviceID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.devices[rec.DeviceID] = &cp
	return nil
}

func (s *MemoryStore) GetDevice(_ context.Context, deviceID string) (*DeviceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.devices[deviceID]
	if !ok {
		return nil, errors.ErrDeviceNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) ListDevices(_ context.Context) ([]*DeviceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]*DeviceRecord, 0, len(s.devices))
	for _, rec := range s.devices {
		cp := *rec
		devices = append(devices, &cp)
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].DeviceID < devices[j].DeviceID
	})
	return devices, nil
}

func (s *MemoryStore) TouchDevice(_ context.Context, deviceID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := at
	if rec, ok := s.devices[deviceID]; ok {
		rec.LastSeen = &t
		rec.UpdatedAt = at
		return nil
	}

	s.devices[deviceID] = &DeviceRecord{
		DeviceID:   deviceID,
		DeviceType: "mobile",
		IsActive:   true,
		LastSeen:   &t,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	return nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
