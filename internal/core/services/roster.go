package services

import (
	"sort"
	"sync"
	"time"

	"meetcore/internal/core/domain"
	"meetcore/internal/core/ports"

	"go.uber.org/zap"
)

// roster keeps two indices consistent through a single mutation path:
// byParticipant is the authoritative map, byConnection resolves the
// transport-level ids used by on-the-wire toggle and leave events.
type roster struct {
	mu            sync.RWMutex
	localID       domain.ParticipantID
	hostID        domain.ParticipantID
	byParticipant map[domain.ParticipantID]*domain.Participant
	byConnection  map[domain.ConnectionID]domain.ParticipantID

	logger *zap.SugaredLogger
}

func NewRoster(localID domain.ParticipantID, logger *zap.SugaredLogger) ports.Roster {
	return &roster{
		localID:       localID,
		byParticipant: make(map[domain.ParticipantID]*domain.Participant),
		byConnection:  make(map[domain.ConnectionID]domain.ParticipantID),
		logger:        logger,
	}
}

// SetHostID fixes the session host so IsHost can be derived on upsert.
func (r *roster) SetHostID(id domain.ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hostID = id
	for _, p := range r.byParticipant {
		p.IsHost = p.ID == id
	}
}

func (r *roster) ApplySnapshot(infos []domain.ParticipantInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, info := range infos {
		r.upsert(info)
	}
}

func (r *roster) ApplyJoin(info domain.ParticipantInfo) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info.ID == r.localID {
		return false
	}
	_, existed := r.byParticipant[info.ID]
	r.upsert(info)
	return !existed
}

// upsert inserts or updates by participant id. The local participant is
// filtered out unconditionally; a changed connection id evicts the stale
// byConnection entry so reconnects never create duplicates.
func (r *roster) upsert(info domain.ParticipantInfo) {
	if info.ID == r.localID || info.ID == "" {
		return
	}
	now := time.Now()
	if p, ok := r.byParticipant[info.ID]; ok {
		if p.ConnectionID != info.ConnectionID {
			delete(r.byConnection, p.ConnectionID)
			p.ConnectionID = info.ConnectionID
		}
		if info.Name != "" {
			p.Name = info.Name
		}
		p.AudioEnabled = info.AudioEnabled
		p.VideoEnabled = info.VideoEnabled
		p.ScreenSharing = info.ScreenSharing
		p.UpdatedAt = now
	} else {
		r.byParticipant[info.ID] = &domain.Participant{
			ID:            info.ID,
			ConnectionID:  info.ConnectionID,
			Name:          info.Name,
			AudioEnabled:  info.AudioEnabled,
			VideoEnabled:  info.VideoEnabled,
			ScreenSharing: info.ScreenSharing,
			IsHost:        info.ID == r.hostID,
			JoinedAt:      now,
			UpdatedAt:     now,
		}
	}
	if info.ConnectionID != "" {
		r.byConnection[info.ConnectionID] = info.ID
	}
}

// ApplyLeave removes the participant bound to the connection id. Leaves are
// idempotent: removing an absent participant is a no-op.
func (r *roster) ApplyLeave(connectionID domain.ConnectionID) *domain.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	pid, ok := r.byConnection[connectionID]
	if !ok {
		return nil
	}
	p := r.byParticipant[pid]
	delete(r.byConnection, connectionID)
	delete(r.byParticipant, pid)
	removed := *p
	return &removed
}

func (r *roster) ApplyToggle(field domain.ToggleField, enabled bool, participantID domain.ParticipantID, connectionID domain.ConnectionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	var p *domain.Participant
	if participantID != "" {
		p = r.byParticipant[participantID]
	}
	if p == nil && connectionID != "" {
		if pid, ok := r.byConnection[connectionID]; ok {
			p = r.byParticipant[pid]
		}
	}
	if p == nil {
		r.logger.Debugw("toggle for unknown participant dropped",
			"participant_id", participantID, "connection_id", connectionID, "field", field)
		return false
	}

	switch field {
	case domain.FieldAudioEnabled:
		p.AudioEnabled = enabled
	case domain.FieldVideoEnabled:
		p.VideoEnabled = enabled
	case domain.FieldScreenSharing:
		p.ScreenSharing = enabled
	default:
		r.logger.Warnw("unknown toggle field dropped", "field", field)
		return false
	}
	p.UpdatedAt = time.Now()
	return true
}

func (r *roster) ByParticipantID(id domain.ParticipantID) (*domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byParticipant[id]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

func (r *roster) ByConnectionID(id domain.ConnectionID) (*domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pid, ok := r.byConnection[id]
	if !ok {
		return nil, false
	}
	cp := *r.byParticipant[pid]
	return &cp, true
}

// Snapshot returns an immutable copy ordered by join time.
func (r *roster) Snapshot() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, len(r.byParticipant))
	for _, p := range r.byParticipant {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

func (r *roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byParticipant)
}

func (r *roster) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byParticipant = make(map[domain.ParticipantID]*domain.Participant)
	r.byConnection = make(map[domain.ConnectionID]domain.ParticipantID)
}
