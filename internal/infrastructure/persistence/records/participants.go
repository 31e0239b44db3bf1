package records

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/streakhub/streak-hub/internal/domain/participant"
	"github.com/streakhub/streak-hub/internal/domain/shared"
	"github.com/streakhub/streak-hub/pkg/logger"
)

// ParticipantRepository stores the whole collection as one JSON array.
type ParticipantRepository struct {
	store  shared.KeyValueStore
	key    string
	logger *slog.Logger
}

var _ participant.Repository = (*ParticipantRepository)(nil)

// NewParticipantRepository creates a repository writing under key.
func NewParticipantRepository(store shared.KeyValueStore, key string, log *slog.Logger) *ParticipantRepository {
	return &ParticipantRepository{
		store:  store,
		key:    key,
		logger: logger.OrDefault(log).With(logger.Component("participant_repository")),
	}
}

// Load reads the collection. Entries that fail Normalize and repeated ids are
// dropped with a warning; an undecodable document is ErrCorruptRecord.
func (r *ParticipantRepository) Load(ctx context.Context) ([]participant.Participant, error) {
	raw, ok, err := r.store.Get(ctx, r.key)
	if err != nil {
		return nil, shared.WrapError("participant", "Load", shared.ErrPersistence, "read failed", err)
	}
	if !ok || raw == "" {
		return []participant.Participant{}, nil
	}

	var stored []participant.Participant
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, shared.WrapError("participant", "Load", shared.ErrCorruptRecord, "undecodable collection", err)
	}

	out := make([]participant.Participant, 0, len(stored))
	seen := make(map[string]bool, len(stored))
	for i := range stored {
		p := stored[i]
		if !p.Normalize() || seen[p.ID] {
			r.logger.Warn("dropping invalid participant record",
				logger.StoreKey(r.key),
				slog.Int("index", i),
				logger.ParticipantID(p.ID),
			)
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out, nil
}

// Save replaces the stored collection.
func (r *ParticipantRepository) Save(ctx context.Context, ps []participant.Participant) error {
	if ps == nil {
		ps = []participant.Participant{}
	}
	data, err := json.Marshal(ps)
	if err != nil {
		return shared.WrapError("participant", "Save", shared.ErrPersistence, "encode failed", err)
	}
	if err := r.store.Set(ctx, r.key, string(data)); err != nil {
		return shared.WrapError("participant", "Save", shared.ErrPersistence, "write failed", err)
	}
	return nil
}
