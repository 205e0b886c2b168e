package trends

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zfogg/pulsefeed/backend/internal/logger"
	"github.com/zfogg/pulsefeed/backend/internal/metrics"
	"github.com/zfogg/pulsefeed/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Per-kind signal weights. A mention is a stronger endorsement than an
// author's own post, which in turn counts for less than a hashtag use.
const (
	WeightAuthor  = 0.75
	WeightHashtag = 1.3
	WeightMention = 2.0
	WeightText    = 1.0
)

// Per-source caps applied by BuildSignals so one long post cannot flood
// the signal stream.
const (
	MaxHashtagsPerSource   = 10
	MaxMentionsPerSource   = 10
	MaxTextTokensPerSource = 20
)

// SignalInput is one candidate signal before normalization. OccurredAt
// is optional; zero means "now".
type SignalInput struct {
	EntityType  string    `json:"entity_type"`
	EntityKey   string    `json:"entity_key"`
	SourceType  string    `json:"source_type"`
	SourceID    string    `json:"source_id"`
	SignalKind  string    `json:"signal_kind"`
	ActorUserID string    `json:"actor_user_id"`
	Weight      float64   `json:"weight"`
	OccurredAt  time.Time `json:"occurred_at,omitempty"`
}

// SourceEvent describes one piece of content whose entity references
// have already been extracted upstream. BuildSignals turns it into the
// weighted signal batch the engine ingests.
type SourceEvent struct {
	SourceType   string
	SourceID     string
	AuthorUserID string
	Hashtags     []string
	MentionedIDs []string
	TextTokens   []string
	OccurredAt   time.Time
}

// Store writes trend signals. All other engine stages run inside the
// refresh job's transaction; ingestion is the one write path callers
// reach directly.
type Store struct {
	db *gorm.DB
}

// NewStore creates a signal store backed by db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// InsertSignals validates, normalizes, and persists a batch of signals.
// Duplicates, both within the batch and against rows already in the
// table, are silently dropped; the returned count is rows actually
// inserted. An empty or fully-invalid batch is a successful no-op.
func (s *Store) InsertSignals(ctx context.Context, inputs []SignalInput) (int, error) {
	rows := make([]models.TrendSignal, 0, len(inputs))
	seen := make(map[signalTuple]int, len(inputs))
	dropped := 0

	for _, in := range inputs {
		row, ok := sanitizeSignal(in)
		if !ok {
			dropped++
			continue
		}
		tuple := signalTuple{row.EntityType, row.EntityKey, row.SourceType, row.SourceID, row.SignalKind}
		if idx, dup := seen[tuple]; dup {
			// Last occurrence wins within a batch.
			rows[idx] = row
			dropped++
			continue
		}
		seen[tuple] = len(rows)
		rows = append(rows, row)
	}

	if dropped > 0 {
		metrics.Get().SignalsDroppedTotal.Add(float64(dropped))
	}
	if len(rows) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "entity_type"},
				{Name: "entity_key"},
				{Name: "source_type"},
				{Name: "source_id"},
				{Name: "signal_kind"},
			},
			DoNothing: true,
		}).
		CreateInBatches(&rows, 500)
	if result.Error != nil {
		logger.Error("Failed to insert trend signals",
			zap.Error(result.Error),
			zap.Int("batch_size", len(rows)),
		)
		return 0, result.Error
	}

	inserted := int(result.RowsAffected)
	metrics.Get().SignalsInsertedTotal.Add(float64(inserted))
	return inserted, nil
}

// BuildSignals expands one content event into the weighted signals the
// engine ingests for it: one author signal, plus capped hashtag,
// mention, and text-token signals. Inputs are normalized and deduped by
// entity key within each kind.
func BuildSignals(ev SourceEvent) []SignalInput {
	if !IsValidSourceType(ev.SourceType) || ev.SourceID == "" || ev.AuthorUserID == "" {
		return nil
	}
	occurredAt := ev.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	signals := make([]SignalInput, 0, 1+len(ev.Hashtags)+len(ev.MentionedIDs)+len(ev.TextTokens))
	signals = append(signals, SignalInput{
		EntityType:  EntityUser,
		EntityKey:   ev.AuthorUserID,
		SourceType:  ev.SourceType,
		SourceID:    ev.SourceID,
		SignalKind:  KindAuthor,
		ActorUserID: ev.AuthorUserID,
		Weight:      WeightAuthor,
		OccurredAt:  occurredAt,
	})

	for _, tag := range dedupeKeys(ev.Hashtags, MaxHashtagsPerSource) {
		signals = append(signals, SignalInput{
			EntityType:  EntityHashtag,
			EntityKey:   tag,
			SourceType:  ev.SourceType,
			SourceID:    ev.SourceID,
			SignalKind:  KindHashtag,
			ActorUserID: ev.AuthorUserID,
			Weight:      WeightHashtag,
			OccurredAt:  occurredAt,
		})
	}
	for _, mentioned := range dedupeKeys(ev.MentionedIDs, MaxMentionsPerSource) {
		signals = append(signals, SignalInput{
			EntityType:  EntityUser,
			EntityKey:   mentioned,
			SourceType:  ev.SourceType,
			SourceID:    ev.SourceID,
			SignalKind:  KindMention,
			ActorUserID: ev.AuthorUserID,
			Weight:      WeightMention,
			OccurredAt:  occurredAt,
		})
	}
	for _, token := range dedupeKeys(ev.TextTokens, MaxTextTokensPerSource) {
		signals = append(signals, SignalInput{
			EntityType:  EntityText,
			EntityKey:   token,
			SourceType:  ev.SourceType,
			SourceID:    ev.SourceID,
			SignalKind:  KindText,
			ActorUserID: ev.AuthorUserID,
			Weight:      WeightText,
			OccurredAt:  occurredAt,
		})
	}
	return signals
}

type signalTuple struct {
	entityType string
	entityKey  string
	sourceType string
	sourceID   string
	signalKind string
}

// sanitizeSignal normalizes one input and reports whether it is usable.
// Enum fields are lowercased before validation, so "Hashtag" and
// "HASHTAG" ingest the same as "hashtag".
func sanitizeSignal(in SignalInput) (models.TrendSignal, bool) {
	key := NormalizeEntityKey(in.EntityKey)
	entityType := strings.ToLower(strings.TrimSpace(in.EntityType))
	sourceType := strings.ToLower(strings.TrimSpace(in.SourceType))
	signalKind := strings.ToLower(strings.TrimSpace(in.SignalKind))
	sourceID := strings.TrimSpace(in.SourceID)
	actorUserID := strings.TrimSpace(in.ActorUserID)

	if key == "" ||
		!IsValidEntityType(entityType) ||
		!IsValidSourceType(sourceType) ||
		!IsValidSignalKind(signalKind) ||
		sourceID == "" || actorUserID == "" {
		return models.TrendSignal{}, false
	}

	weight := in.Weight
	if weight <= 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		weight = 1
	}
	createdAt := in.OccurredAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return models.TrendSignal{
		ID:          uuid.New().String(),
		EntityType:  entityType,
		EntityKey:   key,
		SourceType:  sourceType,
		SourceID:    sourceID,
		SignalKind:  signalKind,
		ActorUserID: actorUserID,
		Weight:      weight,
		CreatedAt:   createdAt.UTC(),
	}, true
}

// dedupeKeys normalizes, dedupes, and caps a list of entity keys,
// preserving first-seen order.
func dedupeKeys(raw []string, cap int) []string {
	if len(raw) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(raw))
	keys := make([]string, 0, len(raw))
	for _, r := range raw {
		key := NormalizeEntityKey(r)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
		if len(keys) >= cap {
			break
		}
	}
	return keys
}
