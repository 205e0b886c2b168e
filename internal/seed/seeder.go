package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/zfogg/pulsefeed/backend/internal/logger"
	"github.com/zfogg/pulsefeed/backend/internal/models"
	"github.com/zfogg/pulsefeed/backend/internal/trends"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// hashtagPool skews seeded activity so a handful of tags genuinely
// trend instead of everything being uniform noise.
var hashtagPool = []string{
	"golang", "synthwave", "nowplaying", "producer", "beats",
	"vinyl", "remix", "lofi", "modular", "livecoding",
	"mastering", "sampling", "fieldrecording", "breakbeat", "ambient",
}

var textTokenPool = []string{
	"bassline", "reverb", "sidechain", "arpeggio", "dropout",
	"tape", "chorus", "detune", "bounce", "stems",
}

// Seeder handles database seeding operations
type Seeder struct {
	db    *gorm.DB
	store *trends.Store
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{db: db, store: trends.NewStore(db)}
}

// SeedDev populates the development database with users and a day of
// skewed engagement signals, then leaves refresh to the running server.
func (s *Seeder) SeedDev() error {
	logger.Log.Info("Creating users...")
	users, err := s.seedUsers(60)
	if err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	logger.Log.Info("Creating engagement signals...")
	inserted, err := s.seedSignals(users, 800)
	if err != nil {
		return fmt.Errorf("failed to seed signals: %w", err)
	}

	logger.Log.Info("Seeding complete",
		zap.Int("users", len(users)),
		zap.Int("signals", inserted),
	)
	return nil
}

// seedUsers creates n fake users and returns them.
func (s *Seeder) seedUsers(n int) ([]models.User, error) {
	users := make([]models.User, 0, n)
	for i := 0; i < n; i++ {
		first := gofakeit.FirstName()
		last := gofakeit.LastName()
		user := models.User{
			ID:          uuid.New().String(),
			Username:    fmt.Sprintf("%s%d", gofakeit.Username(), i),
			DisplayName: fmt.Sprintf("%s %s", first, last),
			FirstName:   first,
			LastName:    last,
			AvatarURL:   gofakeit.ImageURL(256, 256),
			CreatedAt:   time.Now().UTC().Add(-time.Duration(gofakeit.Number(1, 90)) * 24 * time.Hour),
		}
		if err := s.db.Create(&user).Error; err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

// seedSignals fabricates sourceCount posts and comments spread over the
// trailing 24 hours, weighted toward the last hour so the short windows
// have something to rank. Returns the number of signals inserted.
func (s *Seeder) seedSignals(users []models.User, sourceCount int) (int, error) {
	ctx := context.Background()
	total := 0

	for i := 0; i < sourceCount; i++ {
		author := users[rand.Intn(len(users))]

		sourceType := trends.SourcePost
		if rand.Float64() < 0.4 {
			sourceType = trends.SourceComment
		}

		// Zipf-ish tag choice: low indexes in the pool come up far more
		// often, so they accumulate real momentum.
		tags := make([]string, 0, 3)
		for j := 0; j < gofakeit.Number(0, 3); j++ {
			tags = append(tags, hashtagPool[int(rand.ExpFloat64()*2)%len(hashtagPool)])
		}
		tokens := make([]string, 0, 4)
		for j := 0; j < gofakeit.Number(0, 4); j++ {
			tokens = append(tokens, textTokenPool[rand.Intn(len(textTokenPool))])
		}
		var mentions []string
		if rand.Float64() < 0.3 {
			mentions = []string{users[rand.Intn(len(users))].ID}
		}

		// 60% of activity lands in the last hour, the rest spreads over
		// the remaining 23.
		var age time.Duration
		if rand.Float64() < 0.6 {
			age = time.Duration(rand.Intn(3600)) * time.Second
		} else {
			age = time.Hour + time.Duration(rand.Intn(23*3600))*time.Second
		}

		batch := trends.BuildSignals(trends.SourceEvent{
			SourceType:   sourceType,
			SourceID:     uuid.New().String(),
			AuthorUserID: author.ID,
			Hashtags:     tags,
			MentionedIDs: mentions,
			TextTokens:   tokens,
			OccurredAt:   time.Now().UTC().Add(-age),
		})

		inserted, err := s.store.InsertSignals(ctx, batch)
		if err != nil {
			return total, err
		}
		total += inserted
	}
	return total, nil
}
