package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tdkkdt/EvoS-sub002/internal/config"
	"github.com/tdkkdt/EvoS-sub002/internal/models"
	"github.com/tdkkdt/EvoS-sub002/internal/repository"
	"github.com/tdkkdt/EvoS-sub002/pkg/database"
	"github.com/tdkkdt/EvoS-sub002/pkg/logger"
)

// 로컬 테스트용 계정 rating과 대기열을 채우는 도구
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type seedOptions struct {
	mode   string
	count  int
	base   float64
	spread float64
	party  int
	prefix string
}

func newRootCmd() *cobra.Command {
	opts := &seedOptions{}

	root := &cobra.Command{
		Use:          "seed",
		Short:        "Seed ratings and queued groups for local matchmaking runs",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.mode, "mode", "pvp", "game mode to seed")
	root.PersistentFlags().IntVar(&opts.count, "count", 8, "number of accounts")
	root.PersistentFlags().StringVar(&opts.prefix, "prefix", "bot", "account id prefix")

	ratings := &cobra.Command{
		Use:   "ratings",
		Short: "Upsert ratings for seeded accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, db *database.DB, registry *config.ModeRegistry) error {
				return seedRatings(ctx, repository.NewRatingRepository(db), registry, opts)
			})
		},
	}
	ratings.Flags().Float64Var(&opts.base, "base", 1500, "center rating")
	ratings.Flags().Float64Var(&opts.spread, "spread", 50, "rating step between accounts")

	queue := &cobra.Command{
		Use:   "queue",
		Short: "Queue seeded accounts as groups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, db *database.DB, registry *config.ModeRegistry) error {
				return seedQueue(ctx, repository.NewMatchmakingRepository(db), registry, opts)
			})
		},
	}
	queue.Flags().IntVar(&opts.party, "party", 1, "accounts per group")

	root.AddCommand(ratings, queue)
	return root
}

func withDB(ctx context.Context, fn func(context.Context, *database.DB, *config.ModeRegistry) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	registry, err := config.LoadModeRegistry(cfg.MatchmakingModesPath)
	if err != nil {
		return err
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	return fn(ctx, db, registry)
}

type ratingWriter interface {
	Upsert(ctx context.Context, rating *models.AccountRating) error
}

func seedRatings(ctx context.Context, repo ratingWriter, registry *config.ModeRegistry, opts *seedOptions) error {
	mode, err := registry.Mode(opts.mode)
	if err != nil {
		return err
	}

	for _, rating := range seededRatings(mode.RatingKey, opts) {
		rating := rating
		if err := repo.Upsert(ctx, &rating); err != nil {
			return err
		}
	}

	logger.Info("Ratings seeded", "mode", mode.Name, "ratingKey", mode.RatingKey, "count", opts.count)
	return nil
}

// seededRatings base를 중심으로 spread 간격으로 퍼진 rating 목록
func seededRatings(ratingKey string, opts *seedOptions) []models.AccountRating {
	ratings := make([]models.AccountRating, 0, opts.count)
	center := float64(opts.count-1) / 2
	for i := 0; i < opts.count; i++ {
		ratings = append(ratings, models.AccountRating{
			AccountID:   accountID(opts.prefix, i),
			RatingKey:   ratingKey,
			Rating:      opts.base + (float64(i)-center)*opts.spread,
			GamesPlayed: i * 3,
		})
	}
	return ratings
}

type groupWriter interface {
	EnqueueGroup(ctx context.Context, mode string, accountIDs []string) (*models.QueuedGroup, error)
}

func seedQueue(ctx context.Context, repo groupWriter, registry *config.ModeRegistry, opts *seedOptions) error {
	mode, err := registry.Mode(opts.mode)
	if err != nil {
		return err
	}
	if opts.party < 1 || (mode.MaxGroupSize > 0 && opts.party > mode.MaxGroupSize) {
		return fmt.Errorf("party size %d is not allowed in mode %s", opts.party, mode.Name)
	}

	groups := 0
	for _, members := range partition(opts.prefix, opts.count, opts.party) {
		group, err := repo.EnqueueGroup(ctx, mode.Name, members)
		if err != nil {
			return fmt.Errorf("failed to queue %v: %w", members, err)
		}
		logger.Debug("Group queued", "groupId", group.ID, "members", members)
		groups++
	}

	logger.Info("Queue seeded", "mode", mode.Name, "groups", groups)
	return nil
}

// partition count개 계정을 party 크기로 나눈다. 마지막 그룹은 더 작을 수 있다
func partition(prefix string, count, party int) [][]string {
	var groups [][]string
	for start := 0; start < count; start += party {
		end := start + party
		if end > count {
			end = count
		}
		members := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			members = append(members, accountID(prefix, i))
		}
		groups = append(groups, members)
	}
	return groups
}

func accountID(prefix string, i int) string {
	return fmt.Sprintf("%s-%03d", prefix, i)
}
