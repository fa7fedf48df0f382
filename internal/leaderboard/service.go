// Package leaderboard keeps live per-game standings in Redis and notifies
// external observers over Redis pub/sub. All keys are scoped to one game and
// removed when that game completes; nothing outlives a session.
package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/livetrivia/internal/domain"
	"github.com/victornm/livetrivia/internal/errors"
	"github.com/victornm/livetrivia/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameScoreUpdated, func(ctx context.Context, e event.Event) error {
		return s.UpdateStandings(ctx, e.(domain.EventScoreUpdated))
	})
	s.eb.Subscribe(domain.EventNameGameCompleted, func(ctx context.Context, e event.Event) error {
		return s.FinishGame(ctx, e.(domain.EventGameCompleted))
	})

	return s
}

type GetStandingsRequest struct {
	Game string
}

// GetStandings returns the current ranking for a game.
func (s *Service) GetStandings(ctx context.Context, req GetStandingsRequest) (*domain.Standings, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.standingsKey(req.Game), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get standings: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("standings not found: game=%s", req.Game))
	}

	entries := make([]domain.StandingsEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.StandingsEntry{
			ConnectionID: z.Member.(string),
			Correct:      int(z.Score),
		})
	}

	return &domain.Standings{
		Game:    req.Game,
		Entries: entries,
	}, nil
}

// UpdateStandings overwrites the player's score in the game's standings.
func (s *Service) UpdateStandings(ctx context.Context, e domain.EventScoreUpdated) error {
	sc := e.Score

	if err := s.redis.ZAdd(ctx, s.standingsKey(e.Game), redis.Z{
		Score:  float64(sc.Correct),
		Member: sc.ConnectionID,
	}).Err(); err != nil {
		return fmt.Errorf("update standings: %w", err)
	}

	return s.schedulePublishStandings(ctx, e.Game)
}

// FinishGame publishes the final notification for a completed game and drops
// its standings keys.
func (s *Service) FinishGame(ctx context.Context, e domain.EventGameCompleted) error {
	if err := s.notify(ctx, e.Game, domain.EventNameGameCompleted, e.Scores); err != nil {
		return err
	}

	if err := s.redis.Del(ctx, s.standingsKey(e.Game), s.throttleKey(e.Game)).Err(); err != nil {
		return fmt.Errorf("drop standings: %w", err)
	}

	return nil
}

// schedulePublishStandings publishes the standings at most once per
// publishInterval per game. Scores change in bursts (every player settles at
// roughly the same moment each round), so this caps the notification volume.
func (s *Service) schedulePublishStandings(ctx context.Context, game string) error {
	ok, err := s.redis.SetNX(ctx, s.throttleKey(game), time.Now().UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	standings, err := s.GetStandings(ctx, GetStandingsRequest{Game: game})
	if err != nil {
		return fmt.Errorf("get standings failed: game=%s: %w", game, err)
	}

	return s.notify(ctx, game, "game.standings.updated", standings.Entries)
}

type Notification struct {
	Event string `json:"event"`
	Game  string `json:"game"`
	Data  any    `json:"data"`
}

func (s *Service) notify(ctx context.Context, game, eventName string, data any) error {
	b, err := json.Marshal(Notification{
		Event: eventName,
		Game:  game,
		Data:  data,
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %v", eventName, err)
	}

	return s.redis.Publish(ctx, s.channel(game), b).Err()
}

func (s *Service) standingsKey(game string) string {
	return fmt.Sprintf("%s:%s:standings", s.prefix, game)
}

func (s *Service) throttleKey(game string) string {
	return fmt.Sprintf("%s:%s:throttle", s.prefix, game)
}

func (s *Service) channel(game string) string {
	return fmt.Sprintf("%s:game:%s", s.prefix, game)
}
