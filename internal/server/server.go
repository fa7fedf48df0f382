package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/victornm/livetrivia/internal/errors"
	"github.com/victornm/livetrivia/internal/event"
	"github.com/victornm/livetrivia/internal/game"
	"github.com/victornm/livetrivia/internal/hub"
	"github.com/victornm/livetrivia/internal/leaderboard"
	"github.com/victornm/livetrivia/internal/lobby"
	"github.com/victornm/livetrivia/internal/telemetry"
	"github.com/victornm/livetrivia/internal/triviaapi"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		Addrs  []string
		Pass   string
		Prefix string
	}

	TriviaAPI struct {
		BaseURL  string
		PageSize int
	}

	Game struct {
		MaxPlayers             int
		Rounds                 int
		QuestionTimeoutSeconds int
		AnswerGraceSeconds     int
		PhaseDelaySeconds      int
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis redis.UniversalClient
	}

	service struct {
		questions   *triviaapi.Client
		lobby       *lobby.Lobby
		leaderboard *leaderboard.Service
		hub         *hub.Hub
	}

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initService() {
	s.service.questions = triviaapi.NewClient(triviaapi.Config{
		BaseURL:  s.c.TriviaAPI.BaseURL,
		PageSize: s.c.TriviaAPI.PageSize,
	})

	opts := game.Options{
		MaxPlayers:      s.c.Game.MaxPlayers,
		Rounds:          s.c.Game.Rounds,
		QuestionTimeout: time.Duration(s.c.Game.QuestionTimeoutSeconds) * time.Second,
		AnswerGrace:     time.Duration(s.c.Game.AnswerGraceSeconds) * time.Second,
		PhaseDelay:      time.Duration(s.c.Game.PhaseDelaySeconds) * time.Second,
	}

	s.service.lobby = lobby.New(lobby.Config{
		NewGame: func() *game.Game {
			return game.New(game.Config{
				Source:   s.service.questions,
				EventBus: s.eb,
				Options:  opts,
			})
		},
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis,
		Prefix:   s.c.Redis.Prefix,
	})

	s.service.hub = hub.New(hub.Config{
		Lobby: s.service.lobby,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	e.GET("/trivia", func(c *gin.Context) {
		s.service.hub.Handle(c.Writer, c.Request)
	})

	e.GET("/games/:game/standings", s.handleGetStandings)
	e.GET("/stats", s.handleGetStats)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) handleGetStandings(c *gin.Context) {
	standings, err := s.service.leaderboard.GetStandings(c.Request.Context(), leaderboard.GetStandingsRequest{
		Game: c.Param("game"),
	})
	if err != nil {
		apperr := apperrors.Convert(err)
		c.JSON(apperr.HTTPStatusCode(), gin.H{"error": apperr.Message})
		return
	}

	c.JSON(http.StatusOK, standings)
}

func (s *Server) handleGetStats(c *gin.Context) {
	waiting, active := s.service.lobby.Stats()
	c.JSON(http.StatusOK, gin.H{
		"waiting_games": waiting,
		"active_games":  active,
	})
}

func (s *Server) Start() {
	ctx := context.TODO()

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	if err := s.infra.redis.Close(); err != nil {
		slog.ErrorContext(ctx, "server: close redis failed", "error", err)
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
