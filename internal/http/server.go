package httpapi

import (
	"log/slog"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/carpool/internal/booking"
	"github.com/example/carpool/internal/config"
	"github.com/example/carpool/internal/demand"
	"github.com/example/carpool/internal/geo"
	"github.com/example/carpool/internal/matcher"
	"github.com/example/carpool/internal/notify"
	"github.com/example/carpool/internal/scoring"
	"github.com/example/carpool/internal/storage"
)

// Server owns the router and the workflow collaborators behind it.
type Server struct {
	cfg     config.ServerConfig
	logger  *slog.Logger
	repo    storage.Repository
	booking *booking.Workflow
	demand  *demand.Workflow
	matcher *matcher.Service
	wsreg   *notify.WSRegistry
	mux     *mux.Router
}

// New wires the server from configuration with sensible fallbacks: the
// in-memory store without PG_DSN, a repository scan without REDIS_ADDR,
// and no event log without KAFKA_BROKERS.
func New(cfg config.ServerConfig, logger *slog.Logger) (*Server, error) {
	var repo storage.Repository
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		repo = ps
	} else {
		repo = storage.NewMemoryStore()
	}

	var index geo.CandidateIndex
	if cfg.RedisAddr != "" {
		index = geo.NewRedisIndex(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	}

	wsreg := notify.NewWSRegistry(logger)
	sinks := notify.Fanout{wsreg}
	if len(cfg.KafkaBrokers) > 0 {
		sinks = append(sinks, notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic))
	}

	var routes geo.RouteClient
	if cfg.OSRMEndpoint != "" {
		routes = geo.NewOSRMClient(cfg.OSRMEndpoint)
	}

	scoringCfg, err := config.LoadScoringConfig(cfg.ScoringFile)
	if err != nil {
		return nil, err
	}

	return NewWithDeps(cfg, logger, Deps{
		Repo:     repo,
		Index:    index,
		Notifier: sinks,
		WSReg:    wsreg,
		Routes:   routes,
		Scoring:  scoringCfg,
	}), nil
}

// Deps carries the collaborators for explicit construction in tests.
type Deps struct {
	Repo     storage.Repository
	Index    geo.CandidateIndex
	Notifier notify.Notifier
	WSReg    *notify.WSRegistry
	Routes   geo.RouteClient
	Scoring  scoring.Config
}

func NewWithDeps(cfg config.ServerConfig, logger *slog.Logger, d Deps) *Server {
	if d.WSReg == nil {
		d.WSReg = notify.NewWSRegistry(logger)
	}
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	s := &Server{
		cfg:    cfg,
		logger: logger,
		repo:   d.Repo,
		booking: &booking.Workflow{
			Repo:     d.Repo,
			Notifier: d.Notifier,
			Routes:   d.Routes,
			Logger:   logger,
		},
		demand: &demand.Workflow{
			Repo:     d.Repo,
			Notifier: d.Notifier,
			Logger:   logger,
		},
		matcher: &matcher.Service{
			Repo:           d.Repo,
			Index:          d.Index,
			Scoring:        d.Scoring,
			Stats:          matcher.NewStatsCache(30 * time.Second),
			SearchRadiusKm: cfg.SearchRadiusKm,
			TopN:           cfg.MatcherTopN,
		},
		wsreg: d.WSReg,
		mux:   mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}
