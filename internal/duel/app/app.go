// Package app composes the duel daemon: challenge and ledger storage, the
// in-process change feed, the challenge service, and a gRPC server exposing
// health. The duel lifecycle itself is a library surface consumed by the
// surrounding application; the daemon hosts it and its storage.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/laurable26/todogame-duels/internal/duel/feed"
	"github.com/laurable26/todogame-duels/internal/duel/service"
	duelsqlite "github.com/laurable26/todogame-duels/internal/duel/storage/sqlite"
	ledgersqlite "github.com/laurable26/todogame-duels/internal/ledger/sqlite"
	"github.com/laurable26/todogame-duels/internal/notify"
	"github.com/laurable26/todogame-duels/internal/telemetry"
)

// Config holds duel daemon configuration.
type Config struct {
	GRPCAddr     string
	DuelDBPath   string
	LedgerDBPath string
}

// Server hosts the duel daemon.
type Server struct {
	listener    net.Listener
	grpcServer  *grpc.Server
	health      *health.Server
	duelStore   *duelsqlite.Store
	ledgerStore *ledgersqlite.Store
	broker      *feed.Broker
	service     *service.Service
}

// New creates a configured duel daemon listening on the configured address.
func New(cfg Config) (*Server, error) {
	listener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err)
	}

	duelStore, err := openDuelStore(cfg.DuelDBPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}
	ledgerStore, err := openLedgerStore(cfg.LedgerDBPath)
	if err != nil {
		_ = listener.Close()
		_ = duelStore.Close()
		return nil, err
	}

	broker := feed.NewBroker()
	store := feed.WrapStore(duelStore, broker)
	emitter := telemetry.NewEmitter(duelStore)
	svc := service.NewService(store, ledgerStore, notify.LogNotifier{}, emitter)

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		listener:    listener,
		grpcServer:  grpcServer,
		health:      healthServer,
		duelStore:   duelStore,
		ledgerStore: ledgerStore,
		broker:      broker,
		service:     svc,
	}, nil
}

// Addr returns the listener address for the duel daemon.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Service exposes the challenge service hosted by this daemon.
func (s *Server) Service() *service.Service {
	return s.service
}

// Feed exposes the daemon's change feed for coordinator subscriptions.
func (s *Server) Feed() *feed.Broker {
	return s.broker
}

// Run creates and serves a duel daemon until the context ends.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the daemon and blocks until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.closeStores()

	log.Printf("duel daemon listening at %v", s.listener.Addr())

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := s.grpcServer.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		if s.health != nil {
			s.health.Shutdown()
		}
		s.grpcServer.GracefulStop()
		return nil
	})
	return group.Wait()
}

func openDuelStore(path string) (*duelsqlite.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join("data", "duels.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := duelsqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open duel sqlite store: %w", err)
	}
	return store, nil
}

func openLedgerStore(path string) (*ledgersqlite.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join("data", "ledger.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := ledgersqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger sqlite store: %w", err)
	}
	return store, nil
}

func (s *Server) closeStores() {
	if s == nil {
		return
	}
	if s.duelStore != nil {
		if err := s.duelStore.Close(); err != nil {
			log.Printf("close duel store: %v", err)
		}
	}
	if s.ledgerStore != nil {
		if err := s.ledgerStore.Close(); err != nil {
			log.Printf("close ledger store: %v", err)
		}
	}
}
