// Package admin runs the operator-facing gRPC server: standard health
// checking tied to database reachability, plus server reflection.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/ashureev/promptlab/internal/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// ServiceName is the health service reported alongside the overall status.
const ServiceName = "promptlab"

const (
	defaultCheckInterval = 15 * time.Second
	pingTimeout          = 5 * time.Second
)

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	// CheckInterval is how often the database is pinged.
	CheckInterval time.Duration
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

// Server is the admin gRPC server.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	db       Pinger
	interval time.Duration
	logger   *slog.Logger
}

// New creates the server. db may be nil, in which case the server always
// reports SERVING.
func New(db Pinger, opts Options) *Server {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = defaultCheckInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(MetricsInterceptor(opts.Metrics, opts.Logger)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	return &Server{
		grpc:     gs,
		health:   hs,
		db:       db,
		interval: opts.CheckInterval,
		logger:   opts.Logger,
	}
}

// Serve accepts connections on lis until ctx is cancelled, then stops
// gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.CheckNow(ctx)

	go s.watch(ctx)
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("Admin gRPC server listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// CheckNow pings the database once and updates the serving status.
func (s *Server) CheckNow(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if s.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := s.db.Ping(pingCtx)
		cancel()
		if err != nil {
			s.logger.Warn("Database ping failed", "error", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
	return st
}

func (s *Server) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckNow(ctx)
		}
	}
}

// MetricsInterceptor records the duration and status code of each unary call.
func MetricsInterceptor(m *metrics.Metrics, logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(start)

		code := status.Code(err).String()
		m.RecordGrpcRequest(info.FullMethod, code, duration)
		logger.Debug("gRPC request", "method", info.FullMethod, "code", code, "duration", duration)
		return resp, err
	}
}
