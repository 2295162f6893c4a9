// Package server assembles the HTTP router and the gRPC health endpoint.
package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthhandler "storefront/backend/internal/health/handler"
)

// RegisterServices registers the gRPC services with s. Only grpc.health.v1.Health is served;
// reflection is added so grpcurl and grpc_health_probe can discover it.
func RegisterServices(s grpc.ServiceRegistrar, checker *healthhandler.Checker) {
	healthpb.RegisterHealthServer(s, healthhandler.NewServer(checker))
	if rs, ok := s.(reflection.GRPCServer); ok {
		reflection.Register(rs)
	}
}

// NewGRPCServer returns a gRPC server with otel instrumentation and the health service registered.
func NewGRPCServer(checker *healthhandler.Checker) *grpc.Server {
	s := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	RegisterServices(s, checker)
	return s
}
