package control

import (
	"context"
	"errors"
	"net"

	"github.com/dmitrijs2005/gophenroll/internal/batch"
	"github.com/dmitrijs2005/gophenroll/internal/common"
	"github.com/dmitrijs2005/gophenroll/internal/logging"
	"github.com/dmitrijs2005/gophenroll/internal/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Runner is the part of *batch.Runner the control API drives.
type Runner interface {
	Start(ctx context.Context, ids []string, concurrency int) (string, error)
	Resume(ctx context.Context, ids []string, concurrency int) (string, error)
	Stop(taskID string) error
	Status(taskID string) (batch.Snapshot, error)
	Forget(taskID string) error
}

// AccountLister lists every imported account id.
type AccountLister interface {
	IDs(ctx context.Context) ([]string, error)
}

// QuotaSource reports the verification quota. Live may be nil when no API
// key is configured; Stored returns (nil, nil) before the first batch.
type QuotaSource struct {
	Live   func(ctx context.Context) (models.Quota, error)
	Stored func(ctx context.Context) (*models.Quota, error)
}

type Server struct {
	address            string
	runner             Runner
	accounts           AccountLister
	quota              QuotaSource
	defaultConcurrency int
	logger             logging.Logger
}

func NewServer(address string, runner Runner, accounts AccountLister, quota QuotaSource, defaultConcurrency int, l logging.Logger) *Server {
	return &Server{
		address:            address,
		runner:             runner,
		accounts:           accounts,
		quota:              quota,
		defaultConcurrency: defaultConcurrency,
		logger:             l.With("module", "control"),
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve serves on lis and stops gracefully when ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.recoverInterceptor, s.loggingInterceptor))
	RegisterBatchControlServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "stopping control server")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "starting control server", "address", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// toStatus maps service errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, common.ErrTaskNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, common.ErrEmptyBatch),
		errors.Is(err, common.ErrNothingToResume),
		errors.Is(err, common.ErrInvalidRecord):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrTaskRunning):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func (s *Server) startRequest(ctx context.Context, in *structpb.Struct) ([]string, int, error) {
	req, err := startRequestFrom(in)
	if err != nil {
		return nil, 0, err
	}
	if req.All {
		req.IDs, err = s.accounts.IDs(ctx)
		if err != nil {
			return nil, 0, err
		}
	}
	if req.Concurrency <= 0 {
		req.Concurrency = s.defaultConcurrency
	}
	return req.IDs, req.Concurrency, nil
}

func (s *Server) StartBatch(ctx context.Context, in *structpb.Struct) (*wrapperspb.StringValue, error) {
	ids, n, err := s.startRequest(ctx, in)
	if err != nil {
		return nil, toStatus(err)
	}
	id, err := s.runner.Start(ctx, ids, n)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.String(id), nil
}

func (s *Server) ResumeBatch(ctx context.Context, in *structpb.Struct) (*wrapperspb.StringValue, error) {
	ids, n, err := s.startRequest(ctx, in)
	if err != nil {
		return nil, toStatus(err)
	}
	id, err := s.runner.Resume(ctx, ids, n)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.String(id), nil
}

func (s *Server) StopBatch(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.runner.Stop(in.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) ForgetBatch(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.runner.Forget(in.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) BatchStatus(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	snap, err := s.runner.Status(in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := snapshotToStruct(snap)
	if err != nil {
		return nil, toStatus(err)
	}
	return out, nil
}

// Quota returns the live quota, or the last stored snapshot when the
// service cannot be asked.
func (s *Server) Quota(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	var rep QuotaReport
	if s.quota.Live != nil {
		q, err := s.quota.Live(ctx)
		if err == nil {
			rep = QuotaReport{Quota: q, Live: true}
			return s.quotaStruct(rep)
		}
		s.logger.Warn(ctx, "live quota unavailable, using stored snapshot", "error", err)
		rep.Error = err.Error()
	}

	if s.quota.Stored != nil {
		q, err := s.quota.Stored(ctx)
		if err != nil {
			return nil, toStatus(err)
		}
		if q != nil {
			rep.Quota = *q
		}
	}
	return s.quotaStruct(rep)
}

func (s *Server) quotaStruct(rep QuotaReport) (*structpb.Struct, error) {
	out, err := quotaToStruct(rep)
	if err != nil {
		return nil, toStatus(err)
	}
	return out, nil
}
