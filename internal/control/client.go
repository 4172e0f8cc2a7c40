package control

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophenroll/internal/batch"
	"github.com/dmitrijs2005/gophenroll/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls the batch-control service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for addr. The connection is established lazily.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return mapError(c.conn.Invoke(ctx, fullMethod(method), in, out))
}

// mapError turns gRPC statuses back into the service's sentinel errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	var sentinel error
	switch st.Code() {
	case codes.NotFound:
		sentinel = common.ErrTaskNotFound
	case codes.InvalidArgument:
		for _, e := range []error{common.ErrNothingToResume, common.ErrEmptyBatch, common.ErrInvalidRecord} {
			if strings.Contains(st.Message(), e.Error()) {
				sentinel = e
				break
			}
		}
	case codes.FailedPrecondition:
		sentinel = common.ErrTaskRunning
	case codes.Unavailable, codes.DeadlineExceeded:
		sentinel = common.ErrUnavailable
	}
	if sentinel == nil {
		return fmt.Errorf("rpc error: %w", err)
	}
	if errors.Is(sentinel, common.ErrUnavailable) {
		return fmt.Errorf("%w: %s", sentinel, st.Message())
	}
	return fmt.Errorf("%w (%s)", sentinel, st.Message())
}

func (c *Client) start(ctx context.Context, method string, req StartRequest) (string, error) {
	in, err := req.toStruct()
	if err != nil {
		return "", err
	}
	out := &wrapperspb.StringValue{}
	if err := c.invoke(ctx, method, in, out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

func (c *Client) StartBatch(ctx context.Context, req StartRequest) (string, error) {
	return c.start(ctx, "StartBatch", req)
}

func (c *Client) ResumeBatch(ctx context.Context, req StartRequest) (string, error) {
	return c.start(ctx, "ResumeBatch", req)
}

func (c *Client) StopBatch(ctx context.Context, taskID string) error {
	return c.invoke(ctx, "StopBatch", wrapperspb.String(taskID), &emptypb.Empty{})
}

func (c *Client) ForgetBatch(ctx context.Context, taskID string) error {
	return c.invoke(ctx, "ForgetBatch", wrapperspb.String(taskID), &emptypb.Empty{})
}

func (c *Client) BatchStatus(ctx context.Context, taskID string) (batch.Snapshot, error) {
	out := &structpb.Struct{}
	if err := c.invoke(ctx, "BatchStatus", wrapperspb.String(taskID), out); err != nil {
		return batch.Snapshot{}, err
	}
	return SnapshotFromStruct(out), nil
}

func (c *Client) Quota(ctx context.Context) (QuotaReport, error) {
	out := &structpb.Struct{}
	if err := c.invoke(ctx, "Quota", &emptypb.Empty{}, out); err != nil {
		return QuotaReport{}, err
	}
	return QuotaFromStruct(out), nil
}
