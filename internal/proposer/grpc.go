package proposer

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gzhole/agentlock/internal/action"
)

// ProposeActionMethod is the full gRPC method name served by proposers.
// Request and response are google.protobuf.Struct: the request mirrors
// LogRecord, the response is the candidate object.
const ProposeActionMethod = "/agentlock.v1.Proposer/ProposeAction"

// GRPCClient calls a proposer over gRPC.
type GRPCClient struct {
	conn    *grpc.ClientConn
	invoker grpc.ClientConnInterface
}

// NewGRPCClient connects to a proposer at addr.
func NewGRPCClient(addr string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn, invoker: conn}, nil
}

// NewGRPCClientWithConn wraps an existing connection. The caller keeps
// ownership of it.
func NewGRPCClientWithConn(cc grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{invoker: cc}
}

// Close shuts down a connection opened by NewGRPCClient.
func (c *GRPCClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *GRPCClient) Propose(ctx context.Context, rec LogRecord) (*action.Candidate, error) {
	payload := rec.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	req, err := structpb.NewStruct(map[string]any{
		"id":      rec.ID,
		"source":  rec.Source,
		"payload": payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encode log record: %w", err)
	}

	resp := new(structpb.Struct)
	if err := c.invoker.Invoke(ctx, ProposeActionMethod, req, resp); err != nil {
		return nil, fmt.Errorf("propose rpc: %w", err)
	}

	cand, err := action.FromMap(resp.AsMap())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnusable, err)
	}
	return cand, nil
}
