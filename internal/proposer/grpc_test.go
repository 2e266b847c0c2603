package proposer

import (
	"context"
	"errors"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

// startProposer serves ProposeAction on an in-memory listener using handle.
func startProposer(t *testing.T, handle func(req *structpb.Struct) (*structpb.Struct, error)) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)

	srv := grpc.NewServer(grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
		method, _ := grpc.MethodFromServerStream(stream)
		if method != ProposeActionMethod {
			return status.Errorf(codes.Unimplemented, "unknown method %s", method)
		}
		req := new(structpb.Struct)
		if err := stream.RecvMsg(req); err != nil {
			return err
		}
		resp, err := handle(req)
		if err != nil {
			return err
		}
		return stream.SendMsg(resp)
	}))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestGRPCClient_Propose(t *testing.T) {
	var received map[string]any
	conn := startProposer(t, func(req *structpb.Struct) (*structpb.Struct, error) {
		received = req.AsMap()
		return structpb.NewStruct(map[string]any{
			"action_type":   "ADD_FIREWALL_RULE",
			"target":        "edge-fw",
			"risk_level":    "medium",
			"justification": "block 198.51.100.4",
			"preconditions": []any{
				map[string]any{"name": "ioc", "source": "NDR", "confidence": 0.85},
			},
		})
	})

	c := NewGRPCClientWithConn(conn)
	cand, err := c.Propose(context.Background(), LogRecord{
		ID:      "log-9",
		Source:  "ndr",
		Payload: map[string]any{"dst_ip": "198.51.100.4", "bytes": float64(4096)},
	})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if received["id"] != "log-9" || received["source"] != "ndr" {
		t.Errorf("server received %v", received)
	}
	payload, _ := received["payload"].(map[string]any)
	if payload["dst_ip"] != "198.51.100.4" || payload["bytes"] != float64(4096) {
		t.Errorf("payload not forwarded: %v", payload)
	}
	if cand.ActionType != "ADD_FIREWALL_RULE" || cand.RiskLevel != "MEDIUM" {
		t.Errorf("unexpected candidate %+v", cand)
	}
	if len(cand.Preconditions) != 1 || cand.Preconditions[0].Confidence != 0.85 {
		t.Errorf("preconditions lost: %+v", cand.Preconditions)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close on borrowed conn: %v", err)
	}
}

func TestGRPCClient_Errors(t *testing.T) {
	conn := startProposer(t, func(req *structpb.Struct) (*structpb.Struct, error) {
		if req.AsMap()["id"] == "fail" {
			return nil, status.Error(codes.Unavailable, "model offline")
		}
		return structpb.NewStruct(map[string]any{"action_type": "X"})
	})
	c := NewGRPCClientWithConn(conn)

	_, err := c.Propose(context.Background(), LogRecord{ID: "fail"})
	if status.Code(errors.Unwrap(err)) != codes.Unavailable {
		t.Errorf("expected Unavailable, got %v", err)
	}

	_, err = c.Propose(context.Background(), LogRecord{ID: "bad"})
	if !errors.Is(err, ErrUnusable) {
		t.Errorf("expected ErrUnusable, got %v", err)
	}
}
