package grpcserver

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"GoEventLogger/internal/event"
)

// Client 事件接入服务客户端
type Client struct {
	conn *grpc.ClientConn
	own  bool
}

// Dial 创建到 target 的客户端（明文连接）
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", target, err)
	}
	return &Client{conn: conn, own: true}, nil
}

// NewClient 基于已有连接创建客户端，Close 不会关闭该连接
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Record 发送一个事件并返回服务端的记录结果
func (c *Client) Record(ctx context.Context, ev *event.Event, opts ...grpc.CallOption) (RecordResult, error) {
	req, err := EncodeEvent(ev)
	if err != nil {
		return RecordResult{}, err
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, RecordMethod, req, resp, opts...); err != nil {
		return RecordResult{}, err
	}
	return DecodeResult(resp), nil
}

// WithRequestID 在调用上下文中附加请求ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, RequestIDHeader, requestID)
}

// Close 关闭客户端
func (c *Client) Close() error {
	if !c.own {
		return nil
	}
	return c.conn.Close()
}
