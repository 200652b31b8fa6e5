package comm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	hubServiceName = "collbench.v1.Hub"
	exchangeMethod = "/" + hubServiceName + "/Exchange"
	abortMethod    = "/" + hubServiceName + "/Abort"

	maxMessageSize = math.MaxInt32
	abortTimeout   = 5 * time.Second
	stopTimeout    = 10 * time.Second
)

// hubService is the server side of the Hub RPC service.
type hubService interface {
	exchange(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	abort(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error)
}

var hubServiceDesc = grpc.ServiceDesc{
	ServiceName: hubServiceName,
	HandlerType: (*hubService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Exchange", Handler: exchangeHandler},
		{MethodName: "Abort", Handler: abortHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "collbench/v1/hub.proto",
}

func exchangeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(hubService).exchange(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: exchangeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(hubService).exchange(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func abortHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(hubService).abort(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: abortMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(hubService).abort(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

type hubServer struct {
	hub *Hub
}

func (s *hubServer) exchange(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	h, err := decodeHeader(md)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if h.size != s.hub.Size() {
		return nil, status.Errorf(codes.FailedPrecondition, "rank %d expects a group of %d, coordinator hosts %d", h.rank, h.size, s.hub.Size())
	}
	if h.rank == 0 {
		return nil, status.Error(codes.InvalidArgument, "rank 0 is hosted by the coordinator")
	}

	rep, err := s.hub.Contribute(ctx, h.seq, h.rank, contribution{
		kind:    h.kind,
		payload: req.GetValue(),
		value:   h.value,
		op:      h.op,
		root:    h.root,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	if rep.hasValue {
		if err := grpc.SetHeader(ctx, metadata.Pairs(mdValue, formatValue(rep.value))); err != nil {
			return nil, status.Errorf(codes.Internal, "set reduce header: %v", err)
		}
	}
	return wrapperspb.Bytes(encodeParts(rep.parts)), nil
}

func (s *hubServer) abort(_ context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	s.hub.Abort(errors.New(req.GetValue()))
	return &emptypb.Empty{}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, ErrAborted):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, ErrProtocol):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Aborted:
		return fmt.Errorf("%w: %s", ErrAborted, strings.TrimPrefix(st.Message(), ErrAborted.Error()+": "))
	case codes.FailedPrecondition, codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrProtocol, strings.TrimPrefix(st.Message(), ErrProtocol.Error()+": "))
	default:
		return err
	}
}

// Coordinator hosts the Hub of a distributed group and acts as its rank 0.
type Coordinator struct {
	hub *Hub
	srv *grpc.Server
	lis net.Listener

	serveErr chan error
	stopOnce sync.Once
}

// Listen starts a Coordinator for a group of size ranks on a TCP address.
func Listen(addr string, size int, opts ...grpc.ServerOption) (*Coordinator, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	c, err := Serve(lis, size, opts...)
	if err != nil {
		lis.Close()
		return nil, err
	}
	return c, nil
}

// Serve starts a Coordinator for a group of size ranks on lis.
func Serve(lis net.Listener, size int, opts ...grpc.ServerOption) (*Coordinator, error) {
	if size < 1 {
		return nil, fmt.Errorf("group size must be >= 1, got %d", size)
	}
	base := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(maxMessageSize),
		grpc.MaxSendMsgSize(maxMessageSize),
	}
	srv := grpc.NewServer(append(base, opts...)...)
	hub := NewHub(size)
	srv.RegisterService(&hubServiceDesc, &hubServer{hub: hub})

	c := &Coordinator{
		hub:      hub,
		srv:      srv,
		lis:      lis,
		serveErr: make(chan error, 1),
	}
	go func() {
		c.serveErr <- srv.Serve(lis)
	}()
	return c, nil
}

// Addr returns the address the coordinator listens on.
func (c *Coordinator) Addr() net.Addr {
	return c.lis.Addr()
}

// Hub returns the hub shared by every rank of the group.
func (c *Coordinator) Hub() *Hub {
	return c.hub
}

// Endpoint returns rank 0's Communicator. Closing it stops the server.
func (c *Coordinator) Endpoint() Communicator {
	return newEndpoint(0, c.hub.Size(), coordinatorExchanger{hubExchanger: hubExchanger{hub: c.hub}, c: c})
}

// Stop shuts the server down, waiting up to a bounded time for in-flight
// exchanges when the group is healthy.
func (c *Coordinator) Stop() error {
	var err error
	c.stopOnce.Do(func() {
		if c.hub.Err() != nil {
			c.srv.Stop()
		} else {
			done := make(chan struct{})
			go func() {
				c.srv.GracefulStop()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(stopTimeout):
				c.srv.Stop()
			}
		}
		if serveErr := <-c.serveErr; serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			err = fmt.Errorf("serve: %w", serveErr)
		}
	})
	return err
}

type coordinatorExchanger struct {
	hubExchanger
	c *Coordinator
}

func (x coordinatorExchanger) close() error {
	return x.c.Stop()
}

// Dial joins the group hosted by the coordinator at target as rank. It waits
// for the connection to become ready until ctx is done.
func Dial(ctx context.Context, target string, rank, size int, opts ...grpc.DialOption) (Communicator, error) {
	if size < 2 {
		return nil, fmt.Errorf("group size must be >= 2 to dial a coordinator, got %d", size)
	}
	if rank < 1 || rank >= size {
		return nil, fmt.Errorf("rank %d outside [1, %d)", rank, size)
	}
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMessageSize),
			grpc.MaxCallSendMsgSize(maxMessageSize),
		),
	}
	conn, err := grpc.NewClient(target, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create client for %s: %w", target, err)
	}

	conn.Connect()
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			break
		}
		if !conn.WaitForStateChange(ctx, state) {
			conn.Close()
			return nil, fmt.Errorf("connect to coordinator %s (last state %s): %w", target, state, ctx.Err())
		}
	}
	return newEndpoint(rank, size, &remoteExchanger{conn: conn, size: size}), nil
}

type remoteExchanger struct {
	conn *grpc.ClientConn
	size int
}

func (r *remoteExchanger) exchange(ctx context.Context, seq uint64, rank int, c contribution) (reply, error) {
	h := callHeader{rank: rank, size: r.size, seq: seq, kind: c.kind, op: c.op, root: c.root, value: c.value}
	ctx = metadata.AppendToOutgoingContext(ctx, h.pairs()...)

	var header metadata.MD
	resp := new(wrapperspb.BytesValue)
	err := r.conn.Invoke(ctx, exchangeMethod, wrapperspb.Bytes(c.payload), resp,
		grpc.WaitForReady(true), grpc.Header(&header))
	if err != nil {
		return reply{}, fromStatus(err)
	}

	parts, err := decodeParts(resp.GetValue())
	if err != nil {
		return reply{}, err
	}
	rep := reply{parts: parts}
	if vals := header.Get(mdValue); len(vals) > 0 {
		v, err := strconv.ParseFloat(vals[0], 64)
		if err != nil {
			return reply{}, fmt.Errorf("%w: reduce value %q: %v", ErrProtocol, vals[0], err)
		}
		rep.value, rep.hasValue = v, true
	}
	return rep, nil
}

func (r *remoteExchanger) abort(reason error) {
	ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
	defer cancel()
	// The coordinator may already be gone; nothing else to notify.
	_ = r.conn.Invoke(ctx, abortMethod, wrapperspb.String(reason.Error()), new(emptypb.Empty))
}

func (r *remoteExchanger) close() error {
	return r.conn.Close()
}
