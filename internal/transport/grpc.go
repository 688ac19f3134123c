package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"

	"github.com/stampede-load/stampede/internal/tracing"
)

// GRPCOptions describe the unary method a gRPC requester invokes. The
// request body of each step is decoded as JSON into the method's input
// message.
type GRPCOptions struct {
	ProtoFile string
	Service   string
	Method    string
	Timeout   time.Duration
	UseTLS    bool
	Insecure  bool
	Tracing   *tracing.Provider
}

// GRPCRequester invokes a single unary gRPC method described by a .proto
// file. Connections are shared per target and reused across virtual users.
type GRPCRequester struct {
	opts   GRPCOptions
	tracer *tracing.Provider

	methodOnce sync.Once
	methodDesc *desc.MethodDescriptor
	methodErr  error

	conns sync.Map // map[string]*grpc.ClientConn
}

func NewGRPCRequester(opts GRPCOptions) *GRPCRequester {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &GRPCRequester{opts: opts, tracer: opts.Tracing}
}

func (g *GRPCRequester) Do(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	methodDesc, err := g.methodDescriptor()
	if err != nil {
		return Response{Latency: time.Since(start)}, fmt.Errorf("load proto descriptor: %w", err)
	}

	reqMsg, err := buildDynamicRequest(methodDesc, req.Body)
	if err != nil {
		return Response{Latency: time.Since(start)}, fmt.Errorf("grpc request payload: %w", err)
	}
	respMsg := dynamic.NewMessage(methodDesc.GetOutputType())

	conn, err := g.connFor(req.URL)
	if err != nil {
		return Response{Latency: time.Since(start)}, fmt.Errorf("grpc connect: %w", err)
	}

	md := metadata.New(nil)
	for key, value := range req.Headers {
		trimmed := strings.ToLower(strings.TrimSpace(key))
		if trimmed == "" {
			continue
		}
		md.Set(trimmed, value)
	}

	var span tracing.Span
	if g.tracer != nil && g.tracer.Enabled() {
		ctx, span = g.tracer.StartRequestSpan(ctx, "grpc", g.opts.Service+"/"+g.opts.Method)
		if g.tracer.ShouldPropagate() {
			tracing.InjectGRPCMetadata(ctx, md)
		}
	}
	if len(md) > 0 {
		ctx = metadata.NewOutgoingContext(ctx, md)
	}

	callCtx := ctx
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	fullMethod := fmt.Sprintf("/%s/%s", methodDesc.GetService().GetFullyQualifiedName(), g.opts.Method)
	reqProto := protoadapt.MessageV2Of(reqMsg)
	respProto := protoadapt.MessageV2Of(respMsg)

	err = conn.Invoke(callCtx, fullMethod, reqProto, respProto)
	latency := time.Since(start)

	code := status.Code(err)
	if span != nil {
		tracing.EndSpan(span, err)
	}

	if err != nil {
		return Response{
			StatusCode: httpStatusFromCode(code),
			Latency:    latency,
		}, fmt.Errorf("grpc invoke: %w", err)
	}

	var body []byte
	if b, marshalErr := respMsg.MarshalJSON(); marshalErr == nil {
		body = b
		if len(body) > maxCapturedBody {
			body = body[:maxCapturedBody]
		}
	}

	size := int64(proto.Size(respProto))

	return Response{
		StatusCode: http.StatusOK,
		Body:       body,
		Bytes:      size,
		Latency:    latency,
	}, nil
}

func (g *GRPCRequester) connFor(target string) (*grpc.ClientConn, error) {
	if v, ok := g.conns.Load(target); ok {
		return v.(*grpc.ClientConn), nil
	}

	var opts []grpc.DialOption
	if g.opts.UseTLS {
		if g.opts.Insecure {
			creds := credentials.NewTLS(&tls.Config{InsecureSkipVerify: true})
			opts = append(opts, grpc.WithTransportCredentials(creds))
		} else {
			creds := credentials.NewClientTLSFromCert(nil, "")
			opts = append(opts, grpc.WithTransportCredentials(creds))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	newConn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}

	// Concurrent dials for the same target race; losers are discarded.
	if actual, loaded := g.conns.LoadOrStore(target, newConn); loaded {
		newConn.Close()
		return actual.(*grpc.ClientConn), nil
	}
	return newConn, nil
}

func (g *GRPCRequester) methodDescriptor() (*desc.MethodDescriptor, error) {
	g.methodOnce.Do(func() {
		g.methodDesc, g.methodErr = loadMethodDescriptor(g.opts)
	})
	return g.methodDesc, g.methodErr
}

func loadMethodDescriptor(opts GRPCOptions) (*desc.MethodDescriptor, error) {
	protoPath := strings.TrimSpace(opts.ProtoFile)
	if protoPath == "" {
		return nil, fmt.Errorf("grpc proto file is required")
	}
	parser := protoparse.Parser{
		ImportPaths: []string{filepath.Dir(protoPath)},
	}
	files, err := parser.ParseFiles(filepath.Base(protoPath))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no descriptors parsed from %s", protoPath)
	}
	serviceName := strings.TrimSpace(opts.Service)
	methodName := strings.TrimSpace(opts.Method)
	for _, file := range files {
		for _, svc := range file.GetServices() {
			if matchesServiceName(svc, serviceName) {
				if method := svc.FindMethodByName(methodName); method != nil {
					return method, nil
				}
			}
		}
	}
	return nil, fmt.Errorf("method %s not found in service %s", methodName, serviceName)
}

func matchesServiceName(svc *desc.ServiceDescriptor, target string) bool {
	if target == "" {
		return false
	}
	if svc.GetFullyQualifiedName() == target {
		return true
	}
	return svc.GetName() == target || strings.HasSuffix(target, "."+svc.GetName())
}

func buildDynamicRequest(method *desc.MethodDescriptor, payload []byte) (*dynamic.Message, error) {
	msg := dynamic.NewMessage(method.GetInputType())
	body := strings.TrimSpace(string(payload))
	if body == "" {
		body = "{}"
	}
	if err := msg.UnmarshalJSON([]byte(body)); err != nil {
		return nil, err
	}
	return msg, nil
}

// Close releases all gRPC connections held by the requester.
func (g *GRPCRequester) Close() error {
	g.conns.Range(func(key, value interface{}) bool {
		if conn, ok := value.(*grpc.ClientConn); ok {
			conn.Close()
		}
		return true
	})
	return nil
}

// httpStatusFromCode maps gRPC status codes onto HTTP-equivalent codes so
// gRPC failures land in the same classification buckets as HTTP ones.
func httpStatusFromCode(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Canceled:
		return 499
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
