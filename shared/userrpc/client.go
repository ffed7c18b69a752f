package userrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/waterbird-i/wbapi-backend/shared/apperr"
	"github.com/waterbird-i/wbapi-backend/shared/models"
)

// Client calls InnerUserService. It is safe for concurrent use.
type Client struct {
	conn grpc.ClientConnInterface
	own  *grpc.ClientConn
}

// Dial connects to target without transport security; the service is internal.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client: %w", err)
	}
	return &Client{conn: conn, own: conn}, nil
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) Close() error {
	if c.own == nil {
		return nil
	}
	return c.own.Close()
}

// GetInvokeUser returns (nil, nil) when no user holds accessKey.
func (c *Client) GetInvokeUser(ctx context.Context, accessKey string) (*models.User, error) {
	out := new(structpb.Struct)
	err := c.conn.Invoke(ctx, MethodGetInvokeUser, wrapperspb.String(accessKey), out)
	if err != nil {
		st, _ := status.FromError(err)
		switch st.Code() {
		case codes.NotFound:
			return nil, nil
		case codes.InvalidArgument:
			return nil, apperr.Params(st.Message())
		default:
			return nil, fmt.Errorf("invoke user lookup: %w", err)
		}
	}
	return structToUser(out), nil
}
