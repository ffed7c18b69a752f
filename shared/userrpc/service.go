// Package userrpc exposes the access-key lookup to other services over gRPC.
//
// The service uses protobuf well-known types, so no generated code is needed:
// the request is a StringValue holding the access key and the response is a
// Struct holding the user record.
package userrpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/waterbird-i/wbapi-backend/shared/models"
)

const (
	ServiceName         = "wbapi.user.v1.InnerUserService"
	MethodGetInvokeUser = "/" + ServiceName + "/GetInvokeUser"
)

type InnerUserServer interface {
	GetInvokeUser(ctx context.Context, accessKey *wrapperspb.StringValue) (*structpb.Struct, error)
}

var innerUserServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InnerUserServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetInvokeUser", Handler: getInvokeUserHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "wbapi/user/v1/inner_user.proto",
}

func RegisterInnerUserServer(s grpc.ServiceRegistrar, srv InnerUserServer) {
	s.RegisterService(&innerUserServiceDesc, srv)
}

func getInvokeUserHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InnerUserServer).GetInvokeUser(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetInvokeUser}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InnerUserServer).GetInvokeUser(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// userToStruct encodes everything but the password digest.
func userToStruct(u *models.User) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"id":          float64(u.ID),
		"userAccount": u.UserAccount,
		"userName":    u.UserName,
		"userAvatar":  u.UserAvatar,
		"email":       u.Email,
		"userRole":    string(u.UserRole),
		"accessKey":   u.AccessKey,
		"secretKey":   u.SecretKey,
		"createTime":  u.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updateTime":  u.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
}

func structToUser(s *structpb.Struct) *models.User {
	f := s.GetFields()
	str := func(key string) string { return f[key].GetStringValue() }
	u := &models.User{
		ID:          int64(f["id"].GetNumberValue()),
		UserAccount: str("userAccount"),
		UserName:    str("userName"),
		UserAvatar:  str("userAvatar"),
		Email:       str("email"),
		UserRole:    models.Role(str("userRole")),
		AccessKey:   str("accessKey"),
		SecretKey:   str("secretKey"),
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, str("createTime"))
	u.UpdatedAt, _ = time.Parse(time.RFC3339Nano, str("updateTime"))
	return u
}
