package ctxutil

import (
	"context"

	"github.com/yungbote/exampaper-backend/internal/domain/identity"
)

type requestDataKey struct{}

// RequestData is attached by the auth middleware once a bearer token is verified.
type RequestData struct {
	TokenString string
	Caller      identity.Caller
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(Default(ctx), requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if ctx == nil {
		return nil
	}
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		return rd
	}
	return nil
}

// CallerFrom returns the resolved caller, or the zero Caller when the request is anonymous.
func CallerFrom(ctx context.Context) identity.Caller {
	rd := GetRequestData(ctx)
	if rd == nil {
		return identity.Caller{}
	}
	return rd.Caller
}
