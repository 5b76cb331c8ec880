package content

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/google/uuid"
)

type Middleware func(ContentService) ContentService

func LoggingMiddleware(logger log.Logger) Middleware {
	return func(next ContentService) ContentService {
		return logmw{logger, next}
	}
}

type logmw struct {
	logger log.Logger
	next   ContentService
}

func UUIDMiddleware(next ContentService) ContentService {
	return uuidmw{next}
}

type uuidmw struct {
	next ContentService
}

type uuidContextKeyType struct{}

var uuidContextKey = uuidContextKeyType{}

func newUUIDContext(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, uuidContextKey, v)
}

func uuidFromContext(ctx context.Context) string {
	v, _ := ctx.Value(uuidContextKey).(string)
	return v
}

func newRequestUUID() string {
	return uuid.New().String()
}
