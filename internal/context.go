package internal

import "context"

type ctxKey string

const ContextRequestIDKey ctxKey = "requestID"

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID, ok := ctx.Value(ContextRequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextRequestIDKey, requestID)
}
