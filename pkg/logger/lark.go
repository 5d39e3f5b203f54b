package logger

import (
	"context"
	"fmt"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
)

// larkLogger routes Lark SDK log lines into the shared sink under the "lark-sdk" component.
type larkLogger struct{}

// LarkAdapter returns a larkcore.Logger backed by this package.
func LarkAdapter() larkcore.Logger { return larkLogger{} }

func (larkLogger) Debug(_ context.Context, args ...interface{}) {
	logf(DEBUG, "lark-sdk", fmt.Sprint(args...), nil)
}

func (larkLogger) Info(_ context.Context, args ...interface{}) {
	logf(INFO, "lark-sdk", fmt.Sprint(args...), nil)
}

func (larkLogger) Warn(_ context.Context, args ...interface{}) {
	logf(WARN, "lark-sdk", fmt.Sprint(args...), nil)
}

func (larkLogger) Error(_ context.Context, args ...interface{}) {
	logf(ERROR, "lark-sdk", fmt.Sprint(args...), nil)
}

// LarkLevel converts the current level to the SDK's level enum.
func LarkLevel() larkcore.LogLevel {
	switch GetLevel() {
	case DEBUG:
		return larkcore.LogLevelDebug
	case WARN:
		return larkcore.LogLevelWarn
	case ERROR:
		return larkcore.LogLevelError
	default:
		return larkcore.LogLevelInfo
	}
}

var _ larkcore.Logger = larkLogger{}
