package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Log is the global logger instance
	Log *zap.Logger
)

// RequestIDKey is the key used to store request ID in context
const RequestIDKey = "request_id"

// Initialize sets up the logger with the specified environment
func Initialize(env string) {
	InitializeWithWriter(env, nil)
}

// InitializeWithWriter sets up the logger with the specified environment and an
// optional extra sink (e.g. a log shipper) in addition to stdout.
func InitializeWithWriter(env string, extraSink io.Writer) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if extraSink != nil {
		jsonEncoder := zapcore.NewJSONEncoder(config.EncoderConfig)
		consoleEncoder := zapcore.NewConsoleEncoder(config.EncoderConfig)

		consoleCore := zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout),
			zap.NewAtomicLevelAt(config.Level.Level()))
		sinkCore := zapcore.NewCore(jsonEncoder, zapcore.AddSync(extraSink),
			zap.NewAtomicLevelAt(config.Level.Level()))

		Log = zap.New(zapcore.NewTee(consoleCore, sinkCore),
			zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
		return
	}

	var err error
	Log, err = config.Build()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
}

// RequestLogger returns a gin middleware that logs request details
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = fmt.Sprintf("%d", time.Now().UnixNano())
		}
		c.Set(RequestIDKey, requestID)

		c.Next()

		latency := time.Since(start)

		Log.Info("Request completed",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", latency),
		)
	}
}

// Error logs an error with request ID and additional context
func Error(ctx context.Context, msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("request_id", getRequestID(ctx)))
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	Log.Error(msg, fields...)
}

// Info logs an info message with request ID and additional context
func Info(ctx context.Context, msg string, fields ...zap.Field) {
	fields = append(fields, zap.String("request_id", getRequestID(ctx)))
	Log.Info(msg, fields...)
}

// Warn logs a warning message with request ID and additional context
func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	fields = append(fields, zap.String("request_id", getRequestID(ctx)))
	Log.Warn(msg, fields...)
}

func getRequestID(ctx context.Context) string {
	if ginCtx, ok := ctx.(*gin.Context); ok {
		if requestID, exists := ginCtx.Get(RequestIDKey); exists {
			return requestID.(string)
		}
	}
	return "unknown"
}
