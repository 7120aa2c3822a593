// Package logger provides structured logging for the embedding client and
// the tools built on it.
//
// # Architecture
//
// This package follows the "accept interfaces, return structs" design pattern:
//   - Logger interface: Defines the contract for logging operations
//   - LoggerClient struct: Concrete implementation of the Logger interface
//   - NewLoggerClient constructor: Returns *LoggerClient (concrete type)
//   - FX module: Provides both *LoggerClient and Logger interface for dependency injection
//
// Core Features:
//   - Structured logging with key-value pairs
//   - Support for multiple log levels (Debug, Info, Warn, Error, Fatal)
//   - Context-aware logging with automatic trace_id / span_id extraction
//   - JSON output on stderr
//
// # Direct Usage (Without FX)
//
//	import "github.com/Aleph-Alpha/endpoint-embeddings/v1/logger"
//
//	log := logger.NewLoggerClient(logger.Config{
//		Level:         "info",
//		EnableTracing: true,
//	})
//
//	log.Info("Embedding client ready", nil, map[string]interface{}{
//		"endpoint": "https://embed.example.com/v1/embeddings",
//	})
//
//	log.InfoWithContext(ctx, "Embedding documents", nil, map[string]interface{}{
//		"inputs": 12,
//	})
//
// # FX Module Integration
//
//	app := fx.New(
//		fx.Provide(logger.NewConfig),
//		logger.FXModule, // Provides *LoggerClient and logger.Logger
//		fx.Invoke(func(log logger.Logger) {
//			log.Info("Service started", nil, nil)
//		}),
//	)
//
// # Configuration
//
//	ZAP_LOGGER_LEVEL=debug          # debug, info, warning, error
//	LOGGER_ENABLE_TRACING=true      # add trace_id / span_id to *WithContext entries
//	LOGGER_SERVICE_NAME=embed-cli   # value of the "service" field
//
// # Thread Safety
//
// All methods on the Logger interface are safe for concurrent use by multiple
// goroutines.
package logger
