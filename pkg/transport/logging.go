package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/remedy/pkg/api"
)

// Logging returns middleware that emits structured log entries for each
// repair request. The log entry includes the request ID (from context),
// the submitted source size, the attempt budget, the delivery mode, and
// whether the request succeeded or failed.
//
// HTTP method, path and status code are not available at the RepairCreator
// level; the adapter's HTTP middleware logs those.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next RepairCreator) RepairCreator {
		return RepairCreatorFunc(func(ctx context.Context, req *api.RepairRequest, w ProgressWriter) error {
			start := time.Now()
			requestID := RequestIDFromContext(ctx)

			err := next.CreateRepair(ctx, req, w)

			attrs := []slog.Attr{
				slog.String("request_id", requestID),
				slog.Int("code_bytes", len(req.Code)),
				slog.Int("max_retries", req.MaxRetries),
				slog.Bool("stream", req.Stream),
				slog.Duration("duration", time.Since(start)),
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "repair failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "repair completed", attrs...)
			}

			return err
		})
	}
}
