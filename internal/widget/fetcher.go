package widget

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/city-weather-widget/internal/client"
	"github.com/kjstillabower/city-weather-widget/internal/models"
	"github.com/kjstillabower/city-weather-widget/internal/observability"
	"github.com/kjstillabower/city-weather-widget/internal/validation"
)

// Fetcher turns a query into an Outcome with at most one upstream call.
type Fetcher struct {
	client client.WeatherClient
	logger *zap.Logger
}

// NewFetcher creates a Fetcher. logger is used when the request context carries none.
func NewFetcher(c client.WeatherClient, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: c, logger: logger}
}

// loggerFromContext extracts a zap.Logger from request context if present.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// Fetch validates query and, if non-empty, asks the weather API for current conditions.
// Empty or whitespace queries produce ErrorValidation without any network call. A 1006
// "no matching location" maps to ErrorNotFound; every other failure maps to ErrorTransport.
func (f *Fetcher) Fetch(ctx context.Context, query string) models.Outcome {
	logger := loggerFromContext(ctx)
	if logger == nil {
		logger = f.logger
	}

	q, err := validation.NormalizeQuery(query)
	if err != nil {
		out := models.Failure(models.ErrorValidation)
		observability.WeatherFetchesTotal.WithLabelValues(out.Label()).Inc()
		logger.Debug("weather fetch rejected", zap.String("outcome", out.Label()))
		return out
	}

	start := time.Now()
	result, err := f.client.GetCurrentWeather(ctx, q)
	var out models.Outcome
	switch {
	case err == nil:
		out = models.Success(result)
	case errors.Is(err, client.ErrLocationNotFound):
		out = models.Failure(models.ErrorNotFound)
	default:
		out = models.Failure(models.ErrorTransport)
	}
	observability.WeatherFetchesTotal.WithLabelValues(out.Label()).Inc()

	fields := []zap.Field{
		zap.String("query", q),
		zap.String("outcome", out.Label()),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		fields = append(fields, zap.String("category", string(client.CategorizeError(err))), zap.Error(err))
	}
	if err != nil && !errors.Is(err, client.ErrLocationNotFound) {
		logger.Warn("weather fetch failed", fields...)
	} else {
		logger.Info("weather fetched", fields...)
	}
	return out
}
