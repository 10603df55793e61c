package shortlink

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"filedrop.local/internal/platform/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "filedrop.local/internal/app/shortlink"

// Resolver 把用户给的短码（或 ID）解析成跳转目标，并记一次访问。
//
// 状态流转：
//
//	LookupByCode -> (miss) LookupByID -> (miss) NotFound
//	     |                   |
//	     +-------> ExpiryCheck -> (expired) Expired
//	                    |
//	                    +-> Increment -> Redirect
//
// 计数是尽力而为：自增失败只记录日志和指标，不会让跳转失败。
type Resolver struct {
	store             Store
	onAccountingError func(ctx context.Context, err *AccountingError)
}

type ResolverOption func(*Resolver)

// WithAccountingErrorHook 在计数失败时额外回调（例如测试里收集错误，或接告警）。
func WithAccountingErrorHook(fn func(ctx context.Context, err *AccountingError)) ResolverOption {
	return func(r *Resolver) {
		r.onAccountingError = fn
	}
}

func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve 返回应跳转的短链。
//
// now 由调用方传入，过期判断不读系统时钟。
//
// 返回值：
// - 不存在或已过期：ErrNotFound（过期时是 ErrExpired，它也满足 errors.Is(err, ErrNotFound)）
// - 存储故障：ErrPersistence
//
// 返回的 Visits 是查询时刻的值（可能来自缓存），不要把它当计数结果用。
func (r *Resolver) Resolve(ctx context.Context, input string, now time.Time) (ShortLink, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "shortlink.Resolve")
	defer span.End()

	link, via, err := lookup(ctx, r.store, input)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "lookup failed")
			observe(span, "error")
			return ShortLink{}, err
		}
		observe(span, "not_found")
		return ShortLink{}, err
	}
	span.SetAttributes(attribute.String("shortlink.lookup", via))

	if link.ExpiredAt(now) {
		observe(span, "expired")
		return ShortLink{}, ErrExpired
	}

	// 查找和自增之间没有事务：链接可能恰好在这之间过期，晚到的这次计数可以接受。
	if err := r.store.IncrementVisits(ctx, link.ID); err != nil {
		r.reportAccounting(ctx, &AccountingError{ID: link.ID, Err: err})
	}

	observe(span, "redirect")
	return link, nil
}

func observe(span trace.Span, outcome string) {
	span.SetAttributes(attribute.String("shortlink.outcome", outcome))
	metrics.ShortlinkRedirects.WithLabelValues(outcome).Inc()
}

func (r *Resolver) reportAccounting(ctx context.Context, err *AccountingError) {
	metrics.VisitIncrementFailures.Inc()
	slog.ErrorContext(ctx, "shortlink: increment visits failed", "id", err.ID, "err", err.Err)
	if r.onAccountingError != nil {
		r.onAccountingError(ctx, err)
	}
}
