package intel

import (
	"context"
	"sync"
	"time"

	"github.com/apk-analysis/apk-verdict-go/internal/domain"
	"github.com/apk-analysis/apk-verdict-go/internal/retry"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// registration 已注册服务及其查询参数
type registration struct {
	client Client
	config ServiceConfig
}

// Observer 查询结果的指标回调
type Observer interface {
	RecordIntelLookup(service, status string, duration time.Duration)
	RecordIntelCacheHit()
}

// Aggregator 并发查询所有已注册情报服务并聚合结果。
// 单个服务不可用只产出该服务的 unavailable 条目，绝不中止整体查询。
type Aggregator struct {
	services []registration
	cache    *Cache
	observer Observer
	logger   *logrus.Logger
}

// NewAggregator 创建聚合器
func NewAggregator(cache *Cache, logger *logrus.Logger) *Aggregator {
	return &Aggregator{cache: cache, logger: logger}
}

// SetObserver 挂接指标回调，nil 表示不上报
func (a *Aggregator) SetObserver(observer Observer) {
	a.observer = observer
}

// Register 注册一个服务
func (a *Aggregator) Register(client Client, config ServiceConfig) {
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	a.services = append(a.services, registration{client: client, config: config})
}

// Lookup 并发查询所有服务。永不返回错误：
// 失败的服务在报告里以 unavailable 呈现。
func (a *Aggregator) Lookup(ctx context.Context, digest domain.ContentDigest) *domain.IntelligenceReport {
	report := &domain.IntelligenceReport{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, reg := range a.services {
		reg := reg
		g.Go(func() error {
			sr := a.lookupOne(gctx, reg, digest)
			mu.Lock()
			report.Set(sr)
			mu.Unlock()
			return nil // 单服务失败不向上传播
		})
	}
	g.Wait()

	return report
}

// lookupOne 带缓存、超时与单次重试的单服务查询
func (a *Aggregator) lookupOne(ctx context.Context, reg registration, digest domain.ContentDigest) *domain.ServiceReport {
	name := reg.client.Name()

	if cached, ok := a.cache.Get(name, digest); ok {
		a.logger.WithFields(logrus.Fields{
			"service": name,
			"sha256":  digest,
		}).Debug("Intel cache hit")
		if a.observer != nil {
			a.observer.RecordIntelCacheHit()
		}
		return cached
	}
	started := time.Now()

	retryCfg := &retry.Config{
		MaxAttempts:     reg.config.MaxRetries + 1,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Strategy:        retry.StrategyFixed,
		Logger:          a.logger,
	}

	result, err := retry.DoWithResult(ctx, retryCfg, func(ctx context.Context) (*domain.ServiceReport, error) {
		lookupCtx, cancel := context.WithTimeout(ctx, reg.config.Timeout)
		defer cancel()
		return reg.client.Lookup(lookupCtx, digest)
	})
	if err != nil {
		reason := failureReason(err)
		a.logger.WithFields(logrus.Fields{
			"service": name,
			"sha256":  digest,
			"reason":  reason,
		}).Warn("Intel service unavailable")
		if a.observer != nil {
			a.observer.RecordIntelLookup(name, string(domain.IntelUnavailable), time.Since(started))
		}
		return &domain.ServiceReport{
			Service: name,
			Status:  domain.IntelUnavailable,
			Reason:  reason,
		}
	}
	if a.observer != nil {
		a.observer.RecordIntelLookup(name, string(result.Status), time.Since(started))
	}

	// unavailable 不落缓存，避免把一次故障固化一个 TTL 周期
	a.cache.Put(name, digest, result)
	return result
}
