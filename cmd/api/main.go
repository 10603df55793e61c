package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"filedrop.local/gee"
	"filedrop.local/gee/middleware"
	"filedrop.local/internal/app/shortlink"
	slcache "filedrop.local/internal/app/shortlink/cache"
	shortlinkhttpapi "filedrop.local/internal/app/shortlink/httpapi"
	"filedrop.local/internal/app/shortlink/memstore"
	"filedrop.local/internal/app/shortlink/repo"
	"filedrop.local/internal/app/shortlink/stats"
	"filedrop.local/internal/app/shortlink/upload"
	"filedrop.local/internal/platform/auth"
	platformcache "filedrop.local/internal/platform/cache"
	"filedrop.local/internal/platform/config"
	"filedrop.local/internal/platform/db"
	"filedrop.local/internal/platform/httpmiddleware"
	"filedrop.local/internal/platform/httpserver"
	"filedrop.local/internal/platform/metrics"
	"filedrop.local/internal/platform/migrate"
	"filedrop.local/internal/platform/ratelimit"
	"filedrop.local/internal/platform/trace"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg := config.Load()

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	slog.SetDefault(slog.New(h))

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	// 存储
	var (
		dbPool *pgxpool.Pool
		store  shortlink.Store
		lister shortlink.Lister
	)
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		dbCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pool, err := db.New(dbCtx, cfg.DBDSN)
		if err != nil {
			cancel()
			log.Fatal(err)
		}
		if err := pool.Ping(dbCtx); err != nil {
			cancel()
			log.Fatal(err)
		}
		if cfg.MigrateOnStart {
			res, err := migrate.Up(dbCtx, pool, repo.Migrations)
			if err != nil {
				cancel()
				log.Fatal(err)
			}
			slog.Info("migrations done", "applied", res.AppliedFiles, "skipped", len(res.SkippedFiles))
		}
		cancel()
		defer pool.Close()
		slog.Info("数据库连接成功")

		slRepo := repo.NewShortlinksRepo(pool, shortlink.RandomCode{})
		dbPool, store, lister = pool, slRepo, slRepo
	case config.StoreDriverMemory:
		slog.Warn("using in-memory store, data is lost on restart")
		mem := memstore.New()
		store, lister = mem, mem
	}

	// Redis：缓存和限流共用
	var redisClient *redis.Client
	if cfg.CacheEnabled || cfg.RateLimitEnabled {
		client, err := platformcache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			// 缓存和限流都能在没有 Redis 的情况下降级运行
			slog.Warn("redis unavailable, running without it", "addr", cfg.RedisAddr, "err", err)
		} else {
			redisClient = client
			defer redisClient.Close()
		}
	}

	//限流器
	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled && redisClient != nil {
		limiter = ratelimit.NewLimiter(redisClient)
	} else {
		slog.Warn("RateLimit disabled", "RATELIMIT_ENABLED", cfg.RateLimitEnabled, "redis", redisClient != nil)
	}

	// 解析链路走缓存；计数查询直接读权威存储
	resolveStore := store
	if cfg.CacheEnabled {
		localCache, err := slcache.NewLocalCache(100000, 1<<24) // 10万条目，16MB
		if err != nil {
			log.Fatal(err)
		}
		opts := []slcache.Option{slcache.WithLocal(localCache)}
		if redisClient != nil {
			opts = append(opts, slcache.WithRedis(redisClient))
		}
		var bloomFilter *slcache.BloomFilter
		if cfg.BloomEnabled {
			//预期 100 万短码，1% 误判率
			bloomFilter = slcache.NewBloomFilter(1_000_000, 0.01)
			opts = append(opts, slcache.WithBloom(bloomFilter))
		}
		cached := slcache.New(store, opts...)
		defer cached.Close()
		if bloomFilter != nil {
			warmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := cached.Warm(warmCtx, lister, 1000)
			cancel()
			if err != nil {
				slog.Error("bloom warm-up failed, filter stays disabled", "loaded", n, "err", err)
			} else {
				slog.Info("bloom filter warmed", "keys", n)
			}
		}
		resolveStore = cached
	}

	//初始化统计收集器（根据配置选择 Channel 或 Kafka）
	var (
		collector       stats.Collector
		kafkaConsumer   *stats.KafkaConsumer
		channelConsumer *stats.Consumer
	)
	switch {
	case dbPool == nil:
		slog.Info("click log disabled without database")
		collector = stats.NopCollector{}
	case cfg.KafkaEnabled:
		slog.Info("使用 Kafka 收集点击统计", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		collector = stats.NewKafkaCollector(cfg.KafkaBrokers, cfg.KafkaTopic)
		kafkaConsumer = stats.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, stats.NewPGSink(dbPool))
	default:
		slog.Info("使用 Channel 收集点击统计")
		channelCollector := stats.NewChannelCollector(10000)
		collector = channelCollector
		channelConsumer = stats.NewConsumer(stats.NewPGSink(dbPool), channelCollector)
	}

	// 对象存储
	var uploads *upload.Service
	if cfg.UploadEnabled() {
		s3Ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		objects, err := upload.NewS3Store(s3Ctx, upload.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Bucket:          cfg.S3Bucket,
		})
		cancel()
		if err != nil {
			log.Fatal(err)
		}
		uploads = upload.NewService(objects)
	} else {
		slog.Warn("upload disabled, S3_BUCKET or credentials not set")
	}

	// JWT
	ts, jwtErr := auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if jwtErr != nil {
		log.Fatal(jwtErr)
	}
	adminLogin := auth.NewAdminLogin(cfg.AdminPasswordHash, ts)
	if !adminLogin.Enabled() {
		slog.Warn("admin login disabled, ADMIN_PASSWORD_HASH not set")
	}

	metrics.Init()

	if cfg.TracingEnabled {
		shutdown, err := trace.Init(trace.Options{
			Endpoint:    cfg.OtlpGrpcEndpoint,
			ServiceName: cfg.ServiceName,
			Version:     version,
		})
		if err != nil {
			slog.Error("trace init failed", "err", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error("trace shutdown failed", "err", err)
				}
			}()
		}
	} else {
		slog.Warn("Tracing disabled by config", "TRACING_ENABLED", false)
	}

	services := shortlinkhttpapi.Services{
		Shortener:  shortlink.NewShortener(resolveStore, cfg.PublicBaseURL),
		Resolver:   shortlink.NewResolver(resolveStore),
		Accounting: shortlink.NewAccounting(store),
		Lister:     lister,
		Uploads:    uploads,
		Admin:      adminLogin,
		Tokens:     ts,
		Collector:  collector,
		Limiter:    limiter,
	}

	// 对外业务
	r := gee.New()
	r.Use(gee.Recovery(), middleware.ReqID(), middleware.AccessLog(), httpmiddleware.Metrics(), httpmiddleware.TraceName())

	shortlinkhttpapi.RegisterPublicRoutes(r, services)
	shortlinkhttpapi.RegisterAPIRoutes(r.Group("/api"), services)

	publicHandler := http.Handler(r)
	if cfg.TracingEnabled {
		publicHandler = otelhttp.NewHandler(r, "http")
	}
	publicSrv := httpserver.New(cfg, publicHandler)

	// 仅本机/内网
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	// 数据库连接状态检测
	adminMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if dbPool == nil {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("memory store ready"))
			return
		}
		dbCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := dbPool.Ping(dbCtx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("DB Ping Err"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("DB ready"))
	})

	adminMux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"service_name": cfg.ServiceName,
			"version":      version,
			"commit":       commit,
			"build_time":   buildTime,
			"go_version":   runtime.Version(),
		})
	})

	if cfg.PprofEnabled {
		adminMux.HandleFunc("/debug/pprof/", pprof.Index)
		adminMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		adminMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		adminMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		adminMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	adminSrv := httpserver.NewWithAddr(cfg, cfg.AdminAddr, adminMux) // 推荐：127.0.0.1:6060

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// consumer 不跟着信号退出：HTTP 先停，collector 关掉以后它们把剩下的写完
	consumerCtx, stopConsumers := context.WithCancel(context.Background())
	var kafkaDone, channelDone chan struct{}
	if kafkaConsumer != nil {
		kafkaDone = make(chan struct{})
		go func() {
			defer close(kafkaDone)
			kafkaConsumer.Run(consumerCtx)
		}()
	}
	if channelConsumer != nil {
		channelDone = make(chan struct{})
		go func() {
			defer close(channelDone)
			channelConsumer.Run(consumerCtx)
		}()
	}
	shutdownStats := func() {
		// Kafka 模式下 collector.Close 会把 writer 里的消息刷出去；consumer 没消费完的下次启动重放
		stats.StopAndDrain(collector, channelDone, stopConsumers, cfg.ShutdownTimeout)
		if kafkaDone != nil {
			<-kafkaDone
			kafkaConsumer.Close()
		}
	}

	slog.Info("server starting", "addr", cfg.Addr, "admin_addr", cfg.AdminAddr, "store", cfg.StoreDriver, "version", version)
	err := httpserver.RunAll(stopCtx, cfg.ShutdownTimeout, publicSrv, adminSrv)
	shutdownStats()
	if err != nil {
		slog.Error("server exited", "err", err)
		stop()
		os.Exit(1)
	}
}
