package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/apk-analysis/apk-verdict-go/internal/api"
	"github.com/apk-analysis/apk-verdict-go/internal/api/handlers"
	"github.com/apk-analysis/apk-verdict-go/internal/classifier"
	"github.com/apk-analysis/apk-verdict-go/internal/config"
	"github.com/apk-analysis/apk-verdict-go/internal/fusion"
	"github.com/apk-analysis/apk-verdict-go/internal/intel"
	"github.com/apk-analysis/apk-verdict-go/internal/middleware"
	"github.com/apk-analysis/apk-verdict-go/internal/pipeline"
	"github.com/apk-analysis/apk-verdict-go/internal/queue"
	"github.com/apk-analysis/apk-verdict-go/internal/repository"
	"github.com/apk-analysis/apk-verdict-go/internal/rulegen"
	"github.com/apk-analysis/apk-verdict-go/internal/service"
	"github.com/apk-analysis/apk-verdict-go/internal/staticanalysis"
	"github.com/apk-analysis/apk-verdict-go/internal/unpacker"
	"github.com/apk-analysis/apk-verdict-go/internal/watcher"
	"github.com/apk-analysis/apk-verdict-go/internal/worker"
	"github.com/sirupsen/logrus"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	fmt.Printf("APK Verdict Service\n")
	fmt.Printf("Version: %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n\n", GitCommit)

	// 1. 加载配置
	configPath := "./configs/config.yaml"
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		configPath = os.Args[2]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. 初始化日志
	logger := config.InitLogger(&cfg.Log)
	logger.Infof("Starting APK Verdict Service %s", Version)
	logger.Infof("Config loaded from: %s", configPath)

	// 3. 初始化数据库
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Fatalf("Failed to create data dir: %v", err)
	}
	db, err := repository.InitDB(&cfg.Database, cfg.DataDir, logger)
	if err != nil {
		logger.Fatalf("Failed to init database: %v", err)
	}
	logger.Info("Database connected successfully")

	// 4. 加载分类模型（启动时一次，之后只读共享）
	var model *classifier.Model
	if cfg.Model.Path != "" {
		model, err = classifier.LoadModel(cfg.Model.Path)
		if err != nil {
			if cfg.Model.Required {
				logger.Fatalf("Failed to load classifier model: %v", err)
			}
			logger.WithError(err).Warn("Classifier model not loaded, scans will run degraded")
			model = nil
		} else {
			logger.WithField("model_version", model.ModelVersion).Info("Classifier model loaded")
		}
	} else if cfg.Model.Required {
		logger.Fatal("model.required is set but model.path is empty")
	} else {
		logger.Warn("No classifier model configured, scans will run degraded")
	}
	adapter := classifier.NewAdapter(model, logger)

	// 5. 组装分析管线
	up := unpacker.NewUnpacker(unpacker.Limits{
		MaxDecompressedBytes: int64(cfg.Pipeline.MaxDecompressedMB) << 20,
		MaxEntryCount:        cfg.Pipeline.MaxEntryCount,
		RequireSignature:     cfg.Pipeline.RequireSignature,
	}, logger)

	extractor := staticanalysis.NewExtractor(staticanalysis.Policy{
		DangerousPermissions: cfg.Pipeline.DangerousPermissions,
		TrustedCerts:         cfg.Pipeline.TrustedCerts,
		TrustedIcons:         cfg.Pipeline.TrustedIcons,
		MinStringLength:      5,
		MaxLiterals:          200,
	}, logger)

	intelCache := intel.NewCache(time.Duration(cfg.Intel.CacheTTL) * time.Second)
	aggregator := intel.NewAggregator(intelCache, logger)
	if cfg.Intel.VirusTotal.Enabled {
		aggregator.Register(
			intel.NewVirusTotalClient(cfg.Intel.VirusTotal.URL, cfg.Intel.VirusTotal.APIKey, logger),
			intel.ServiceConfig{
				Timeout:    time.Duration(cfg.Intel.VirusTotal.Timeout) * time.Second,
				MaxRetries: cfg.Intel.VirusTotal.MaxRetries,
			})
		logger.Info("VirusTotal lookups enabled")
	}
	if cfg.Intel.MalwareBazaar.Enabled {
		aggregator.Register(
			intel.NewMalwareBazaarClient(cfg.Intel.MalwareBazaar.URL, cfg.Intel.MalwareBazaar.APIKey, logger),
			intel.ServiceConfig{
				Timeout:    time.Duration(cfg.Intel.MalwareBazaar.Timeout) * time.Second,
				MaxRetries: cfg.Intel.MalwareBazaar.MaxRetries,
			})
		logger.Info("MalwareBazaar lookups enabled")
	}

	engine := fusion.NewEngine(fusion.Weights{
		Static:     cfg.Fusion.StaticWeight,
		Classifier: cfg.Fusion.ClassifierWeight,
		Intel:      cfg.Fusion.IntelWeight,
	}, cfg.Fusion.BenignThreshold, cfg.Fusion.MaliciousThreshold)

	analyzer := pipeline.NewAnalyzer(
		up, extractor, adapter, aggregator, engine,
		rulegen.NewSynthesizer(logger),
		pipeline.Options{
			RequestTimeout:     time.Duration(cfg.Pipeline.RequestTimeout) * time.Second,
			ClassifierRequired: cfg.Pipeline.ClassifierRequired,
		},
		logger,
	)
	logger.Info("Analysis pipeline assembled")

	// 6. 指标与结论推送
	promMetrics := middleware.NewPrometheusMetrics(logger, "apk_verdict")
	aggregator.SetObserver(promMetrics)
	verdictHub := handlers.NewVerdictHub(logger)
	defer verdictHub.Close()

	// 7. 服务层
	scanRepo := repository.NewScanRepository(db)
	scanService := service.NewScanService(analyzer, scanRepo, promMetrics, verdictHub, logger)

	// 8. Worker Pool（watcher / 队列来的扫描走这里）
	workerPool := worker.NewPool(cfg.Worker.Concurrency, cfg.Worker.QueueSize,
		func(ctx context.Context, job *worker.Job) error {
			return scanService.AnalyzeFile(ctx, job.ScanID, job.FilePath, job.Source)
		}, logger)
	workerPool.Start(context.Background())
	defer workerPool.Stop()

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			size, active, queued := workerPool.Stats()
			promMetrics.UpdateWorkerPoolStats(size, active, queued)
		}
	}()

	// 9. RabbitMQ（可选）：批量扫描的异步入口
	var producer *queue.Producer
	if cfg.RabbitMQ.Enabled {
		mq, err := queue.NewRabbitMQ(&queue.RabbitMQConfig{
			Host:     cfg.RabbitMQ.Host,
			Port:     cfg.RabbitMQ.Port,
			User:     cfg.RabbitMQ.User,
			Password: cfg.RabbitMQ.Password,
			VHost:    cfg.RabbitMQ.VHost,
		}, cfg.RabbitMQ.Queue, cfg.Worker.Concurrency, logger)
		if err != nil {
			logger.Fatalf("Failed to init RabbitMQ: %v", err)
		}
		defer mq.Close()

		producer = queue.NewProducer(mq, logger)

		consumer := queue.NewConsumer(mq, func(ctx context.Context, msg *queue.ScanMessage) error {
			return workerPool.SubmitAndWait(ctx, &worker.Job{
				ScanID:   msg.ScanID,
				FilePath: msg.FilePath,
				Source:   msg.Source,
			})
		}, cfg.Worker.Concurrency, logger)
		if err := consumer.Start(context.Background()); err != nil {
			logger.Fatalf("Failed to start consumer: %v", err)
		}
		defer consumer.Stop()
		logger.Info("RabbitMQ scan consumer started")
	} else {
		logger.Info("RabbitMQ disabled, async scans run on the in-process pool only")
	}

	// 10. 文件监控（可选）：落进入站目录的包自动扫描
	if cfg.Watcher.Enabled {
		fileWatcher, err := watcher.NewFileWatcher(cfg.InboundDir, cfg.Watcher.Pattern,
			createInboundHandler(producer, workerPool, logger), logger)
		if err != nil {
			logger.Fatalf("Failed to create file watcher: %v", err)
		}
		defer fileWatcher.Stop()

		if err := fileWatcher.Start(context.Background()); err != nil {
			logger.Fatalf("Failed to start file watcher: %v", err)
		}
		logger.Infof("File watcher started for directory: %s", cfg.InboundDir)
	}

	// 11. HTTP Server
	modelVersion := adapter.ModelVersion()
	scanHandler := handlers.NewScanHandler(scanService, cfg.Pipeline.MaxUploadMB, logger)
	healthHandler := handlers.NewHealthHandler(db, scanService, modelVersion, logger)

	router := api.SetupRouter(cfg, logger, scanHandler, healthHandler, verdictHub, promMetrics)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  5 * time.Minute, // 支持大文件上传
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Infof("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	// 12. 等待中断信号并优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("HTTP server shutdown error: %v", err)
	}

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("Server stopped")
}

// createInboundHandler 入站文件的处理器。
// 配置了队列时发布消息（多实例共享负载），否则直接投给本地 worker 池。
func createInboundHandler(producer *queue.Producer, pool *worker.Pool, logger *logrus.Logger) watcher.FileHandler {
	return func(ctx context.Context, filePath string) error {
		fileName := filepath.Base(filePath)
		logger.WithField("file_name", fileName).Info("New package detected in inbound directory")

		if producer != nil {
			return producer.PublishScan(ctx, &queue.ScanMessage{
				FileName: fileName,
				FilePath: filePath,
				Source:   "watcher",
			})
		}

		return pool.Submit(&worker.Job{
			FilePath: filePath,
			Source:   "watcher",
		})
	}
}
