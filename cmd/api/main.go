package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/yourusername/otp-api/internal/config"
	"github.com/yourusername/otp-api/internal/domain/entity"
	"github.com/yourusername/otp-api/internal/handler"
	"github.com/yourusername/otp-api/internal/middleware"
	pgRepo "github.com/yourusername/otp-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/otp-api/internal/repository/redis"
	"github.com/yourusername/otp-api/internal/service"
	"github.com/yourusername/otp-api/pkg/auth"
	"github.com/yourusername/otp-api/pkg/database"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции
	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к Redis с использованием унифицированной конфигурации
	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Инициализируем репозитории
	userRepo := pgRepo.NewUserRepo(db)
	otpCodeRepo := pgRepo.NewOtpCodeRepo(db)
	auditRepo := pgRepo.NewAuditEventRepo(db)

	rateLimitRepo, err := redisRepo.NewRateLimitRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize RateLimitRepo: %v", err)
		os.Exit(1)
	}

	// --- Журнал аудита (асинхронная запись) ---
	auditService := service.NewAuditService(auditRepo, 256)

	// --- Провайдеры доставки ---
	// Каналы без настроенных реквизитов получают NoopProvider: сервис
	// продолжает работать, отправка по такому каналу логируется и отбрасывается.
	providers := make(map[string]service.Provider)

	if cfg.Delivery.ResendAPIKey != "" {
		emailProvider, err := service.NewResendEmailProvider(
			cfg.Delivery.ResendAPIKey, cfg.Delivery.EmailFrom, cfg.Delivery.BrandName)
		if err != nil {
			log.Printf("Failed to initialize Resend email provider: %v", err)
			os.Exit(1)
		}
		providers[entity.ChannelEmail] = emailProvider
		log.Println("Email delivery: Resend")
	} else {
		providers[entity.ChannelEmail] = &service.NoopProvider{Channel: entity.ChannelEmail}
		log.Println("Email delivery: not configured")
	}

	if cfg.Delivery.SMSGatewayURL != "" {
		smsProvider, err := service.NewGatewaySMSProvider(
			cfg.Delivery.SMSGatewayURL, cfg.Delivery.SMSAPIKey, cfg.Delivery.SMSSenderID,
			cfg.Delivery.SMSUserID, cfg.Delivery.SMSPassword, cfg.Delivery.BrandName)
		if err != nil {
			log.Printf("Failed to initialize SMS provider: %v", err)
			os.Exit(1)
		}
		providers[entity.ChannelSMS] = smsProvider
		log.Printf("SMS delivery: gateway %s", cfg.Delivery.SMSGatewayURL)
	} else {
		providers[entity.ChannelSMS] = &service.NoopProvider{Channel: entity.ChannelSMS}
		log.Println("SMS delivery: not configured")
	}

	if cfg.Delivery.WhatsAppGatewayURL != "" {
		waProvider, err := service.NewGatewayWhatsAppProvider(
			cfg.Delivery.WhatsAppGatewayURL, cfg.Delivery.WhatsAppToken,
			cfg.Delivery.WhatsAppSender, cfg.Delivery.BrandName)
		if err != nil {
			log.Printf("Failed to initialize WhatsApp provider: %v", err)
			os.Exit(1)
		}
		providers[entity.ChannelWhatsApp] = waProvider
		log.Printf("WhatsApp delivery: gateway %s", cfg.Delivery.WhatsAppGatewayURL)
	} else {
		providers[entity.ChannelWhatsApp] = &service.NoopProvider{Channel: entity.ChannelWhatsApp}
		log.Println("WhatsApp delivery: not configured")
	}

	deliveryService, err := service.NewDeliveryService(providers, cfg.Delivery.AckTimeout(), cfg.Delivery.SendRetries)
	if err != nil {
		log.Printf("Failed to initialize DeliveryService: %v", err)
		os.Exit(1)
	}

	// --- Step-up токены ---
	tokenService, err := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.StepUpTTL())
	if err != nil {
		log.Printf("Failed to initialize TokenService: %v", err)
		os.Exit(1)
	}

	// --- Основной сервис одноразовых кодов ---
	otpService, err := service.NewOTPService(
		userRepo,
		otpCodeRepo,
		rateLimitRepo,
		deliveryService,
		auditService,
		tokenService,
		service.OTPConfig{
			Secret:           cfg.OTP.Secret,
			TTL:              time.Duration(cfg.OTP.TTLSeconds) * time.Second,
			MinTTL:           time.Duration(cfg.OTP.MinTTLSeconds) * time.Second,
			MaxTTL:           time.Duration(cfg.OTP.MaxTTLSeconds) * time.Second,
			MaxAttempts:      cfg.OTP.MaxAttempts,
			LockPollInterval: cfg.OTP.LockPollInterval(),
			LockPollAttempts: cfg.OTP.LockPollAttempts,
			RateLimit:        cfg.RateLimit.MaxRequests,
			RateWindow:       cfg.RateLimit.Window(),
		},
	)
	if err != nil {
		log.Printf("Failed to initialize OTPService: %v", err)
		os.Exit(1)
	}

	// Инициализируем обработчики
	otpHandler := handler.NewOTPHandler(otpService)
	auditHandler := handler.NewAuditHandler(auditRepo)
	auditStreamHandler := handler.NewAuditStreamHandler(auditRepo)

	// Инициализируем middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenService)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Настраиваем роутер Gin
	router := gin.Default()

	// Настройка доверенных прокси
	if gin.Mode() == gin.ReleaseMode {
		// В production указываем только реальные IP прокси
		err = router.SetTrustedProxies([]string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"})
	} else {
		// В development доверяем локальным адресам
		err = router.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	}
	if err != nil {
		log.Printf("Failed to set trusted proxies: %v", err)
		os.Exit(1)
	}

	// Настраиваем CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Общий лимит по IP на весь API, строгий лимит на выдачу кодов
	router.Use(rateLimiter.Limit(middleware.DefaultOTPRateLimitConfig()))

	// API маршруты
	api := router.Group("/api")
	{
		otp := api.Group("/otp")
		{
			otp.POST("/request", rateLimiter.Limit(middleware.StrictOTPRateLimitConfig()), otpHandler.RequestOTP)
			otp.POST("/verify", otpHandler.VerifyOTP)
			otp.GET("/status", otpHandler.Status)
		}

		admin := api.Group("/admin")
		admin.Use(authMiddleware.RequireAuth(), authMiddleware.RequireAdmin())
		{
			admin.GET("/audit", auditHandler.List)
			admin.GET("/audit/export", auditHandler.Export)
			admin.GET("/audit/stream", auditStreamHandler.Stream)
		}
	}

	// Проверка работоспособности
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %s", cfg.Server.Port)

	// Ждем сигнал остановки
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Создаем контекст с таймаутом для graceful shutdown сервера
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	// Дописываем накопленные события аудита перед выходом
	auditService.Close()

	log.Println("Server exited properly")
}
