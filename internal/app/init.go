package app

import (
	"context"
	"fmt"
	"net/http"

	server "github.com/admin/tg-bots/invoice-bot/internal/adapters/primary/http"
	healthcheckController "github.com/admin/tg-bots/invoice-bot/internal/adapters/primary/http/controllers/healthcheck"
	webhookControllers "github.com/admin/tg-bots/invoice-bot/internal/adapters/primary/http/controllers/webhooks"
	alerterAdapter "github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/alerter"
	kafkaAdapter "github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/kafka"
	"github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/payment/lava"
	"github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/payment/nowpayments"
	"github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/payment/wayforpay"
	"github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/storage/pg"
	redisAdapter "github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/storage/redis"
	s3Adapter "github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/storage/s3"
	tgAdapter "github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/telegram"
	"github.com/admin/tg-bots/invoice-bot/internal/domain"
	"github.com/admin/tg-bots/invoice-bot/internal/ports/archive"
	"github.com/admin/tg-bots/invoice-bot/internal/ports/cache"
	paymentPort "github.com/admin/tg-bots/invoice-bot/internal/ports/payment"
	"github.com/admin/tg-bots/invoice-bot/internal/ports/repository"
	"github.com/admin/tg-bots/invoice-bot/internal/ports/service"
	invoiceRepo "github.com/admin/tg-bots/invoice-bot/internal/repository/invoice"
	userRepo "github.com/admin/tg-bots/invoice-bot/internal/repository/user"
	jobScheduler "github.com/admin/tg-bots/invoice-bot/internal/services/jobs"
	notifierService "github.com/admin/tg-bots/invoice-bot/internal/services/notifier"
	telegramService "github.com/admin/tg-bots/invoice-bot/internal/services/telegram"
	invoiceUsecase "github.com/admin/tg-bots/invoice-bot/internal/usecases/invoice"
	"github.com/jmoiron/sqlx"
)

type Dependencies struct {
	DB              *sqlx.DB
	HTTPServer      *http.Server
	TelegramService *telegramService.Service
	TelegramPoller  *tgAdapter.Poller
	KafkaProducer   *kafkaAdapter.Producer
	Cache           cache.Cache
	JobScheduler    *jobScheduler.Scheduler
}

// initDependencies инициализирует все зависимости приложения
func (a *App) initDependencies(ctx context.Context) (*Dependencies, error) {
	db, err := a.initPostgres()
	if err != nil {
		return nil, fmt.Errorf("failed to init postgres: %w", err)
	}

	repos := a.initRepositories(db)
	ext := a.initExternalServices()

	if a.Cfg.Telegram == nil {
		return nil, fmt.Errorf("telegram configuration is required")
	}
	tgClient := tgAdapter.NewClient(a.Cfg.Telegram.BotToken, a.Log)
	if err := tgClient.GetMe(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify bot token: %w", err)
	}

	providers := a.initPaymentProviders()
	notifier := notifierService.New(tgClient, a.Cfg.Invoice.AdminIDs, a.Log)

	invoiceUseCase := invoiceUsecase.New(
		repos.User,
		repos.Invoice,
		providers.byName,
		notifier,
		ext.Alerter,       // может быть nil
		ext.KafkaProducer, // может быть nil
		a.Cfg.Invoice.TTL,
		a.Log,
	)

	tgService := telegramService.New(invoiceUseCase, repos.User, tgClient, ext.Cache, a.Log)
	if err := tgService.RegisterCommands(ctx); err != nil {
		a.Log.Warn("failed to register bot commands", "error", err)
	}

	poller := tgAdapter.NewPoller(tgClient, a.Cfg.Telegram, tgService.HandleUpdate, a.Log)

	httpServer := a.initHTTP(db, invoiceUseCase, providers, ext.Archive)
	scheduler := a.initJobScheduler(invoiceUseCase, ext.Alerter)

	return &Dependencies{
		DB:              db,
		HTTPServer:      httpServer,
		TelegramService: tgService,
		TelegramPoller:  poller,
		KafkaProducer:   ext.KafkaProducer,
		Cache:           ext.Cache,
		JobScheduler:    scheduler,
	}, nil
}

// repositories содержит инициализированные репозитории
type repositories struct {
	User    repository.IUserRepo
	Invoice repository.IInvoiceRepo
}

func (a *App) initRepositories(db *sqlx.DB) *repositories {
	persistenceLayer := pg.NewDB(db)
	return &repositories{
		User:    userRepo.New(persistenceLayer, a.Log),
		Invoice: invoiceRepo.New(persistenceLayer, a.Log),
	}
}

// externalServices опциональные внешние подсистемы: каждая включается
// только при наличии своей конфигурации
type externalServices struct {
	Alerter       service.IAlerterService
	Cache         cache.Cache
	KafkaProducer *kafkaAdapter.Producer
	Archive       archive.IWebhookArchive
}

func (a *App) initExternalServices() *externalServices {
	ext := &externalServices{}

	if a.Cfg.Alerter != nil && a.Cfg.Alerter.BotToken != "" {
		if client := alerterAdapter.NewClient(a.Cfg.Alerter, a.Log); client != nil {
			ext.Alerter = client
			a.Log.Info("alerter enabled", "chat_id", a.Cfg.Alerter.ChatID)
		}
	}

	if a.Cfg.Redis != nil {
		redisClient, err := a.Cfg.Redis.NewConnection()
		if err != nil {
			a.Log.Warn("failed to init redis cache, continuing without rate limiting", "error", err)
		} else {
			ext.Cache = redisAdapter.NewClient(redisClient)
			a.Log.Info("redis cache connected successfully")
		}
	}

	if a.Cfg.Kafka != nil && a.Cfg.Kafka.IsConfigured() {
		producer, err := kafkaAdapter.NewProducer(a.Cfg.Kafka, a.Log)
		if err != nil {
			a.Log.Warn("failed to create kafka producer, payment events disabled", "error", err)
		} else {
			ext.KafkaProducer = producer
			a.Log.Info("kafka payment events enabled", "topic", a.Cfg.Kafka.Topic)
		}
	}

	if a.Cfg.S3 != nil && a.Cfg.S3.IsConfigured() {
		minioClient, err := a.Cfg.S3.NewClient()
		if err != nil {
			a.Log.Warn("failed to create s3 client, webhook archive disabled", "error", err)
		} else {
			ext.Archive = s3Adapter.NewClient(minioClient, a.Cfg.S3.Bucket, a.Log)
			a.Log.Info("webhook archive enabled", "bucket", a.Cfg.S3.Bucket)
		}
	}

	return ext
}

// paymentProviders сконфигурированные платёжные провайдеры.
// Конкретные типы нужны вебхук-контроллерам (парсинг своих форматов),
// byName отдаётся usecase-слою
type paymentProviders struct {
	NOWPayments *nowpayments.Provider
	Lava        *lava.Provider
	WayForPay   *wayforpay.Provider

	byName map[domain.PaymentProvider]paymentPort.IPaymentProvider
}

func (a *App) initPaymentProviders() *paymentProviders {
	providers := &paymentProviders{
		byName: make(map[domain.PaymentProvider]paymentPort.IPaymentProvider),
	}

	if a.Cfg.NOWPayments != nil && a.Cfg.NOWPayments.IsConfigured() {
		providers.NOWPayments = nowpayments.NewProvider(a.Cfg.NOWPayments, a.Log)
		providers.byName[domain.PaymentProviderNOWPayments] = providers.NOWPayments
		a.Log.Info("payment provider enabled", "provider", domain.PaymentProviderNOWPayments)
	}

	if a.Cfg.Lava != nil && a.Cfg.Lava.IsConfigured() {
		lavaProvider, err := lava.NewProvider(a.Cfg.Lava, a.Log)
		if err != nil {
			a.Log.Warn("failed to init lava provider", "error", err)
		} else {
			providers.Lava = lavaProvider
			providers.byName[domain.PaymentProviderLava] = lavaProvider
			a.Log.Info("payment provider enabled", "provider", domain.PaymentProviderLava)
		}
	}

	if a.Cfg.WayForPay != nil && a.Cfg.WayForPay.IsConfigured() {
		providers.WayForPay = wayforpay.NewProvider(a.Cfg.WayForPay, a.Log)
		providers.byName[domain.PaymentProviderWayForPay] = providers.WayForPay
		a.Log.Info("payment provider enabled", "provider", domain.PaymentProviderWayForPay)
	}

	if len(providers.byName) == 0 {
		a.Log.Warn("no payment providers configured, invoices will be created without payment links")
	}

	return providers
}

// initHTTP инициализирует HTTP сервер: healthcheck и вебхуки
// сконфигурированных провайдеров
func (a *App) initHTTP(
	db *sqlx.DB,
	invoiceUseCase *invoiceUsecase.Service,
	providers *paymentProviders,
	webhookArchive archive.IWebhookArchive,
) *http.Server {
	strict := a.Cfg.Invoice.StrictWebhooks

	controllers := []server.Controller{
		healthcheckController.New(db, a.Log),
	}

	if providers.NOWPayments != nil {
		controllers = append(controllers,
			webhookControllers.NewNOWPayments(invoiceUseCase, providers.NOWPayments, webhookArchive, strict, a.Log))
	}
	if providers.Lava != nil {
		controllers = append(controllers,
			webhookControllers.NewLava(invoiceUseCase, providers.Lava, webhookArchive, strict, a.Log))
	}
	if providers.WayForPay != nil {
		controllers = append(controllers,
			webhookControllers.NewWayForPay(invoiceUseCase, providers.WayForPay, webhookArchive, strict, a.Log))
	}

	return server.NewHTTPServer(a.Cfg.Server, a.Log, controllers...)
}

// initJobScheduler регистрирует фоновые джобы: поллер статусов и свипер
// просроченных инвойсов
func (a *App) initJobScheduler(
	invoiceUseCase *invoiceUsecase.Service,
	alerterSvc service.IAlerterService,
) *jobScheduler.Scheduler {
	scheduler := jobScheduler.NewScheduler(a.Log, alerterSvc)

	paymentPoller := jobScheduler.NewPaymentPoller(invoiceUseCase, a.Cfg.Invoice.PollInterval, a.Log)
	scheduler.Register(paymentPoller)
	a.Log.Info("payment poller job registered", "interval", a.Cfg.Invoice.PollInterval)

	invoiceExpirer := jobScheduler.NewInvoiceExpirer(invoiceUseCase, a.Cfg.Invoice.ExpireInterval, a.Log)
	scheduler.Register(invoiceExpirer)
	a.Log.Info("invoice expirer job registered", "interval", a.Cfg.Invoice.ExpireInterval)

	return scheduler
}
