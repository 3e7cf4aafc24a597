package app

import (
	"time"

	server "github.com/admin/tg-bots/invoice-bot/internal/adapters/primary/http"
	alerterAdapter "github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/alerter"
	kafkaAdapter "github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/kafka"
	"github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/payment/lava"
	"github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/payment/nowpayments"
	"github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/payment/wayforpay"
	"github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/storage/pg"
	redisAdapter "github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/storage/redis"
	s3Adapter "github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/storage/s3"
	"github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/telegram"
	"github.com/admin/tg-bots/invoice-bot/internal/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Postgres *pg.Config       `envconfig:"POSTGRES"`
	Log      *logger.Config   `envconfig:"LOG"`
	Server   *server.Config   `envconfig:"APISERVER"`
	Telegram *telegram.Config `envconfig:"TELEGRAM"`

	// опциональные подсистемы, выключаются отсутствием конфигурации
	Redis   *redisAdapter.Config   `envconfig:"REDIS"`
	Alerter *alerterAdapter.Config `envconfig:"ALERTER"`
	Kafka   *kafkaAdapter.Config   `envconfig:"KAFKA"`
	S3      *s3Adapter.Config      `envconfig:"S3"`

	NOWPayments *nowpayments.Config `envconfig:"NOWPAYMENTS"`
	Lava        *lava.Config        `envconfig:"LAVA"`
	WayForPay   *wayforpay.Config   `envconfig:"WAYFORPAY"`

	Invoice InvoiceConfig `envconfig:"INVOICE"`
}

// InvoiceConfig настройки жизненного цикла инвойсов
type InvoiceConfig struct {
	AdminIDs []int64 `envconfig:"ADMIN_IDS" required:"true"` // через запятую

	TTL            time.Duration `envconfig:"TTL" default:"1h"`
	PollInterval   time.Duration `envconfig:"POLL_INTERVAL" default:"60s"`
	ExpireInterval time.Duration `envconfig:"EXPIRE_INTERVAL" default:"5m"`

	// StrictWebhooks отклонять вебхуки с неверной подписью (401 вместо
	// обработки с предупреждением)
	StrictWebhooks bool `envconfig:"STRICT_WEBHOOKS" default:"true"`
}

func NewEnvConfig(envPrefix string) (*Config, error) {
	cfg := &Config{}

	_ = godotenv.Load("deployments/local/.env")

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
