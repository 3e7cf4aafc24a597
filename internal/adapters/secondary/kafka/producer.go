package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"log/slog"

	"github.com/IBM/sarama"
	"github.com/admin/tg-bots/invoice-bot/internal/domain"
)

// Producer публикует события о подтверждённых платежах.
// Реализует events.IPaymentEventProducer
type Producer struct {
	producer sarama.SyncProducer
	cfg      *Config
	log      *slog.Logger
}

// NewProducer создаёт новый Kafka producer
func NewProducer(cfg *Config, log *slog.Logger) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	// Настройка безопасности (если указано)
	if cfg.SecurityProtocol == "SASL_SSL" || cfg.SecurityProtocol == "SASL_PLAINTEXT" {
		config.Net.SASL.Enable = true
		config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		if cfg.SASLMechanism == "SCRAM-SHA-256" {
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		}
		config.Net.SASL.User = cfg.SASLUsername
		config.Net.SASL.Password = cfg.SASLPassword
		// TLS только для SASL_SSL
		if cfg.SecurityProtocol == "SASL_SSL" {
			config.Net.TLS.Enable = true
		}
	}

	producer, err := sarama.NewSyncProducer(cfg.GetBrokers(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	log.Info("kafka producer created",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
	)

	return &Producer{
		producer: producer,
		cfg:      cfg,
		log:      log,
	}, nil
}

// paymentConfirmedEvent событие для внешнего учёта
type paymentConfirmedEvent struct {
	InvoiceID     string    `json:"invoice_id"`
	TransactionID string    `json:"transaction_id"`
	RecipientID   int64     `json:"recipient_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Category      string    `json:"category"`
	Provider      string    `json:"provider"`
	Method        string    `json:"method"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

// PaymentConfirmed публикует событие о подтверждённом платеже.
// Ключ сообщения - invoice_id, чтобы события одного инвойса попадали в одну
// партицию и читались по порядку
func (p *Producer) PaymentConfirmed(ctx context.Context, invoice *domain.Invoice, payment *domain.Payment) error {
	event := paymentConfirmedEvent{
		InvoiceID:     invoice.InvoiceID,
		TransactionID: payment.TransactionID,
		RecipientID:   invoice.RecipientID,
		Amount:        invoice.Amount,
		Currency:      invoice.Currency,
		Category:      string(payment.Category),
		Provider:      string(payment.Provider),
		Method:        payment.Method,
		ConfirmedAt:   payment.ConfirmedAt,
	}
	valueBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.cfg.Topic,
		Key:   sarama.StringEncoder(invoice.InvoiceID),
		Value: sarama.ByteEncoder(valueBytes),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("event_type"),
				Value: []byte("payment_confirmed"),
			},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.log.Debug("kafka send failed",
			"error", err,
			"topic", p.cfg.Topic,
			"key", invoice.InvoiceID,
		)
		return fmt.Errorf("kafka send failed [topic=%s, key=%s]: %w",
			p.cfg.Topic, invoice.InvoiceID, err)
	}

	p.log.Debug("payment event sent to kafka",
		"topic", p.cfg.Topic,
		"partition", partition,
		"offset", offset,
		"invoice_id", invoice.InvoiceID,
	)

	return nil
}

// Close закрывает producer
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	p.log.Info("kafka producer closed")
	return nil
}
