package service

import "context"

// IAlerterService отправка операционных алертов (в отдельный telegram-чат)
type IAlerterService interface {
	SendAlert(ctx context.Context, message string) error
}
