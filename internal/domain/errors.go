package domain

import "errors"

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrInvoiceNotFound = errors.New("invoice not found")
)

// BusinessError ошибка бизнес-логики провайдера (явный отказ, нет конфигурации).
// Не ретраится: повтор не изменит исход и рискует дублем списания
type BusinessError struct {
	Err error
}

func (e *BusinessError) Error() string {
	return e.Err.Error()
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(msg string) error {
	return &BusinessError{Err: errors.New(msg)}
}

func WrapBusinessError(err error) error {
	if err == nil {
		return nil
	}
	return &BusinessError{Err: err}
}

func IsBusinessError(err error) bool {
	var businessErr *BusinessError
	return errors.As(err, &businessErr)
}
