package invoiceid

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"time"
)

// Формат: INV-YYMMDD-XXXX, например INV-260216-A7B3.
// Идентификатор генерируется до любых внешних вызовов и прокидывается во все
// платёжные системы как order_id
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var pattern = regexp.MustCompile(`^INV-\d{6}-[A-Z0-9]{4}$`)

// New генерирует новый идентификатор инвойса
func New(now time.Time) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand на уровне ОС не отказывает; паника лучше тихого
		// невалидного идентификатора
		panic(fmt.Errorf("invoiceid: rand read failed: %w", err))
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return fmt.Sprintf("INV-%s-%s", now.Format("060102"), string(buf))
}

// Valid проверяет, соответствует ли строка формату идентификатора инвойса
func Valid(id string) bool {
	return pattern.MatchString(id)
}
