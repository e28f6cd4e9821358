// Пакет token: генерация кодов доступа, кодируемых в QR.
//
// Код: фиксированный префикс и цифровой суффикс фиксированной ширины
// (SV-01234). Уникальность не гарантируется: вызывающая сторона
// проверяет её ограничением в БД и повторяет попытку при коллизии.
package token

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"regexp"
)

// Значения по умолчанию.
const (
	DefaultPrefix = "SV-"
	DefaultDigits = 5
)

// Generator: генератор кодов доступа. Безопасен для конкурентного использования.
type Generator struct {
	prefix string
	digits int
	max    *big.Int
	random io.Reader
	format string
}

// Option: опция генератора.
type Option func(*Generator)

// WithRandom задаёт источник случайности (для тестов).
func WithRandom(r io.Reader) Option {
	return func(g *Generator) { g.random = r }
}

// NewGenerator создаёт генератор с префиксом и шириной цифрового суффикса.
func NewGenerator(prefix string, digits int, opts ...Option) *Generator {
	if digits < 1 || digits > 18 {
		digits = DefaultDigits
	}
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	g := &Generator{
		prefix: prefix,
		digits: digits,
		max:    max,
		random: rand.Reader,
		format: fmt.Sprintf("%%s%%0%dd", digits),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewDefault создаёт генератор формата SV-NNNNN.
func NewDefault() *Generator {
	return NewGenerator(DefaultPrefix, DefaultDigits)
}

// Generate возвращает новый код доступа.
func (g *Generator) Generate() (string, error) {
	n, err := rand.Int(g.random, g.max)
	if err != nil {
		return "", fmt.Errorf("генерация кода доступа: %w", err)
	}
	return fmt.Sprintf(g.format, g.prefix, n.Int64()), nil
}

// Pattern возвращает регулярное выражение формата кодов генератора.
func (g *Generator) Pattern() *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`^%s\d{%d}$`, regexp.QuoteMeta(g.prefix), g.digits))
}
