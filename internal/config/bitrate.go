package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Bitrate - битрейт в битах в секунду.
// Текстовая форма совпадает с синтаксисом ffmpeg: 500k, 2M, 128000.
type Bitrate int64

const (
	Kilobit Bitrate = 1000
	Megabit Bitrate = 1000 * Kilobit
)

// ParseBitrate разбирает строку вида "500k", "2M", "1.5M" или "128000".
func ParseBitrate(s string) (Bitrate, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("пустой битрейт")
	}

	mult := Bitrate(1)
	switch s[len(s)-1] {
	case 'k', 'K':
		mult = Kilobit
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = Megabit
		s = s[:len(s)-1]
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("некорректный битрейт %q", s)
	}
	return Bitrate(f * float64(mult)), nil
}

// String возвращает компактную форму для ffmpeg.
func (b Bitrate) String() string {
	switch {
	case b != 0 && b%Megabit == 0:
		return strconv.FormatInt(int64(b/Megabit), 10) + "M"
	case b != 0 && b%Kilobit == 0:
		return strconv.FormatInt(int64(b/Kilobit), 10) + "k"
	}
	return strconv.FormatInt(int64(b), 10)
}

// MarshalText реализует encoding.TextMarshaler.
func (b Bitrate) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler.
func (b *Bitrate) UnmarshalText(text []byte) error {
	v, err := ParseBitrate(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}
