package logger

import (
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

// Field is a key/value pair printed after a log message.
type Field interface {
	Key() string
	String() string
}

type Fields []Field

// valueField defers formatting until the field is printed, so fields on
// suppressed debug lines cost nothing.
type valueField struct {
	key    string
	format func() string
}

func (f valueField) Key() string    { return f.key }
func (f valueField) String() string { return f.format() }

func StringField(key, value string) Field {
	return valueField{key: key, format: func() string { return value }}
}

func IntField(key string, value int) Field {
	return valueField{key: key, format: func() string { return strconv.Itoa(value) }}
}

func DurationField(key string, value time.Duration) Field {
	return valueField{key: key, format: value.String}
}

// SizeField prints a byte count in human units, e.g. "1.2 kB".
func SizeField(key string, bytes int) Field {
	return valueField{key: key, format: func() string {
		if bytes < 0 {
			return strconv.Itoa(bytes)
		}
		return humanize.Bytes(uint64(bytes))
	}}
}

// ErrorField records err under the "error" key.
func ErrorField(err error) Field {
	return valueField{key: "error", format: func() string {
		if err == nil {
			return "<nil>"
		}
		return err.Error()
	}}
}
