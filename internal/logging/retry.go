package logging

import (
	"fmt"
	"net/url"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// RetryLogger adapts Logger to retryablehttp.LeveledLogger. Request URLs in
// the key/value pairs are redacted.
type RetryLogger struct {
	l *Logger
}

var _ retryablehttp.LeveledLogger = (*RetryLogger)(nil)

// NewRetryLogger wraps l for use as retryablehttp.Client.Logger.
func NewRetryLogger(l *Logger) *RetryLogger {
	return &RetryLogger{l: l}
}

func (r *RetryLogger) Error(msg string, keysAndValues ...interface{}) {
	r.event(r.l.Error(), keysAndValues).Msg(msg)
}

// Info is demoted to debug: retryablehttp logs every request at info.
func (r *RetryLogger) Info(msg string, keysAndValues ...interface{}) {
	r.event(r.l.Debug(), keysAndValues).Msg(msg)
}

func (r *RetryLogger) Debug(msg string, keysAndValues ...interface{}) {
	r.event(r.l.Debug(), keysAndValues).Msg(msg)
}

func (r *RetryLogger) Warn(msg string, keysAndValues ...interface{}) {
	r.event(r.l.Warn(), keysAndValues).Msg(msg)
}

func (r *RetryLogger) event(e *zerolog.Event, kv []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		switch v := kv[i+1].(type) {
		case string:
			if key == "url" || key == "request" {
				v = RedactURL(v)
			}
			e = e.Str(key, v)
		case *url.URL:
			e = e.Str(key, RedactURL(v.String()))
		case error:
			e = e.AnErr(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}
