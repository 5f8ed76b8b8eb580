package transport

import (
	"strings"
	"time"

	"lid/internal/pipeline"
)

// LoggingTransport implements the Transport interface by logging results.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	logger.Infof("using logging transport")
	return &LoggingTransport{}
}

// Send logs the received data. Results are logged as ranked text.
func (lt *LoggingTransport) Send(data any) error {
	res, ok := data.(pipeline.Result)
	if !ok {
		logger.Infof("received (%T): %+v", data, data)
		return nil
	}
	if res.Err != nil {
		logger.Errorf("result %d: %v", res.Seq, res.Err)
		return nil
	}
	text := strings.ReplaceAll(strings.TrimSpace(res.Ranked.String()), "\n", ", ")
	logger.Infof("result %d (%s): %s", res.Seq, res.Duration.Round(time.Millisecond), text)
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
