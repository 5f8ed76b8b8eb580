package transport

import (
	"time"

	"lid/internal/classifier"
	"lid/internal/pipeline"
)

// Message is the JSON form of a pipeline.Result.
type Message struct {
	Seq        uint64             `json:"seq"`
	Session    string             `json:"session,omitempty"`
	Time       time.Time          `json:"time"`
	DurationMs float64            `json:"duration_ms"`
	Scores     []classifier.Score `json:"scores,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// NewMessage converts res for the wire.
func NewMessage(res pipeline.Result) Message {
	m := Message{
		Seq:        res.Seq,
		Session:    res.Session,
		Time:       res.At,
		DurationMs: float64(res.Duration) / float64(time.Millisecond),
		Scores:     res.Ranked,
	}
	if res.Err != nil {
		m.Error = res.Err.Error()
	}
	return m
}

// encodable converts results to Messages and passes anything else through.
func encodable(data any) any {
	switch v := data.(type) {
	case pipeline.Result:
		return NewMessage(v)
	case *pipeline.Result:
		return NewMessage(*v)
	default:
		return data
	}
}
