package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mbocsi/telemux/metrics"
	"github.com/mbocsi/telemux/proto"
)

var errStreamingUnsupported = errors.New("response writer does not support streaming")

// SSEClient streams decoded messages as Server-Sent Events. Each event is
// named after the message kind and carries the message as JSON.
type SSEClient struct {
	ClientMetadata
	writer       http.ResponseWriter
	flusher      http.Flusher
	rc           *http.ResponseController
	kinds        map[proto.Kind]bool
	writeTimeout time.Duration
	metrics      *metrics.Metrics

	wmu sync.Mutex
}

// NewSSEClient wraps w. An empty kinds set streams every kind.
func NewSSEClient(w http.ResponseWriter, r *http.Request, kinds map[proto.Kind]bool, t *SSETransport) (*SSEClient, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}
	return &SSEClient{
		writer:       w,
		flusher:      flusher,
		rc:           http.NewResponseController(w),
		kinds:        kinds,
		writeTimeout: t.writeTimeout,
		metrics:      t.metrics,
		ClientMetadata: ClientMetadata{
			Id:          generateClientId("sse"),
			RemoteAddr:  r.RemoteAddr,
			ConnectedAt: time.Now(),
			Transport:   t,
		},
	}, nil
}

func (s *SSEClient) Send(msg proto.Message) error {
	return s.send(msg, false)
}

func (s *SSEClient) wants(kind proto.Kind) bool {
	return len(s.kinds) == 0 || s.kinds[kind]
}

func (s *SSEClient) send(msg proto.Message, seed bool) error {
	if !s.wants(msg.Kind()) {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", proto.ErrEncode, msg.Kind(), err)
	}

	if err := s.write(fmt.Sprintf("event: %s\nid: %d\ndata: %s\n\n", msg.Kind(), msg.GetHeader().GetSeq(), data)); err != nil {
		return err
	}
	s.FramesSent.Add(1)
	s.metrics.RecordFrameSent(seed)
	slog.Debug("Sent SSE event", "to", s.Id, "kind", msg.Kind(), "size", len(data), "seed", seed)
	return nil
}

// comment writes an SSE comment line, used as a keepalive.
func (s *SSEClient) comment(text string) error {
	return s.write(": " + text + "\n\n")
}

func (s *SSEClient) write(event string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if s.writeTimeout > 0 {
		// not every ResponseWriter supports deadlines
		s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if _, err := fmt.Fprint(s.writer, event); err != nil {
		return fmt.Errorf("write to %s: %w", s.Id, err)
	}
	s.flusher.Flush()
	return nil
}

func (s *SSEClient) Meta() *ClientMetadata {
	return &s.ClientMetadata
}
