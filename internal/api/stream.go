package api

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/toothsense-analysis-server/internal/domain"
	"github.com/toothsense-analysis-server/internal/middleware"
	"github.com/toothsense-analysis-server/internal/service"
)

const writeWait = 10 * time.Second

// Stream message types
const (
	MessageStage  = "stage"
	MessageResult = "result"
	MessageError  = "error"
)

// StreamRequest is one analysis submitted over the stream.
type StreamRequest struct {
	ImageType   string `json:"image_type"`
	ImageBase64 string `json:"image_base64"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// StreamMessage is sent to the client for every stage event and once more
// with the outcome of each analysis.
type StreamMessage struct {
	Type       string                `json:"type"`
	AnalysisID string                `json:"analysis_id,omitempty"`
	Event      *domain.StageEvent    `json:"event,omitempty"`
	Result     *domain.UnifiedResult `json:"result,omitempty"`
	Error      *domain.APIError      `json:"error,omitempty"`
}

// streamConn serializes writes to one websocket connection.
type streamConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *streamConn) send(msg StreamMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

// handleAnalyzeStream upgrades to a websocket that accepts StreamRequest
// messages and streams stage events back. Each connection owns one session,
// so a request sent while an analysis is running is rejected.
func (s *Server) handleAnalyzeStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	connID := c.GetString(middleware.CorrelationIDKey)
	log := s.logger.WithField("connection_id", connID)
	log.Info("Analysis stream opened")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &streamConn{conn: conn}
	session := service.NewSession(s.orchestrator)
	maxBytes := s.configManager.GetConfig().Analysis.MaxImageBytes
	conn.SetReadLimit(int64(base64.StdEncoding.EncodedLen(int(maxBytes))) + formSlack)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		var msg StreamRequest
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("Analysis stream read ended")
			}
			// Cancels any run still pacing
			cancel()
			return
		}

		req, apiErr := decodeStreamRequest(msg)
		if apiErr != nil {
			apiErr.RequestID = connID
			_ = out.send(StreamMessage{Type: MessageError, Error: apiErr})
			continue
		}
		if session.Busy() {
			_ = out.send(StreamMessage{Type: MessageError, Error: domain.NewAPIError("ANALYSIS_IN_FLIGHT", "An analysis is already running", "", connID)})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runStreamed(ctx, log, out, session, req)
		}()
	}
}

func (s *Server) runStreamed(ctx context.Context, log *logrus.Entry, out *streamConn, session *service.Session, req domain.AnalysisRequest) {
	observer := domain.StageObserverFunc(func(event domain.StageEvent) {
		if err := out.send(StreamMessage{Type: MessageStage, AnalysisID: event.AnalysisID, Event: &event}); err != nil {
			log.WithError(err).Debug("Stage event not delivered")
		}
	})

	result, err := session.Run(ctx, req, observer)
	if err != nil {
		_, body := analysisFailure(err, req.ID)
		_ = out.send(StreamMessage{Type: MessageError, AnalysisID: req.ID, Error: body})
		return
	}
	_ = out.send(StreamMessage{Type: MessageResult, AnalysisID: req.ID, Result: result})
}

func decodeStreamRequest(msg StreamRequest) (domain.AnalysisRequest, *domain.APIError) {
	req := domain.AnalysisRequest{ID: uuid.New().String()}

	if msg.ImageType != "" {
		kind, err := domain.ParseImageKind(msg.ImageType)
		if err != nil {
			return req, domain.NewAPIError(domain.ErrInvalidInput, "Invalid analysis request", err.Error(), "")
		}
		req.Kind = kind
	}

	data, err := base64.StdEncoding.DecodeString(msg.ImageBase64)
	if err != nil {
		return req, domain.NewAPIError(domain.ErrInvalidInput, "Invalid analysis request", "image_base64 is not valid base64", "")
	}

	req.Image = domain.Image{Data: data, Filename: msg.Filename, ContentType: msg.ContentType}
	return req, nil
}
