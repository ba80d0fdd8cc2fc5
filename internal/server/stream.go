package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"parkterrain/internal/heightfield"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type heightBatchRequest struct {
	Points []heightfield.Point `json:"points"`
}

type heightBatchResponse struct {
	Heights []float64 `json:"heights"`
	Error   string    `json:"error,omitempty"`
}

// handleHeightStream answers batches of points over a websocket until the
// client goes away. A bad batch gets an error reply and the stream stays open.
func (s *Server) handleHeightStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	for {
		var req heightBatchRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Printf("height stream closed: %v", err)
			}
			return
		}

		resp := s.answerBatch(req)
		if err := conn.WriteJSON(resp); err != nil {
			s.logger.Printf("height stream write: %v", err)
			return
		}
	}
}

func (s *Server) answerBatch(req heightBatchRequest) heightBatchResponse {
	if len(req.Points) > s.cfg.Server.MaxGridSamples {
		return heightBatchResponse{Error: fmt.Sprintf("batch of %d points exceeds %d", len(req.Points), s.cfg.Server.MaxGridSamples)}
	}
	heights := s.field.EvaluatePoints(req.Points)
	if heights == nil {
		heights = []float64{}
	}
	return heightBatchResponse{Heights: heights}
}
