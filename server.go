package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"i4.energy/across/simmqtt/modem"
	"i4.energy/across/simmqtt/mqtt"
)

// Server handles incoming HTTP requests for interacting with the
// configured modem session
type Server struct {
	Logger *slog.Logger
	Bridge *Bridge
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /publish", s.handlePublish)
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /messages", s.handleMessages)
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	s.sendJSON(w, resp, statusCode)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// handlePublish sends one message to the broker
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	type PublishRequest struct {
		Topic   string `json:"topic"`
		Payload string `json:"payload"`
		QoS     int    `json:"qos"`
		Retain  bool   `json:"retain"`
	}

	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Topic == "" {
		s.sendError(w, "'topic' field is required", http.StatusBadRequest)
		return
	}
	if req.QoS != 0 && req.QoS != 1 {
		s.sendError(w, "'qos' must be 0 or 1", http.StatusBadRequest)
		return
	}

	var id uint16
	if req.QoS == 1 {
		id = s.Bridge.NextID()
	}
	err := s.Bridge.Session.Publish(req.Topic, []byte(req.Payload), false, mqtt.QoS(req.QoS), req.Retain, id)
	switch {
	case errors.Is(err, modem.ErrInvalidState):
		s.sendError(w, err.Error(), http.StatusServiceUnavailable)
		return
	case errors.Is(err, modem.ErrAckPending):
		s.sendError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		s.Logger.Error("Failed to publish", "error", err, "topic", req.Topic)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.Logger.Info("Published", "topic", req.Topic, "payload_length", len(req.Payload), "qos", req.QoS, "id", id)
	type PublishResponse struct {
		ID uint16 `json:"id,omitempty"`
	}
	s.sendJSON(w, PublishResponse{ID: id}, http.StatusAccepted)
}

// handleState reports the connection state of the modem
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	type StateResponse struct {
		State         string     `json:"state"`
		MQTTConnected bool       `json:"mqtt_connected"`
		LocalIP       string     `json:"local_ip,omitempty"`
		NetworkTime   *time.Time `json:"network_time,omitempty"`
		Overruns      uint64     `json:"overruns"`
	}

	sess := s.Bridge.Session
	resp := StateResponse{
		State:         sess.State().String(),
		MQTTConnected: sess.IsMQTTConnected(),
		LocalIP:       sess.LocalIP(),
		Overruns:      sess.Overruns(),
	}
	if t := sess.NetworkTime(); !t.IsZero() {
		resp.NetworkTime = &t
	}
	s.sendJSON(w, resp, http.StatusOK)
}

// handleMessages lists the latest messages received on the subscription
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	type Message struct {
		Topic     string `json:"topic"`
		Payload   string `json:"payload"`
		QoS       int    `json:"qos"`
		Retain    bool   `json:"retain"`
		Truncated bool   `json:"truncated,omitempty"`
	}

	msgs := []Message{}
	for _, m := range s.Bridge.Recent() {
		msgs = append(msgs, Message{
			Topic:     m.Topic,
			Payload:   string(m.Payload),
			QoS:       int(m.QoS),
			Retain:    m.Retain,
			Truncated: m.Truncated,
		})
	}
	s.sendJSON(w, msgs, http.StatusOK)
}
