// Package api provides the HTTP API for decoding, encoding and collecting frames.
package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/resident-x/grott-messages/internal/collector"
	"github.com/resident-x/grott-messages/internal/config"
	"github.com/resident-x/grott-messages/internal/domain"
	"github.com/resident-x/grott-messages/internal/protocol"
	"github.com/resident-x/grott-messages/internal/pubsub"
)

// maxRequestBody bounds request bodies; a hex frame doubles the frame size.
const maxRequestBody = 4 * (protocol.DefaultMaxFrameLength + 1024)

// Server represents the HTTP API server.
type Server struct {
	config    *config.Config
	server    *http.Server
	router    *mux.Router
	registry  domain.Registry
	collector *collector.Collector
	codec     *protocol.Codec
	publisher domain.MessagePublisher
	logger    zerolog.Logger
	startTime time.Time
	version   string
}

// Option configures a Server.
type Option func(*Server)

// WithCollector sets the capture collector.
func WithCollector(c *collector.Collector) Option {
	return func(s *Server) {
		s.collector = c
	}
}

// WithCodec sets the codec used by the decode and encode endpoints.
func WithCodec(codec *protocol.Codec) Option {
	return func(s *Server) {
		s.codec = codec
	}
}

// WithPublisher sets the publisher decoded captures are sent to.
func WithPublisher(p domain.MessagePublisher) Option {
	return func(s *Server) {
		s.publisher = p
	}
}

// WithVersion sets the version reported by the status endpoint.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// NewServer creates a new HTTP API server.
func NewServer(cfg *config.Config, registry domain.Registry, opts ...Option) *Server {
	apiServer := &Server{
		config:    cfg,
		router:    mux.NewRouter(),
		registry:  registry,
		logger:    log.With().Str("component", "api").Logger(),
		startTime: time.Now(),
		version:   "dev",
	}
	for _, opt := range opts {
		opt(apiServer)
	}

	if apiServer.codec == nil {
		apiServer.codec = protocol.NewCodec(
			protocol.WithCRCVerification(cfg.Codec.VerifyCRC),
			protocol.WithMaxFrameLength(cfg.Codec.MaxFrameLength),
		)
	}
	if apiServer.collector == nil {
		apiServer.collector = collector.New(cfg.Collector.MaxMessages,
			collector.WithCodec(apiServer.codec),
			collector.WithRegistry(registry),
			collector.WithDataloggerAddress(cfg.Collector.DataloggerAddress),
		)
	}
	if apiServer.publisher == nil {
		apiServer.publisher = pubsub.NewNoopPublisher()
	}

	apiServer.setupRoutes()

	return apiServer
}

// setupRoutes configures all API endpoint handlers.
func (s *Server) setupRoutes() {
	// API versioning
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Server status endpoint
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	// Codec endpoints
	api.HandleFunc("/decode", s.handleDecode).Methods(http.MethodPost)
	api.HandleFunc("/encode", s.handleEncode).Methods(http.MethodPost)

	// Collector endpoints
	api.HandleFunc("/messages", s.handleListMessages).Methods(http.MethodGet)
	api.HandleFunc("/messages", s.handleAddMessage).Methods(http.MethodPost)
	api.HandleFunc("/messages", s.handleResetMessages).Methods(http.MethodDelete)
	api.HandleFunc("/messages/store", s.handleStoreMessages).Methods(http.MethodPost)

	// Dataloggers endpoints
	api.HandleFunc("/dataloggers", s.handleListDataloggers).Methods(http.MethodGet)
	api.HandleFunc("/dataloggers/{id}", s.handleGetDatalogger).Methods(http.MethodGet)
	api.HandleFunc("/dataloggers/{id}/inverters", s.handleListInverters).Methods(http.MethodGet)
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Collector returns the capture collector behind the messages endpoints.
func (s *Server) Collector() *collector.Collector {
	return s.collector
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.API.Host, s.config.API.Port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info().
			Str("host", s.config.API.Host).
			Int("port", s.config.API.Port).
			Msg("Starting HTTP API server")

		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping HTTP API server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown error: %w", err)
		}
	}

	return nil
}

// handleStatus returns server status information.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := map[string]interface{}{
		"status":          "ok",
		"version":         s.version,
		"uptime":          time.Since(s.startTime).String(),
		"dataloggerCount": len(s.registry.GetAllDataloggers()),
		"messageCount":    s.collector.Len(),
		"maxMessages":     s.collector.Max(),
	}

	s.writeJSON(w, status, http.StatusOK)
}

type decodeRequest struct {
	Data      string `json:"data"`
	Direction string `json:"direction,omitempty"`
	Source    string `json:"source,omitempty"`
}

type decodeResponse struct {
	Message  json.RawMessage `json:"message"`
	Leftover string          `json:"leftover,omitempty"`
	Values   interface{}     `json:"values,omitempty"`
}

// handleDecode decodes one hex encoded frame.
//
// The registries are chosen by direction when given, otherwise by source
// address, otherwise both are searched (server first).
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	format, err := ParseValueFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req decodeRequest
	if err := s.readJSON(w, r, &req); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	raw, err := decodeHex(req.Data)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var registries []*protocol.Registry
	switch {
	case req.Direction != "":
		direction, err := protocol.ParseDirection(req.Direction)
		if err != nil {
			s.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		registries = []*protocol.Registry{protocol.RegistryFor(direction)}
	case req.Source != "":
		registries = protocol.SelectRegistries(req.Source, s.config.Collector.DataloggerAddress)
	}

	msg, leftover, err := s.codec.Deserialize(raw, registries...)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	doc, err := protocol.MarshalMessage(msg)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := decodeResponse{
		Message:  doc,
		Leftover: hex.EncodeToString(leftover),
	}
	if values, ok := protocol.RegisterValues(msg); ok {
		resp.Values = FormatValues(values, format)
	}

	s.writeJSON(w, resp, http.StatusOK)
}

type encodeRequest struct {
	Message    json.RawMessage `json:"message"`
	BodyLength *uint16         `json:"body_length,omitempty"`
}

// handleEncode serializes a message document to a hex frame.
func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	var req encodeRequest
	if err := s.readJSON(w, r, &req); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Message) == 0 {
		s.writeError(w, "message is required", http.StatusBadRequest)
		return
	}

	msg, err := protocol.UnmarshalMessage(req.Message)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var opts []protocol.SerializeOption
	if req.BodyLength != nil {
		opts = append(opts, protocol.WithBodyLength(*req.BodyLength))
	}

	raw, err := s.codec.Serialize(msg, opts...)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	s.writeJSON(w, map[string]interface{}{
		"variant": protocol.VariantName(msg),
		"data":    hex.EncodeToString(raw),
		"length":  len(raw),
	}, http.StatusOK)
}

// handleListMessages returns the collected captures.
func (s *Server) handleListMessages(w http.ResponseWriter, _ *http.Request) {
	messages := s.collector.Export()
	s.writeJSON(w, map[string]interface{}{
		"messages": messages,
		"count":    len(messages),
	}, http.StatusOK)
}

type addMessageRequest struct {
	Data    string `json:"data"`
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// handleAddMessage stores a capture and publishes it when it decodes.
func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	var req addMessageRequest
	if err := s.readJSON(w, r, &req); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	raw, err := decodeHex(req.Data)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	capture, err := s.collector.Add(raw, req.Address, req.Port)
	if err != nil {
		if errors.Is(err, collector.ErrCollectorFull) {
			s.writeError(w, err.Error(), http.StatusInsufficientStorage)
			return
		}
		s.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"record_type": capture.RecordType(),
		"count":       s.collector.Len(),
	}

	msg, err := s.collector.Decode(capture)
	if err != nil {
		resp["error"] = err.Error()
	} else {
		resp["variant"] = protocol.VariantName(msg)
		if err := pubsub.PublishMessage(r.Context(), s.publisher, s.config.MQTT.Topic, msg); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to publish decoded message")
		}
	}

	s.writeJSON(w, resp, http.StatusCreated)
}

// handleResetMessages drops all collected captures.
func (s *Server) handleResetMessages(w http.ResponseWriter, _ *http.Request) {
	s.collector.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// storeRequest carries no fields. Captures are always written to the
// configured store path with the configured filename template, so any
// field in the body is rejected.
type storeRequest struct{}

// handleStoreMessages writes the collected captures to disk.
func (s *Server) handleStoreMessages(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength != 0 {
		var req storeRequest
		if err := s.readJSON(w, r, &req); err != nil {
			s.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	path := s.config.Collector.StorePath
	entries, err := s.collector.Store(path, s.config.Collector.FilenameTemplate)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		files = append(files, e.File)
	}

	s.writeJSON(w, map[string]interface{}{
		"path":  path,
		"files": files,
		"count": len(files),
	}, http.StatusOK)
}

// handleListDataloggers returns a list of all dataloggers.
func (s *Server) handleListDataloggers(w http.ResponseWriter, _ *http.Request) {
	dataloggers := s.registry.GetAllDataloggers()

	result := make([]map[string]interface{}, 0, len(dataloggers))
	for _, dl := range dataloggers {
		result = append(result, dataloggerSummary(dl))
	}

	s.writeJSON(w, map[string]interface{}{
		"dataloggers": result,
		"count":       len(result),
	}, http.StatusOK)
}

// handleGetDatalogger returns information about a specific datalogger.
func (s *Server) handleGetDatalogger(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	datalogger, found := s.registry.GetDatalogger(id)
	if !found {
		s.writeError(w, "Datalogger not found", http.StatusNotFound)
		return
	}

	s.writeJSON(w, dataloggerSummary(datalogger), http.StatusOK)
}

// handleListInverters returns a list of inverters for a specific datalogger.
func (s *Server) handleListInverters(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	inverters, found := s.registry.GetInverters(id)
	if !found {
		s.writeError(w, "Datalogger not found", http.StatusNotFound)
		return
	}

	result := make([]map[string]interface{}, 0, len(inverters))
	for _, inv := range inverters {
		result = append(result, map[string]interface{}{
			"id":          inv.ID,
			"deviceId":    inv.DeviceID,
			"lastContact": inv.LastContact,
		})
	}

	s.writeJSON(w, map[string]interface{}{
		"datalogger": id,
		"inverters":  result,
		"count":      len(result),
	}, http.StatusOK)
}

func dataloggerSummary(dl *domain.DataloggerInfo) map[string]interface{} {
	return map[string]interface{}{
		"id":            dl.ID,
		"ip":            dl.IP,
		"port":          dl.Port,
		"protocol":      dl.Protocol,
		"lastContact":   dl.LastContact,
		"inverterCount": len(dl.Inverters),
	}
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return nil, errors.New("data is required")
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return raw, nil
}

// readJSON decodes a bounded JSON request body.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := map[string]string{"error": message}
	if err := json.NewEncoder(w).Encode(errorResponse); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode error response")
	}
}
