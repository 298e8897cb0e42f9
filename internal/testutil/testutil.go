// Package testutil holds the HTTP harness shared by handler tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dfworx/chat-backend/internal/chat"
	"github.com/dfworx/chat-backend/internal/metrics"
	"github.com/dfworx/chat-backend/internal/middleware"
	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/internal/store"
	"github.com/dfworx/chat-backend/internal/tenant"
)

// Envelope mirrors response.Body with raw data.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Field   string          `json:"field"`
}

// Decode unmarshals the data field into v.
func (e Envelope) Decode(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.Data, v))
}

// NewScope returns a caller in a fresh organization.
func NewScope(role models.Role) tenant.Scope {
	return tenant.Scope{OrganizationID: uuid.New(), UserID: uuid.New(), Role: role, Email: "tester@example.test"}
}

// Peer returns another caller of the same organization.
func Peer(sc tenant.Scope, role models.Role) tenant.Scope {
	return tenant.Scope{OrganizationID: sc.OrganizationID, UserID: uuid.New(), Role: role}
}

// NewChat returns a chat service over an in-memory store.
func NewChat(opts chat.Options) (*chat.Service, *store.Memory) {
	st := store.NewMemory()
	return chat.NewService(chat.Deps{Store: st, Metrics: metrics.New()}, opts), st
}

// Server is a gin engine whose requests run as the current scope.
type Server struct {
	Engine *gin.Engine
	API    *gin.RouterGroup
	scope  *tenant.Scope
}

// NewServer builds a Server acting as sc.
func NewServer(sc tenant.Scope) *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{Engine: gin.New(), scope: &sc}
	s.API = s.Engine.Group("")
	s.API.Use(func(c *gin.Context) {
		if s.scope != nil {
			middleware.SetScope(c, *s.scope)
		}
	})
	return s
}

// As switches the acting scope for subsequent requests.
func (s *Server) As(sc tenant.Scope) *Server {
	s.scope = &sc
	return s
}

// Anonymous drops the scope so requests look unauthenticated.
func (s *Server) Anonymous() *Server {
	s.scope = nil
	return s
}

// Do sends a request with an optional JSON body and decodes the envelope.
// A 204 or non-JSON response yields an empty envelope.
func (s *Server) Do(t *testing.T, method, path string, body interface{}) (int, Envelope) {
	t.Helper()
	w := s.Raw(t, method, path, body)
	var env Envelope
	if w.Code != http.StatusNoContent && json.Valid(w.Body.Bytes()) {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

// Raw sends a request and returns the recorder.
func (s *Server) Raw(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Engine.ServeHTTP(w, req)
	return w
}
