package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/opencanvas/canvas-core/internal/infrastructure/config"
)

// defaultTicketTTL applies when no ticket lifetime is configured.
const defaultTicketTTL = 60 * time.Second

// ticketIssuer issues and validates short-lived single-use WebSocket
// tickets. Tickets are signed JWTs, so validity needs no server-side
// state; only replay prevention does, via the used-ID set.
type ticketIssuer struct {
	secret []byte
	ttl    time.Duration

	mu   sync.Mutex
	used map[string]time.Time // jti -> expiry, for replay rejection
}

func newTicketIssuer(cfg config.SecurityConfig) *ticketIssuer {
	ttl := time.Duration(cfg.TicketTTL) * time.Second
	if ttl <= 0 {
		ttl = defaultTicketTTL
	}
	return &ticketIssuer{
		secret: []byte(cfg.TicketSecret),
		ttl:    ttl,
		used:   make(map[string]time.Time),
	}
}

// issue creates a signed ticket valid for the configured TTL.
func (t *ticketIssuer) issue() (string, error) {
	if len(t.secret) == 0 {
		return "", fmt.Errorf("ticket secret not configured")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   now.Add(t.ttl).Unix(),
		"scope": "ws",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// validate checks a ticket's signature and expiry and consumes it.
// A ticket presented twice fails the second time.
func (t *ticketIssuer) validate(ticket string) bool {
	if len(t.secret) == 0 {
		return false
	}

	token, err := jwt.Parse(ticket, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return false
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, replayed := t.used[jti]; replayed {
		return false
	}
	t.used[jti] = time.Now().Add(t.ttl)
	return true
}

// cleanLoop purges consumed ticket IDs after they can no longer
// validate anyway, keeping the replay set bounded.
func (t *ticketIssuer) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(t.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			now := time.Now()
			for jti, expiry := range t.used {
				if now.After(expiry) {
					delete(t.used, jti)
				}
			}
			t.mu.Unlock()
		}
	}
}

// handleWSTicket generates a single-use WebSocket authentication
// ticket. The client passes it as a query parameter when opening the
// WebSocket, keeping the long-lived API token out of URLs.
func (s *Server) handleWSTicket(w http.ResponseWriter, _ *http.Request) {
	ticket, err := s.tickets.issue()
	if err != nil {
		writeInternalError(w, "websocket tickets are not configured")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(s.tickets.ttl.Seconds()),
	})
}
