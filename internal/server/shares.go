package server

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"github.com/runvault/runvault/internal/storage"
	"github.com/runvault/runvault/pkg/api"
)

// ShareClaims are the JWT claims carried by a share link token.
type ShareClaims struct {
	URI string `json:"uri"`
	jwt.RegisteredClaims
}

// deriveShareKey derives the share signing key from the API auth token.
// Rotating the auth token therefore invalidates all outstanding links.
func deriveShareKey(authToken string) ([]byte, error) {
	reader := hkdf.New(sha256.New, []byte(authToken), nil, []byte("share-signing-key"))
	key := make([]byte, 32)
	if _, err := reader.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateShareToken mints a signed download token for uri, valid for ttl.
func (s *Server) GenerateShareToken(uri string, ttl time.Duration) (string, time.Time, error) {
	if s.shareKey == nil {
		return "", time.Time{}, fmt.Errorf("shares are not enabled")
	}

	expiresAt := time.Now().Add(ttl)
	claims := &ShareClaims{
		URI: uri,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "runvault",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.shareKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign share token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateShareToken verifies a share token signature and expiry and
// returns its claims.
func (s *Server) ValidateShareToken(tokenString string) (*ShareClaims, error) {
	if s.shareKey == nil {
		return nil, fmt.Errorf("shares are not enabled")
	}

	token, err := jwt.ParseWithClaims(tokenString, &ShareClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.shareKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*ShareClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid share token")
	}
	return claims, nil
}

// handleShares mints share links for existing objects.
func (s *Server) handleShares(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.withVaultMetrics(w, "create_share", func(w http.ResponseWriter) {
		var req api.ShareRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateURIParam(req.URI); err != nil {
			s.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}

		ttl := s.shareTTL
		if req.TTL != "" {
			parsed, err := time.ParseDuration(req.TTL)
			if err != nil {
				s.jsonError(w, "invalid ttl: "+err.Error(), http.StatusBadRequest)
				return
			}
			ttl = parsed
		}
		if ttl <= 0 {
			s.jsonError(w, "ttl must be positive", http.StatusBadRequest)
			return
		}

		if !s.store.Exists(r.Context(), req.URI) {
			s.jsonError(w, "object not found", http.StatusNotFound)
			return
		}

		token, expiresAt, err := s.GenerateShareToken(req.URI, ttl)
		if err != nil {
			s.jsonError(w, "create share: "+err.Error(), http.StatusInternalServerError)
			return
		}

		if s.metrics != nil {
			s.metrics.SharesIssued.Inc()
		}
		s.audit.LogShare("issue", req.URI, "ok", "ttl="+ttl.String(), clientIP(r))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.ShareResponse{
			Token:     token,
			Path:      "/share/" + token,
			ExpiresAt: expiresAt,
		})
	})
}

// handleShareRedeem streams a shared object's payload. The token in the
// URL is the only credential; bearer auth is not required.
func (s *Server) handleShareRedeem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.withVaultMetrics(w, "redeem_share", func(w http.ResponseWriter) {
		token := strings.TrimPrefix(r.URL.Path, "/share/")
		if token == "" {
			s.jsonError(w, "share token is required", http.StatusBadRequest)
			return
		}

		claims, err := s.ValidateShareToken(token)
		if err != nil {
			s.audit.LogShare("redeem", "", "denied", "invalid or expired token", clientIP(r))
			s.jsonError(w, "invalid or expired share token", http.StatusUnauthorized)
			return
		}

		data, err := s.store.GetData(r.Context(), claims.URI)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				s.audit.LogShare("redeem", claims.URI, "denied", "object no longer exists", clientIP(r))
				s.jsonError(w, "shared object no longer exists", http.StatusNotFound)
				return
			}
			s.storageError(w, err)
			return
		}

		if s.metrics != nil {
			s.metrics.SharesRedeemed.Inc()
			s.metrics.RecordDownload(int64(len(data)))
		}
		s.audit.LogShare("redeem", claims.URI, "ok", "", clientIP(r))

		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(claims.URI)+`"`)
		_, _ = w.Write(data)
	})
}
