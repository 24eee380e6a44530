package identity

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"genquota/internal/models"
)

// ErrNoClientIP is returned when no client IP can be determined from the
// request. Such requests are rejected before any store access.
var ErrNoClientIP = errors.New("unable to determine client IP")

// Resolver turns an HTTP request plus a client-supplied fingerprint into an
// Identity. A bad or absent credential degrades to anonymous rather than
// failing the request.
type Resolver struct {
	verifier Verifier
	salt     string
	maxLen   int
}

// NewResolver creates a resolver. verifier may be nil, in which case every
// caller resolves to anonymous.
func NewResolver(verifier Verifier, cfg models.SecurityConfig) *Resolver {
	return &Resolver{
		verifier: verifier,
		salt:     cfg.IdentitySalt,
		maxLen:   cfg.MaxFingerprintLength,
	}
}

// Resolve produces the caller's Identity. The fingerprint is validated and
// sanitized even for authenticated callers so it can be carried into the
// audit log.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request, fingerprint string) (Identity, error) {
	fp, err := SanitizeFingerprint(fingerprint, r.maxLen)
	if err != nil {
		return Identity{}, err
	}

	ip := ClientIP(req)
	if ip == "" {
		return Identity{}, ErrNoClientIP
	}

	id := Identity{
		IP:          ip,
		Fingerprint: fp,
	}

	if token := bearerToken(req); token != "" && r.verifier != nil {
		userID, err := r.verifier.Verify(ctx, token)
		if err != nil {
			// Deliberate: verification failure never aborts the request,
			// the caller is simply anonymous.
			slog.Debug("credential verification failed, treating as anonymous", "error", err)
		} else {
			id.UserID = userID
			return id, nil
		}
	}

	id.AnonymousID = AnonymousID(r.salt, ip, fp)
	return id, nil
}

// ClientIP extracts the client IP from trusted proxy headers in fixed
// precedence order: X-Forwarded-For (first hop), X-Real-IP, then the
// connection's remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if ip := strings.TrimSpace(ips[0]); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	if r.RemoteAddr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// bearerToken extracts the bearer credential from the Authorization header,
// or "" when absent or malformed.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}
