package audit

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"

	// UnknownOrigin is recorded when no address source is available.
	UnknownOrigin = "unknown"

	DefaultClientTag = "attendance-api"
)

var ErrAnonymousActor = errors.New("audit: mutating command requires an authenticated actor")

// Actor is anything that can be held accountable for a command.
type Actor interface {
	ActorID() string
}

// Context is computed per request and threaded into every mutating command
// as trailing positional arguments. It is never persisted on its own.
type Context struct {
	ActorID            string `json:"actor_id"`
	OriginAddress      string `json:"origin_address"`
	SessionFingerprint string `json:"session_fingerprint"`
}

// Args returns the triple in the order procedures expect it.
func (c Context) Args() []any {
	return []any{c.ActorID, c.OriginAddress, c.SessionFingerprint}
}

type Builder struct {
	ClientTag string
	Now       func() time.Time
}

func NewBuilder(clientTag string) *Builder {
	if clientTag == "" {
		clientTag = DefaultClientTag
	}
	return &Builder{ClientTag: clientTag, Now: time.Now}
}

func (b *Builder) Build(r *http.Request, actor Actor) (Context, error) {
	if actor == nil {
		return Context{}, ErrAnonymousActor
	}
	actorID := strings.TrimSpace(actor.ActorID())
	if actorID == "" {
		return Context{}, ErrAnonymousActor
	}

	now := time.Now
	if b.Now != nil {
		now = b.Now
	}

	return Context{
		ActorID:            actorID,
		OriginAddress:      OriginAddress(r),
		SessionFingerprint: fmt.Sprintf("%s-%s-%d", b.ClientTag, actorID, now().UnixMilli()),
	}, nil
}

// OriginAddress resolves the caller address: forwarded-for, real-ip, socket
// host, raw remote address, then UnknownOrigin.
func OriginAddress(r *http.Request) string {
	if r == nil {
		return UnknownOrigin
	}
	if xff := r.Header.Get(headerForwardedFor); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get(headerRealIP)); realIP != "" {
		return realIP
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return UnknownOrigin
	}
	if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
		return host
	}
	return remote
}
