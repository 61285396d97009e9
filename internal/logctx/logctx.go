package logctx

import (
	"context"
	"log/slog"
)

// Handler decorates every record with the account, session and ceremony
// attributes carried by the context.
type Handler struct {
	slog.Handler
}

// Wrap returns a logger whose handler is h decorated with the context groups.
// A nil logger yields one that discards everything.
func Wrap(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	if _, ok := l.Handler().(Handler); ok {
		return l
	}
	return slog.New(Handler{Handler: l.Handler()})
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if ad, ok := ctx.Value(accountDataKey{}).(*AccountData); ok {
		r.AddAttrs(slog.Group("acct",
			slog.String("address", ad.Address),
			slog.Uint64("chain_id", ad.ChainID),
		))
	}

	if sd, ok := ctx.Value(sessionDataKey{}).(*SessionData); ok {
		r.AddAttrs(slog.Group("sess",
			slog.String("id", sd.SessionID),
			slog.String("kind", sd.Kind),
		))
	}

	if cd, ok := ctx.Value(ceremonyDataKey{}).(*CeremonyData); ok {
		r.AddAttrs(slog.Group("ceremony",
			slog.String("type", cd.Type),
			slog.String("challenge", cd.Challenge),
			slog.String("key_id", cd.KeyID),
		))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

type accountDataKey struct{}

type AccountData struct {
	Address string
	ChainID uint64
}

func WithAccountData(ctx context.Context, data *AccountData) context.Context {
	return context.WithValue(ctx, accountDataKey{}, data)
}

type sessionDataKey struct{}

type SessionData struct {
	SessionID string
	Kind      string
}

func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return context.WithValue(ctx, sessionDataKey{}, data)
}

type ceremonyDataKey struct{}

// CeremonyData identifies one round trip with the threshold network.
type CeremonyData struct {
	Type      string
	Challenge string
	KeyID     string
}

func WithCeremonyData(ctx context.Context, data *CeremonyData) context.Context {
	return context.WithValue(ctx, ceremonyDataKey{}, data)
}
