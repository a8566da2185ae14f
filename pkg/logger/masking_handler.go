package logger

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mr-tron/base58"
)

// sensitiveFragments mask any attribute whose key contains one of them,
// e.g. "bot_token" or "wallet_private_key".
var sensitiveFragments = []string{
	"password",
	"token",
	"secret",
	"api_key",
	"authorization",
	"private_key",
	"encryption_key",
	"dsn",
}

const (
	maskedValue = "***"

	// A base58 ed25519 secret key (64 bytes) is 86 to 88 characters long.
	minSecretKeyLen = 86
	maxSecretKeyLen = 88
	secretKeyBytes  = 64
)

// MaskingHandler wraps a slog.Handler, masks sensitive attributes and stamps the
// correlation id. String values that decode as a Solana secret key are masked
// whatever their key.
type MaskingHandler struct {
	next slog.Handler
}

func NewMaskingHandler(next slog.Handler) *MaskingHandler {
	return &MaskingHandler{next: next}
}

func (h *MaskingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *MaskingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		masked[i] = maskAttr(attr)
	}
	return &MaskingHandler{next: h.next.WithAttrs(masked)}
}

func (h *MaskingHandler) WithGroup(name string) slog.Handler {
	return &MaskingHandler{next: h.next.WithGroup(name)}
}

func (h *MaskingHandler) Handle(ctx context.Context, record slog.Record) error {
	masked := slog.NewRecord(record.Time, record.Level, maskSecretKeys(record.Message), record.PC)

	record.Attrs(func(attr slog.Attr) bool {
		masked.AddAttrs(maskAttr(attr))
		return true
	})

	if id := CorrelationIDFromContext(ctx); id != "" {
		masked.AddAttrs(slog.String("correlation_id", id))
	}

	return h.next.Handle(ctx, masked)
}

func maskAttr(attr slog.Attr) slog.Attr {
	if isSensitiveKey(attr.Key) {
		return slog.String(attr.Key, maskedValue)
	}

	switch attr.Value.Kind() {
	case slog.KindGroup:
		group := attr.Value.Group()
		masked := make([]any, len(group))
		for i, inner := range group {
			masked[i] = maskAttr(inner)
		}
		return slog.Group(attr.Key, masked...)
	case slog.KindString:
		return slog.String(attr.Key, maskSecretKeys(attr.Value.String()))
	default:
		return attr
	}
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, fragment := range sensitiveFragments {
		if strings.Contains(key, fragment) {
			return true
		}
	}
	return false
}

// maskSecretKeys replaces every whitespace-separated word of s that is a base58
// encoded 64-byte key.
func maskSecretKeys(s string) string {
	if len(s) < minSecretKeyLen {
		return s
	}

	words := strings.Fields(s)
	changed := false
	for i, w := range words {
		if looksLikeSecretKey(w) {
			words[i] = maskedValue
			changed = true
		}
	}
	if !changed {
		return s
	}
	return strings.Join(words, " ")
}

func looksLikeSecretKey(w string) bool {
	if len(w) < minSecretKeyLen || len(w) > maxSecretKeyLen {
		return false
	}
	raw, err := base58.Decode(w)
	return err == nil && len(raw) == secretKeyBytes
}
