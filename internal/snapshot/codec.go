// Package snapshot encodes stats records into opaque URL-safe tokens for share links.
package snapshot

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rpggio/rollcall/internal/domain/stats"
)

// QueryParam carries a token in share links.
const QueryParam = "d"

// ErrDecode indicates a token could not be turned back into a record.
var ErrDecode = errors.New("malformed snapshot token")

// Encode serializes rec as unpadded URL-safe base64 of its JSON form.
func Encode(rec stats.Record) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Decode parses a token produced by Encode. Tokens from standard base64 encoders,
// padded or not, are accepted as well.
func Decode(token string) (stats.Record, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return stats.Record{}, fmt.Errorf("%w: empty token", ErrDecode)
	}

	data, err := decodeBase64(token)
	if err != nil {
		return stats.Record{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	rec, err := stats.ParseJSON(data)
	if err != nil {
		return stats.Record{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return rec, nil
}

// ShareURL appends token to base as the d query parameter.
func ShareURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	q := u.Query()
	q.Set(QueryParam, token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Resolve returns what a viewer holding token sees: the newer of current and the
// token's record. It never changes current. A malformed token yields current along
// with the decode error.
func Resolve(current stats.Record, token string) (stats.Record, error) {
	rec, err := Decode(token)
	if err != nil {
		return current, err
	}
	out, _ := stats.Reconcile(current, &rec)
	return out, nil
}

func decodeBase64(token string) ([]byte, error) {
	unpadded := strings.TrimRight(token, "=")
	if strings.ContainsAny(unpadded, "+/") {
		return base64.RawStdEncoding.DecodeString(unpadded)
	}
	return base64.RawURLEncoding.DecodeString(unpadded)
}
