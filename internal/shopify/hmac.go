package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// SignQuery computes the hex HMAC-SHA256 Shopify attaches to app URLs: every
// query parameter except hmac, sorted by key, joined as k=v with '&'.
func SignQuery(query url.Values, secret string) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		if k == "hmac" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+query.Get(k))
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(parts, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyQuery reports whether the hmac parameter of query matches secret.
func VerifyQuery(query url.Values, secret string) bool {
	given := strings.ToLower(query.Get("hmac"))
	if given == "" {
		return false
	}
	expected := SignQuery(query, secret)
	return hmac.Equal([]byte(given), []byte(expected))
}
