package delta

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Sign computes the request signature: hex HMAC-SHA256 over
// method + timestamp + path + query + body keyed by the API secret.
func Sign(secret, method, timestamp, path, query, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(method + timestamp + path + query + body))
	return hex.EncodeToString(mac.Sum(nil))
}

// QueryString renders params as "?k1=v1&k2=v2" with keys sorted, or "" when empty
func QueryString(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteByte('?')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(params[k])
	}
	return sb.String()
}
