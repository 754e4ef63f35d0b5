// pkg/electrician/relay.go
package electrician

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// RelayRequest is the byte-level publish envelope.
type RelayRequest struct {
	Topic   string
	Body    []byte
	Headers map[string]string
}

// RelayClient is the publish side the load publisher needs.
type RelayClient interface {
	Publish(ctx context.Context, rr RelayRequest) error
	Close()
}

// noopRelay accepts publishes and discards them.
type noopRelay struct{}

func (noopRelay) Publish(context.Context, RelayRequest) error { return nil }
func (noopRelay) Close()                                      {}

// RelayOptions selects transport features for the forward relay.
type RelayOptions struct {
	Targets []string

	TLSEnable    bool
	TLSClientCrt string
	TLSClientKey string
	TLSCA        string

	CompressSnappy bool
	EncryptAESGCM  bool
	AESKey         string // 32 raw bytes

	StaticHeaders map[string]string
}

// RelayOptionsFromEnv reads transport toggles from the environment. target is a
// comma separated host:port list (config already folds in ELECTRICIAN_TARGET).
//
//	ELECTRICIAN_TLS_ENABLE      = "true" | "false"
//	ELECTRICIAN_TLS_CLIENT_CRT  = path (default: keys/tls/client.crt)
//	ELECTRICIAN_TLS_CLIENT_KEY  = path (default: keys/tls/client.key)
//	ELECTRICIAN_TLS_CA          = path (default: keys/tls/ca.crt)
//	ELECTRICIAN_COMPRESS        = "snappy" | ""
//	ELECTRICIAN_ENCRYPT         = "aesgcm" | ""
//	ELECTRICIAN_AES256_KEY_HEX  = 64 hex chars
//	ELECTRICIAN_STATIC_HEADERS  = "k=v,k2=v2"
func RelayOptionsFromEnv(target string) (RelayOptions, error) {
	o := RelayOptions{
		Targets:        splitCSV(target),
		TLSEnable:      strings.EqualFold(os.Getenv("ELECTRICIAN_TLS_ENABLE"), "true"),
		TLSClientCrt:   envOr("ELECTRICIAN_TLS_CLIENT_CRT", "keys/tls/client.crt"),
		TLSClientKey:   envOr("ELECTRICIAN_TLS_CLIENT_KEY", "keys/tls/client.key"),
		TLSCA:          envOr("ELECTRICIAN_TLS_CA", "keys/tls/ca.crt"),
		CompressSnappy: strings.EqualFold(os.Getenv("ELECTRICIAN_COMPRESS"), "snappy"),
		EncryptAESGCM:  strings.EqualFold(os.Getenv("ELECTRICIAN_ENCRYPT"), "aesgcm"),
		StaticHeaders:  parseKV(os.Getenv("ELECTRICIAN_STATIC_HEADERS")),
	}
	if o.EncryptAESGCM {
		raw, err := hex.DecodeString(strings.TrimSpace(os.Getenv("ELECTRICIAN_AES256_KEY_HEX")))
		if err != nil || len(raw) != 32 {
			return RelayOptions{}, fmt.Errorf("ELECTRICIAN_AES256_KEY_HEX must be 64 hex chars (32 bytes): %v", err)
		}
		o.AESKey = string(raw)
	}
	return o, nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}

func parseKV(s string) map[string]string {
	if s == "" {
		return nil
	}
	out := map[string]string{}
	for _, kv := range strings.Split(s, ",") {
		p := strings.SplitN(strings.TrimSpace(kv), "=", 2)
		if len(p) == 2 {
			out[strings.TrimSpace(p[0])] = strings.TrimSpace(p[1])
		}
	}
	return out
}
