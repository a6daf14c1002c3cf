package config

import (
	"fmt"
	"io"
	"net/url"

	"gopkg.in/yaml.v3"
)

const masked = "****"

// Dump writes the effective configuration as YAML with credentials masked.
func Dump(w io.Writer, cfg *Config) error {
	redacted := *cfg
	redacted.Narrative.APIKey = mask(redacted.Narrative.APIKey)
	redacted.Alerting.Telegram.BotToken = mask(redacted.Alerting.Telegram.BotToken)
	redacted.Alerting.Webhook.URL = maskURL(redacted.Alerting.Webhook.URL)
	redacted.Database.DSN = maskURL(redacted.Database.DSN)
	redacted.Ethereum.RPCURL = maskURL(redacted.Ethereum.RPCURL)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(redacted); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

func mask(v string) string {
	if v == "" {
		return ""
	}
	return masked
}

// maskURL keeps scheme and host so the target stays recognisable.
func maskURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return masked
	}
	return u.Scheme + "://" + u.Host + "/" + masked
}
