package lava

import (
	"encoding/json"
	"fmt"
)

type Config struct {
	APIKey string `envconfig:"API_KEY"`
	// OfferMap JSON-карта "тип_цена" -> offerId, например
	// {"ad_5000":"...uuid...","ver_15000":"...uuid..."}
	OfferMap string `envconfig:"OFFER_MAP"`
}

// IsConfigured провайдер пригоден к работе
func (c *Config) IsConfigured() bool {
	return c.APIKey != "" && c.OfferMap != ""
}

// ParseOfferMap разбирает JSON-карту офферов
func (c *Config) ParseOfferMap() (map[string]string, error) {
	if c.OfferMap == "" {
		return map[string]string{}, nil
	}
	var offers map[string]string
	if err := json.Unmarshal([]byte(c.OfferMap), &offers); err != nil {
		return nil, fmt.Errorf("invalid offer map: %w", err)
	}
	return offers, nil
}
