package wayforpay

type Config struct {
	MerchantLogin  string `envconfig:"MERCHANT_LOGIN"`
	MerchantSecret string `envconfig:"MERCHANT_SECRET"`
	MerchantDomain string `envconfig:"MERCHANT_DOMAIN" default:"localhost"`
	ServiceURL     string `envconfig:"SERVICE_URL"` // полный URL вебхука, опционально
}

// IsConfigured провайдер пригоден к работе
func (c *Config) IsConfigured() bool {
	return c.MerchantLogin != "" && c.MerchantSecret != ""
}
