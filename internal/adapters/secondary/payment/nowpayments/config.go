package nowpayments

type Config struct {
	APIKey      string `envconfig:"API_KEY"`
	IPNSecret   string `envconfig:"IPN_SECRET"`
	CallbackURL string `envconfig:"CALLBACK_URL"` // полный URL вебхука, опционально
}

// IsConfigured провайдер пригоден к работе
func (c *Config) IsConfigured() bool {
	return c.APIKey != ""
}
