package openai

// Config contains OpenAI provider credentials and transport settings.
// Remote errors are never retried at this layer, so there is no retry knob;
// callers that want retries wrap the provider.
type Config struct {
	APIKey       string `env:"OPENAI_API_KEY"`
	BaseURL      string `env:"OPENAI_BASE_URL"      envDefault:"https://api.openai.com/v1"`
	Organization string `env:"OPENAI_ORGANIZATION"`
	Timeout      int    `env:"OPENAI_TIMEOUT"       envDefault:"300"`
}
