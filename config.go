package postbox

// Config represents the main config
type Config struct {
	DB struct {
		Type string // "bolt" or "sqlite"
		Path string
	}

	HTTP struct {
		Addr   string
		Domain string
	}

	SMTP struct {
		Host     string
		Port     int
		Username string
		Password string
	}

	SES struct {
		Region string
	}

	Newsletter struct {
		From             string
		Host             string
		ConfirmURLFormat string `mapstructure:"confirm_url_format"`
		Product          struct {
			Name string
		}
	}

	Feed struct {
		URL  string
		Cron string
	}

	Cleanup struct {
		ConfirmTimeoutMinutes int `mapstructure:"confirm_timeout_minutes"`
		Cron                  string
	}

	Sentry struct {
		DSN string
	}

	AMQP struct {
		URL   string
		Queue string
	}
}

// DefaultConfirmURLFormat is used when no confirm URL format is configured
const DefaultConfirmURLFormat = "https://{host}/confirm/{email}?token={token}"
