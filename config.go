package homeletter

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config represents the main config
type Config struct {
	DB struct {
		Type string // "json", "bolt" or "sqlite"
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
		FromName string        `mapstructure:"from_name"`
		Interval time.Duration // pause between two newsletter sends
	}

	Site struct {
		Name     string
		Author   string
		URL      string
		ShopURL  string `mapstructure:"shop_url"`
		Portrait string
		Links    struct {
			Instagram string
			Facebook  string
			YouTube   string
			Pinterest string
		}
	}

	Content struct {
		Newsletters string
		Blog        string
	}

	Newsletter struct {
		Grace         time.Duration // operator window before a send starts
		TestRecipient string        `mapstructure:"test_recipient"`
		Cron          struct {
			Spec string
		}
		HMAC struct {
			Secret string
		}
	}

	Sentry struct {
		DSN string
	}

	Log struct {
		Level string
	}
}

// SMTPConfigured reports whether credentials for the real transport are present.
func (c *Config) SMTPConfigured() bool {
	return c.SMTP.Username != "" && c.SMTP.Password != ""
}

// CheckSharedStore returns an ErrInvalid error when the subscriber store cannot be opened
// by a second process while the server is running. bolt holds an exclusive file lock.
func (c *Config) CheckSharedStore() error {
	if c.DB.Type == "bolt" {
		return Errorf(ErrInvalid, "Config.CheckSharedStore",
			"db.type %q is locked by the running server; send through POST /api/newsletters/{id}/send or use the json or sqlite store", c.DB.Type)
	}
	return nil
}

// ReadConfig loads .env.local (when present), then config.yaml from the given paths,
// then environment variables, into a Config.
func ReadConfig(v *viper.Viper, paths ...string) (*Config, error) {
	if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, errors.Wrap(err, "godotenv.Load")
	}

	setDefaults(v)

	v.SetConfigName("config")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("smtp.username", "GMAIL_USER")
	_ = v.BindEnv("smtp.password", "GMAIL_APP_PASSWORD")
	_ = v.BindEnv("smtp.from_name", "GMAIL_FROM_NAME")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "viper.ReadInConfig")
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "viper.Unmarshal")
	}

	// Gmail app passwords are displayed in groups of four.
	config.SMTP.Password = strings.Join(strings.Fields(config.SMTP.Password), "")
	config.Site.URL = strings.TrimRight(config.Site.URL, "/")
	if config.Newsletter.TestRecipient == "" {
		config.Newsletter.TestRecipient = config.SMTP.Username
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.type", "json")
	v.SetDefault("db.path", "data/newsletter-subscribers.json")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.domain", "")

	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from_name", "Ashley Rose")
	v.SetDefault("smtp.interval", 100*time.Millisecond)

	v.SetDefault("site.name", "At home with Rose")
	v.SetDefault("site.author", "Ashley Rose")
	v.SetDefault("site.url", "https://ashleyrose.com")
	v.SetDefault("site.shop_url", "https://www.shopltk.com/explore/Ashley_Rose/")
	v.SetDefault("site.portrait", "/images/ashley-portrait.jpg")
	v.SetDefault("site.links.instagram", "https://instagram.com/ashleyrose")
	v.SetDefault("site.links.facebook", "https://facebook.com/ashleyrose")
	v.SetDefault("site.links.youtube", "https://youtube.com/@ashleyrose")
	v.SetDefault("site.links.pinterest", "https://pinterest.com/ashleyrose")

	v.SetDefault("content.newsletters", "content/newsletters")
	v.SetDefault("content.blog", "content/blog")

	v.SetDefault("newsletter.grace", 5*time.Second)
	v.SetDefault("newsletter.test_recipient", "")
	v.SetDefault("newsletter.cron.spec", "")
	v.SetDefault("newsletter.hmac.secret", "")

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("log.level", "info")
}
