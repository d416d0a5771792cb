package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

type Config struct {
	BaseURL string `yaml:"base_url"`
	AuthURL string `yaml:"auth_url"`

	Session SessionConfig `yaml:"session"`
	Browser BrowserConfig `yaml:"browser"`
	Timing  TimingConfig  `yaml:"timing"`

	Locators LocatorConfig `yaml:"locators"`
	Patterns PatternConfig `yaml:"patterns"`

	Notify NotifyConfig `yaml:"notify"`

	DebugMode bool `yaml:"debug_mode"`
}

type SessionConfig struct {
	// Backend is "file" or "redis".
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`

	RedisAddr      string        `yaml:"redis_addr"`
	RedisPassword  string        `yaml:"redis_password"`
	RedisDB        int           `yaml:"redis_db"`
	RedisKeyPrefix string        `yaml:"redis_key_prefix"`
	RedisTTL       time.Duration `yaml:"redis_ttl"`
}

type BrowserConfig struct {
	ProfilePath string `yaml:"profile_path"`
	Headless    bool   `yaml:"headless"`
	Stealth     bool   `yaml:"stealth"`
	UserAgent   string `yaml:"user_agent"`
}

type TimingConfig struct {
	ElementTimeout      time.Duration `yaml:"element_timeout"`
	ClickDelay          time.Duration `yaml:"click_delay"`
	PollInterval        time.Duration `yaml:"poll_interval"`
	JitterPct           float64       `yaml:"jitter_pct"`
	LoginPollInterval   time.Duration `yaml:"login_poll_interval"`
	LoginTimeoutMinutes int           `yaml:"login_timeout_minutes"`
	CheckoutGracePeriod time.Duration `yaml:"checkout_grace_period"`
}

type LocatorConfig struct {
	Login          Locator `yaml:"login"`
	Slots          Locator `yaml:"slots"`
	Cart           Locator `yaml:"cart"`
	ContinueButton Locator `yaml:"continue_button"`
	SubsContinue   Locator `yaml:"subs_continue"`
}

type PatternConfig struct {
	NotLoggedIn string `yaml:"not_logged_in"`
	NoSlots     string `yaml:"no_slots"`
	// CheckoutLink is the visible text of the checkout link inside the cart.
	CheckoutLink string `yaml:"checkout_link"`
}

type NotifyConfig struct {
	AlertSound string      `yaml:"alert_sound"`
	Annoy      AnnoyConfig `yaml:"annoy"`

	Twilio   TwilioConfig   `yaml:"twilio"`
	Telegram TelegramConfig `yaml:"telegram"`
	Email    EmailConfig    `yaml:"email"`
}

type AnnoyConfig struct {
	Sound    string        `yaml:"sound"`
	Repeat   int           `yaml:"repeat"`
	Interval time.Duration `yaml:"interval"`
}

type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	From       string `yaml:"from"`
	To         string `yaml:"to"`
	APIBaseURL string `yaml:"api_base_url"`
}

type TelegramConfig struct {
	BotToken   string `yaml:"bot_token"`
	ChatID     string `yaml:"chat_id"`
	APIBaseURL string `yaml:"api_base_url"`
}

type EmailConfig struct {
	SMTPServer string   `yaml:"smtp_server"`
	SMTPPort   int      `yaml:"smtp_port"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	From       string   `yaml:"from"`
	To         []string `yaml:"to"`
}

func DefaultConfig() *Config {
	userDataDir := getUserDataDir()

	return &Config{
		BaseURL: "https://www.amazon.com/",
		AuthURL: "https://www.amazon.com/ap/signin",
		Session: SessionConfig{
			Backend:        "file",
			Path:           filepath.Join(userDataDir, "session.yaml"),
			RedisAddr:      "localhost:6379",
			RedisKeyPrefix: "deliverance:",
		},
		Browser: BrowserConfig{
			ProfilePath: filepath.Join(userDataDir, "browser-profile"),
			Headless:    false,
			Stealth:     true,
		},
		Timing: TimingConfig{
			ElementTimeout:      5 * time.Second,
			ClickDelay:          800 * time.Millisecond,
			PollInterval:        25 * time.Second,
			JitterPct:           20,
			LoginPollInterval:   time.Second,
			LoginTimeoutMinutes: 10,
			CheckoutGracePeriod: 900 * time.Second,
		},
		Locators: LocatorConfig{
			Login:          Locator{By: ByID, Selector: "nav-link-accountList"},
			Slots:          Locator{By: ByCSS, Selector: "#slot-container-root, .ufss-slotselect-container"},
			Cart:           Locator{By: ByID, Selector: "nav-cart"},
			ContinueButton: Locator{By: ByXPath, Selector: "//span[contains(@class, 'byg-continue-button')]"},
			SubsContinue:   Locator{By: ByID, Selector: "subsContinueButton"},
		},
		Patterns: PatternConfig{
			NotLoggedIn:  "Hello, Sign in",
			NoSlots:      "No delivery windows available",
			CheckoutLink: "Checkout Whole Foods Market Cart",
		},
		Notify: NotifyConfig{
			AlertSound: "Glass",
			Annoy: AnnoyConfig{
				Sound:    "Sosumi",
				Repeat:   5,
				Interval: time.Second,
			},
			Twilio: TwilioConfig{
				APIBaseURL: "https://api.twilio.com",
			},
			Telegram: TelegramConfig{
				APIBaseURL: "https://api.telegram.org",
			},
			Email: EmailConfig{
				SMTPPort: 587,
			},
		},
	}
}

// LoadConfig reads the YAML config at path, writing the defaults there first if the
// file does not exist. A sibling "<name>.local.<ext>" file, when present, is merged
// on top so credentials can live outside the shared config.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path); err != nil {
			return nil, err
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	localPath := localConfigPath(path)
	if data, err := os.ReadFile(localPath); err == nil {
		var override Config
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("parse %s: %w", localPath, err)
		}
		if err := mergo.Merge(config, override, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge %s: %w", localPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.Browser.ProfilePath != "" {
		if err := os.MkdirAll(config.Browser.ProfilePath, 0755); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate reports configuration that would make the workflow misbehave.
func (c *Config) Validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, errors.New("base_url is required"))
	}
	if c.AuthURL == "" {
		errs = append(errs, errors.New("auth_url is required"))
	}
	switch c.Session.Backend {
	case "file":
		if c.Session.Path == "" {
			errs = append(errs, errors.New("session.path is required for the file backend"))
		}
	case "redis":
		if c.Session.RedisAddr == "" {
			errs = append(errs, errors.New("session.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session.backend %q", c.Session.Backend))
	}

	locators := map[string]Locator{
		"login":           c.Locators.Login,
		"slots":           c.Locators.Slots,
		"cart":            c.Locators.Cart,
		"continue_button": c.Locators.ContinueButton,
		"subs_continue":   c.Locators.SubsContinue,
	}
	for name, loc := range locators {
		if err := loc.validate(); err != nil {
			errs = append(errs, fmt.Errorf("locators.%s: %w", name, err))
		}
	}

	if c.Patterns.NotLoggedIn == "" || c.Patterns.NoSlots == "" || c.Patterns.CheckoutLink == "" {
		errs = append(errs, errors.New("patterns.not_logged_in, patterns.no_slots and patterns.checkout_link are required"))
	}

	t := c.Timing
	if t.ElementTimeout <= 0 || t.PollInterval <= 0 || t.LoginPollInterval <= 0 {
		errs = append(errs, errors.New("timing intervals must be positive"))
	}
	if t.JitterPct < 0 || t.JitterPct >= 100 {
		errs = append(errs, fmt.Errorf("timing.jitter_pct must be in [0, 100), got %v", t.JitterPct))
	}
	if t.LoginTimeoutMinutes < 0 {
		errs = append(errs, errors.New("timing.login_timeout_minutes must not be negative"))
	}

	return errors.Join(errs...)
}

// applyEnv lets secrets come from the environment instead of a file.
func (c *Config) applyEnv() {
	if v := os.Getenv("DELIVERANCE_TWILIO_AUTH_TOKEN"); v != "" {
		c.Notify.Twilio.AuthToken = v
	}
	if v := os.Getenv("DELIVERANCE_TELEGRAM_TOKEN"); v != "" {
		c.Notify.Telegram.BotToken = v
	}
	if v := os.Getenv("DELIVERANCE_SMTP_PASSWORD"); v != "" {
		c.Notify.Email.Password = v
	}
}

func localConfigPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".local" + ext
}

func getUserDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./deliverance-data"
	}
	return filepath.Join(home, ".deliverance")
}
