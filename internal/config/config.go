// Package config loads the bot configuration from the environment, with an
// optional config.env file for local runs.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string `env:"ENV" env-default:"prod"`
	BotToken string `env:"BOT_TOKEN"`

	PostgresDSN string `env:"POSTGRES_DSN"`
	Redis       Redis

	// PlansSpec is the product catalog: "product:plan:days:price;...",
	// days 0 meaning unlimited access, price in minor currency units.
	PlansSpec string `env:"PLANS" env-default:"course:month:30:49900;course:forever:0:199900"`

	// ReferralBonus is credited to the referrer when the referred user
	// completes a first purchase, minor currency units.
	ReferralBonus int64 `env:"REFERRAL_BONUS" env-default:"50"`
	// PromoCredit is granted for redeeming a code not bound to a plan.
	PromoCredit int64 `env:"PROMO_CREDIT" env-default:"100"`
	// MinWithdrawal is the smallest referral balance withdrawal accepted.
	MinWithdrawal int64 `env:"MIN_WITHDRAWAL" env-default:"10000"`

	// PaymentToken is the Telegram payment-provider token; empty disables
	// invoice flows.
	PaymentToken string `env:"PAYMENT_TOKEN"`
	Currency     string `env:"CURRENCY" env-default:"RUB"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL" env-default:"10m"`

	AdminIDs    []int64 `env:"ADMIN_IDS" env-separator:","`
	AdminSecret string  `env:"ADMIN_SECRET"`
}

type Redis struct {
	Host     string `env:"REDIS_HOST" env-default:"localhost"`
	Port     string `env:"REDIS_PORT" env-default:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

func (r Redis) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// Load reads config.env (if present) into the environment, then fills the
// Config struct from it. Variables already set in the environment win over
// the file.
func Load(envFile string) (*Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) IsAdmin(telegramID int64) bool {
	for _, id := range c.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

func loadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		v = strings.TrimSpace(v)
		if len(v) >= 2 {
			if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
				v = v[1 : len(v)-1]
			}
		}
		if _, exists := os.LookupEnv(k); exists {
			continue
		}
		_ = os.Setenv(k, v)
	}
	return sc.Err()
}
