package app

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"IT_borrowing_system/borrowing"
	"IT_borrowing_system/db"
)

// Config 从环境变量读取
type Config struct {
	DatabaseURL string
	RedisAddr   string
	RedisPwd    string
	WebOrigin   string
	Port        string

	SessionTTL    time.Duration
	SeenThrottle  time.Duration
	SweepInterval time.Duration
	AdminEmails   []string

	Fines borrowing.FinePolicy

	BootstrapEmail    string
	BootstrapPassword string
	EventsChannel     string
}

// IsAdminEmail 名单内邮箱视同管理员
func (c Config) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, a := range c.AdminEmails {
		if a == email {
			return true
		}
	}
	return false
}

func (c Config) SecureCookies() bool { return strings.HasPrefix(c.WebOrigin, "https://") }

func LoadConfig() Config {
	get := func(k, def string) string {
		v := os.Getenv(k)
		if v == "" {
			return def
		}
		return v
	}
	seconds := func(k string, def time.Duration) time.Duration {
		v := os.Getenv(k)
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			slog.Warn("invalid duration, using default", "key", k, "value", v, "default", def)
			return def
		}
		return time.Duration(n) * time.Second
	}
	amount := func(k string, def float64) float64 {
		v := os.Getenv(k)
		if v == "" {
			return def
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			slog.Warn("invalid amount, using default", "key", k, "value", v, "default", def)
			return def
		}
		return f
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = db.DSN(
			get("DB_HOST", "127.0.0.1"),
			get("DB_USER", "postgres"),
			get("DB_PASSWORD", "postgres"),
			get("DB_NAME", "it_borrowing"),
			get("DB_PORT", "5432"),
		)
	}

	adminsCSV := os.Getenv("ADMIN_EMAILS") // 例如: "admin@ex.com,ops@ex.com"
	var admins []string
	for _, s := range strings.Split(adminsCSV, ",") {
		if t := strings.TrimSpace(s); t != "" {
			admins = append(admins, strings.ToLower(t))
		}
	}

	def := borrowing.DefaultFinePolicy()
	return Config{
		DatabaseURL:   dsn,
		RedisAddr:     get("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPwd:      os.Getenv("REDIS_PASSWORD"),
		WebOrigin:     get("WEB_ORIGIN", "http://localhost:5173"),
		Port:          get("PORT", "3001"),
		SessionTTL:    seconds("SESSION_TTL_SECONDS", 24*time.Hour),
		SeenThrottle:  seconds("LAST_SEEN_THROTTLE_SECONDS", 5*time.Minute),
		SweepInterval: seconds("OVERDUE_SWEEP_SECONDS", 15*time.Minute),
		AdminEmails:   admins,
		Fines: borrowing.FinePolicy{
			PerOverdueDay: amount("FINE_PER_OVERDUE_DAY", def.PerOverdueDay),
			Damage:        amount("FINE_DAMAGE", def.Damage),
		},
		BootstrapEmail:    strings.ToLower(strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN_EMAIL"))),
		BootstrapPassword: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
		EventsChannel:     get("EVENTS_CHANNEL", "itb:events"),
	}
}
