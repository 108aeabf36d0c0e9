package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ahmet0524/pastirmaadasi-sub000/cache"
	"github.com/ahmet0524/pastirmaadasi-sub000/database"
	"github.com/ahmet0524/pastirmaadasi-sub000/gateway"
	"github.com/ahmet0524/pastirmaadasi-sub000/kafka"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr       string `mapstructure:"http_addr"`
	GRPCAddr       string `mapstructure:"grpc_addr"`
	PublicSiteURL  string `mapstructure:"public_site_url"`
	AdminEmail     string `mapstructure:"admin_email"`
	AdminJWTSecret string `mapstructure:"admin_jwt_secret"`
	MailFrom       string `mapstructure:"mail_from"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`

	Iyzico IyzicoConfig `mapstructure:"iyzico"`
	DB     DBConfig     `mapstructure:"db"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	Resend ResendConfig `mapstructure:"resend"`
}

type IyzicoConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	SecretKey   string        `mapstructure:"secret_key"`
	BaseURL     string        `mapstructure:"base_url"`
	CallbackURL string        `mapstructure:"callback_url"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host       string        `mapstructure:"host"`
	Port       string        `mapstructure:"port"`
	Password   string        `mapstructure:"password"`
	VerdictTTL time.Duration `mapstructure:"verdict_ttl"`
}

type KafkaConfig struct {
	Broker string `mapstructure:"broker"`
	Topic  string `mapstructure:"topic"`
}

type ResendConfig struct {
	APIKey string `mapstructure:"api_key"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("grpc_addr", ":9090")
	v.SetDefault("public_site_url", "http://localhost:4321")
	v.SetDefault("admin_email", "")
	v.SetDefault("admin_jwt_secret", "")
	v.SetDefault("mail_from", "Pastirma Adasi <siparis@pastirmaadasi.com>")
	v.SetDefault("jaeger_endpoint", "http://localhost:14268/api/traces")

	v.SetDefault("iyzico.api_key", "")
	v.SetDefault("iyzico.secret_key", "")
	v.SetDefault("iyzico.base_url", "https://sandbox-api.iyzipay.com")
	v.SetDefault("iyzico.callback_url", "http://localhost:8080/api/payments/callback")
	v.SetDefault("iyzico.max_attempts", 3)
	v.SetDefault("iyzico.base_backoff", 200*time.Millisecond)
	v.SetDefault("iyzico.max_backoff", 2*time.Second)
	v.SetDefault("iyzico.timeout", 10*time.Second)

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "pastirma")
	v.SetDefault("db.sslmode", "disable")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.verdict_ttl", 30*time.Minute)

	v.SetDefault("kafka.broker", "localhost:9092")
	v.SetDefault("kafka.topic", "order_events")

	v.SetDefault("resend.api_key", "")
}

// Load reads defaults, then the optional YAML file, then the environment.
// Environment names are the upper-cased keys with dots replaced by
// underscores, e.g. iyzico.api_key is IYZICO_API_KEY.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Iyzico.APIKey == "" || c.Iyzico.SecretKey == "" {
		errs = append(errs, fmt.Errorf("%w: IYZICO_API_KEY and IYZICO_SECRET_KEY are required", gateway.ErrSignature))
	}
	if c.Iyzico.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("iyzico.max_attempts must be positive, got %d", c.Iyzico.MaxAttempts))
	}
	if c.Iyzico.BaseBackoff <= 0 || c.Iyzico.MaxBackoff < c.Iyzico.BaseBackoff {
		errs = append(errs, fmt.Errorf("iyzico backoff must satisfy 0 < base (%s) <= max (%s)", c.Iyzico.BaseBackoff, c.Iyzico.MaxBackoff))
	}
	if c.Iyzico.Timeout <= 0 {
		errs = append(errs, errors.New("iyzico.timeout must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) Gateway() gateway.Config {
	return gateway.Config{
		BaseURL:             c.Iyzico.BaseURL,
		APIKey:              c.Iyzico.APIKey,
		SecretKey:           c.Iyzico.SecretKey,
		CallbackURL:         c.Iyzico.CallbackURL,
		EnabledInstallments: []int{1, 2, 3, 6, 9, 12},
		MaxAttempts:         c.Iyzico.MaxAttempts,
		BaseBackoff:         c.Iyzico.BaseBackoff,
		MaxBackoff:          c.Iyzico.MaxBackoff,
		Timeout:             c.Iyzico.Timeout,
	}
}

func (c *Config) Database() database.Config {
	return database.Config{
		Host:     c.DB.Host,
		Port:     c.DB.Port,
		User:     c.DB.User,
		Password: c.DB.Password,
		Name:     c.DB.Name,
		SSLMode:  c.DB.SSLMode,
	}
}

func (c *Config) Cache() cache.Config {
	return cache.Config{
		Addr:     fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port),
		Password: c.Redis.Password,
	}
}

func (c *Config) Messaging() kafka.Config {
	return kafka.Config{
		Brokers: strings.Split(c.Kafka.Broker, ","),
		Topic:   c.Kafka.Topic,
	}
}
