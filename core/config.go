package core

import (
	"fmt"
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Address         string
		DebugAddress    string
		Host            string
		ShutdownTimeout time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	AMQPConfig struct {
		URL        string
		Exchange   string
		RoutingKey string
	}

	LoggingConfig struct {
		Level  string
		Pretty bool
	}

	ScreeningConfig struct {
		// ClassThreshold is the number of class standard deviations a student average may drift before it is flagged (k <= 3).
		ClassThreshold float64
		// SelfThreshold is the number of own standard deviations a received total may drift before it is flagged (k > 3).
		SelfThreshold float64
	}

	Config struct {
		Env              string
		AppName          string
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		FrontendBaseURL  string
		RollbarToken     string
		SendgridApiKey   string
		defaultFromEmail string

		Server    ServerConfig
		Database  DatabaseConfig
		AMQP      AMQPConfig
		Logging   LoggingConfig
		Screening ScreeningConfig
	}
)

func (c DatabaseConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
}

// NewConfig loads the configuration from defaults, an optional config/.env.<env> file and the environment.
// Environment variables are prefixed with the upper-cased environment name, eg. PROD_DATABASE_HOST.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "PeerEval")
	v.SetDefault("build", "dev")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("secretKey", "r7g$1x-ad*0qkpe!=w3m^c9u@tz&h5bn2l(o)yv8j+i4sfd6")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugAddress", ":4000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "peereval")
	v.SetDefault("database.user", "peereval")
	v.SetDefault("database.password", "peereval")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "peereval.notifications")
	v.SetDefault("amqp.routingKey", "notification")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", true)

	v.SetDefault("screening.classThreshold", 1.0)
	v.SetDefault("screening.selfThreshold", 1.7)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(ProjectRoot(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:              env,
		AppName:          v.GetString("appName"),
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Address:         v.GetString("server.address"),
			DebugAddress:    v.GetString("server.debugAddress"),
			Host:            v.GetString("server.host"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		AMQP: AMQPConfig{
			URL:        v.GetString("amqp.url"),
			Exchange:   v.GetString("amqp.exchange"),
			RoutingKey: v.GetString("amqp.routingKey"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Pretty: v.GetBool("logging.pretty"),
		},
		Screening: ScreeningConfig{
			ClassThreshold: v.GetFloat64("screening.classThreshold"),
			SelfThreshold:  v.GetFloat64("screening.selfThreshold"),
		},
	}
}
