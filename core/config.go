package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host            string
		Addr            string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		Host          string
		Port          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	// EvasysConfig carries everything needed to talk to an EvaSys
	// installation. Passed explicitly into the client and engine
	// constructors; nothing reads it from a global.
	EvasysConfig struct {
		Endpoint string
		WSDL     string
		Login    string
		Password string

		// Subunit and DefaultPeriod hold encoded "<id>-<base64(label)>" keys
		// as produced by the reference-data listings.
		Subunit       string
		DefaultPeriod string

		// Option custom fields forwarded into the remote course record.
		CustomField1 string
		CustomField2 string
		// "fullname" to append secondary teacher names, empty to omit.
		SecondaryNamesField string

		Timeout time.Duration
	}

	WorkerConfig struct {
		PollInterval time.Duration
		RetryDelay   time.Duration
		MaxAttempts  int
	}

	Config struct {
		Debug    bool
		TestMode bool
		Env      string
		Build    string
		AppName  string

		SecretKey        string
		DefaultFromEmail string
		BookingBaseURL   string
		RollbarToken     string
		SendgridAPIKey   string

		Server   ServerConfig
		Database DatabaseConfig
		Evasys   EvasysConfig
		Worker   WorkerConfig

		WorkDir string
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Configured reports whether the EvaSys connection settings are usable.
// Callers must treat "not configured" differently from "remote returned
// no data".
func (c EvasysConfig) Configured() bool {
	return c.Endpoint != "" && c.Login != ""
}

func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "Evasync")
	v.SetDefault("secretKey", "z%#5qxm)e$+8d7&uo2(h!x)w*c4(#yg1h^$cegm9emw")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("bookingBaseURL", "http://localhost")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.debugHost", "localhost:6060")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.name", "evasync")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("evasys.timeout", 30*time.Second)

	v.SetDefault("worker.pollInterval", 10*time.Second)
	v.SetDefault("worker.retryDelay", 5*time.Minute)
	v.SetDefault("worker.maxAttempts", 5)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err = godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Config{
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		Env:              env,
		Build:            v.GetString("build"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		DefaultFromEmail: v.GetString("defaultFromEmail"),
		BookingBaseURL:   v.GetString("bookingBaseURL"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridAPIKey:   v.GetString("sendgridAPIKey"),
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Addr:            v.GetString("server.addr"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Name:          v.GetString("database.name"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Evasys: EvasysConfig{
			Endpoint:            v.GetString("evasys.endpoint"),
			WSDL:                v.GetString("evasys.wsdl"),
			Login:               v.GetString("evasys.login"),
			Password:            v.GetString("evasys.password"),
			Subunit:             v.GetString("evasys.subunit"),
			DefaultPeriod:       v.GetString("evasys.defaultPeriod"),
			CustomField1:        v.GetString("evasys.customField1"),
			CustomField2:        v.GetString("evasys.customField2"),
			SecondaryNamesField: v.GetString("evasys.secondaryNamesField"),
			Timeout:             v.GetDuration("evasys.timeout"),
		},
		Worker: WorkerConfig{
			PollInterval: v.GetDuration("worker.pollInterval"),
			RetryDelay:   v.GetDuration("worker.retryDelay"),
			MaxAttempts:  v.GetInt("worker.maxAttempts"),
		},
		WorkDir: Getwd(),
	}
}
