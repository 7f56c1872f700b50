package config

import "github.com/joho/godotenv"

// AuditConfig configures the login audit consumer.  It needs none of the
// database or token settings, so it is loaded separately from Config.
type AuditConfig struct {
	Env      string
	LogLevel string
	AMQPURL  string
	LogFile  string
}

func LoadAuditConfig() AuditConfig {
	_ = godotenv.Load()
	return AuditConfig{
		Env:      envStr("APP_ENV", "dev"),
		LogLevel: envStr("LOG_LEVEL", "info"),
		AMQPURL:  amqpURL(),
		LogFile:  envStr("LOGIN_AUDIT_FILE", "logs/login.log"),
	}
}
