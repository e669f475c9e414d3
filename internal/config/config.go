package config

import "github.com/spf13/viper"

// Config holds the application configuration.
type Config struct {
	ServerAddress   string `mapstructure:"SERVER_ADDRESS"`
	PostgresConn    string `mapstructure:"POSTGRES_CONN"`
	PostgresUser    string `mapstructure:"POSTGRES_USERNAME"`
	PostgresPass    string `mapstructure:"POSTGRES_PASSWORD"`
	PostgresHost    string `mapstructure:"POSTGRES_HOST"`
	PostgresPort    string `mapstructure:"POSTGRES_PORT"`
	PostgresDB      string `mapstructure:"POSTGRES_DATABASE"`
	MigrationURL    string `mapstructure:"MIGRATION_URL"`
	RedisURL        string `mapstructure:"REDIS_URL"`
	SweepIntervalS  int    `mapstructure:"SWEEP_INTERVAL_SECONDS"`
	RequestTimeoutS int    `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
}

// LoadConfig loads configuration from an env-format file at path.
func LoadConfig(path string) (cfg Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("app")
	viper.SetConfigType("env")

	viper.SetDefault("SWEEP_INTERVAL_SECONDS", 60)
	viper.SetDefault("REQUEST_TIMEOUT_SECONDS", 5)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}
	err = viper.Unmarshal(&cfg)
	return
}
