package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/frahmantamala/coaching-payments/internal"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "coaching-payments",
	Short: "Coaching payments",
	Long:  `Confirms checkout sessions, reconciles invoices and notifies clients.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadConfig reads config.yml from path. ENV_ prefixed variables override
// file values, e.g. ENV_GATEWAY_SECRET_KEY; a .env file is loaded first.
// The config file is optional when everything comes from the environment.
func loadConfig(path string) (*internal.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix("ENV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg internal.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error validating config: %w", err)
	}

	return &cfg, nil
}

// bindEnv registers keys that may only exist in the environment so
// AutomaticEnv picks them up during Unmarshal.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"environment",
		"http_server.port",
		"http_server.allowed_origins",
		"database.driver",
		"database.source",
		"firestore.project_id",
		"firestore.credentials_file",
		"mongo.uri",
		"mongo.database",
		"gateway.base_url",
		"gateway.secret_key",
		"email.enabled",
		"email.host",
		"email.port",
		"email.username",
		"email.password",
		"email.from",
		"redis.addr",
		"redis.password",
		"kafka.brokers",
		"archive.enabled",
		"archive.bucket",
		"archive.access_key",
		"archive.secret_key",
		"security.jwt_public_key",
		"observability.logging.level",
	} {
		_ = v.BindEnv(key)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "directory containing config.yml")

	rootCmd.AddCommand(httpServerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(confirmCmd)
}
