package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tim-oe/piSolar/internal/config"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:     "pisolar",
		Short:   "Solar charge controller telemetry service",
		Long:    "Polls Renogy charge controllers over Bluetooth or Modbus RTU on a cron schedule and fans readings out to local metrics files and MQTT.",
		Version: versioninfo.Short(),
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default pisolar.yaml)")

	root.AddCommand(runCommand())
	root.AddCommand(checkCommand())
	root.AddCommand(readOnceCommand())
	root.AddCommand(showConfigCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initConfig() (*config.Config, error) {

	// alias PORT => PISOLAR_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("PISOLAR_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("pisolar")
	viper.AutomaticEnv()

	// flag wins over env, env over the default file name
	file := cfgFile
	if file == "" {
		file = os.Getenv("PISOLAR_CONFIG")
	}
	explicit := file != ""
	if file == "" {
		file = "pisolar.yaml"
	}
	if _, err := os.Stat(file); err != nil {
		if explicit {
			return nil, fmt.Errorf("config file %s: %w", file, err)
		}
	} else {
		slog.Info("Using config", "file", file)
		viper.SetConfigFile(file)

		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", file, err)
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if cfg.MQTT.Enable {
		baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
		if err != nil {
			return nil, err
		}
		cfg.MQTT.BaseTopic = baseTopic
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("port", 8080)
	viper.SetDefault("metrics.enable", false)
	viper.SetDefault("metrics.output_dir", "/var/lib/pisolar/metrics")
	viper.SetDefault("mqtt.enable", false)
	viper.SetDefault("mqtt.base_topic", "pisolar")
	viper.SetDefault("mqtt.port", 1883)
}

func buildLogger(cfg *config.Config) *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	return zap.Must(zapCfg.Build())
}

func safePrintConfig(cfg config.Config) config.Config {
	if cfg.MQTT.Username != "" {
		cfg.MQTT.Username = "*redacted*"
	}
	if cfg.MQTT.Password != "" {
		cfg.MQTT.Password = "*redacted*"
	}
	return cfg
}

func showConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show-config",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initConfig()
			if err != nil {
				return err
			}
			fmt.Printf("%+v\n", safePrintConfig(*cfg))
			return nil
		},
	}
}
