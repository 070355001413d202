package internal

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/wal-g/tracelog"
)

const (
	WalGrowthThresholdSetting = "WAL_GROWTH_THRESHOLD"
	WalMonitorIntervalSetting = "WAL_MONITOR_INTERVAL"
	EnableWalMonitorSetting   = "ENABLE_WAL_MONITOR"
	MinWalGrowthSetting       = "MIN_WAL_GROWTH_FOR_BACKUP"
	PgBackRestStanzaSetting   = "PGBACKREST_STANZA"
	PgBackRestBinarySetting   = "PGBACKREST_BINARY"
	PgBackRestRepoPathSetting = "PGBACKREST_REPO_PATH"
	RcloneBinarySetting       = "RCLONE_BINARY"
	RemotePrefixSetting       = "WALGUARD_REMOTE_PREFIX"
	StateFileSetting          = "WALGUARD_STATE_FILE"
	LogLevelSetting           = "WALGUARD_LOG_LEVEL"
	CommandTimeoutSetting     = "WALGUARD_COMMAND_TIMEOUT"

	PgHostSetting     = "PGHOST"
	PgPortSetting     = "PGPORT"
	PgUserSetting     = "PGUSER"
	PgPasswordSetting = "PGPASSWORD"
	PgDatabaseSetting = "PGDATABASE"
	PgSslModeSetting  = "PGSSLMODE"
)

var (
	CfgFile string

	defaultConfigValues = map[string]string{
		WalGrowthThresholdSetting: "100MB",
		WalMonitorIntervalSetting: "60",
		EnableWalMonitorSetting:   "true",
		MinWalGrowthSetting:       "1MB",
		PgBackRestStanzaSetting:   "main",
		PgBackRestBinarySetting:   "pgbackrest",
		PgBackRestRepoPathSetting: "/var/lib/pgbackrest",
		RcloneBinarySetting:       "rclone",
		StateFileSetting:          "/var/lib/walguard/wal-monitor.state",
		LogLevelSetting:           tracelog.NormalLogLevel,
		CommandTimeoutSetting:     "0",
	}

	AllowedSettings = map[string]bool{
		WalGrowthThresholdSetting: true,
		WalMonitorIntervalSetting: true,
		EnableWalMonitorSetting:   true,
		MinWalGrowthSetting:       true,
		PgBackRestStanzaSetting:   true,
		PgBackRestBinarySetting:   true,
		PgBackRestRepoPathSetting: true,
		RcloneBinarySetting:       true,
		RemotePrefixSetting:       true,
		StateFileSetting:          true,
		LogLevelSetting:           true,
		CommandTimeoutSetting:     true,

		PgHostSetting:     true,
		PgPortSetting:     true,
		PgUserSetting:     true,
		PgPasswordSetting: true,
		PgDatabaseSetting: true,
		PgSslModeSetting:  true,
	}

	secretSettings = map[string]bool{
		PgPasswordSetting: true,
	}
)

// GetSetting extract setting by key if key is set, return empty string otherwise
func GetSetting(key string) (value string, ok bool) {
	if viper.IsSet(key) {
		return viper.GetString(key), true
	}
	return "", false
}

func GetSettingWithDefault(key string) string {
	if value, ok := GetSetting(key); ok {
		return value
	}
	return defaultConfigValues[key]
}

func GetBoolSettingDefault(setting string, def bool) (bool, error) {
	val, ok := GetSetting(setting)
	if !ok {
		return def, nil
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return false, errors.Wrapf(err, "failed to parse setting %s", setting)
	}
	return parsed, nil
}

// GetDurationSetting interprets a bare number as seconds, matching the
// original operator surface, and also accepts Go duration strings.
func GetDurationSetting(setting string) (time.Duration, error) {
	val := GetSettingWithDefault(setting)
	if seconds, err := strconv.Atoi(val); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to parse setting %s as duration", setting)
	}
	return parsed, nil
}

// GetSizeSetting resolves a size-string setting ("100MB", "1.5GB") to bytes.
func GetSizeSetting(setting string) (uint64, error) {
	val := GetSettingWithDefault(setting)
	size, err := ParseSize(val)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid value for setting %s", setting)
	}
	return size, nil
}

func ConfigureLogging() error {
	if level, ok := GetSetting(LogLevelSetting); ok {
		return tracelog.UpdateLogLevel(level)
	}
	return nil
}

// Configure validates settings that must be correct before the process is
// allowed to do anything; a bad growth threshold must never degrade to
// zero (backup every tick) or infinity (never back up).
func Configure() error {
	if err := ConfigureLogging(); err != nil {
		return errors.Wrap(err, "failed to configure logging")
	}

	if _, err := GetSizeSetting(WalGrowthThresholdSetting); err != nil {
		return err
	}
	if _, err := GetSizeSetting(MinWalGrowthSetting); err != nil {
		return err
	}
	if _, err := GetDurationSetting(WalMonitorIntervalSetting); err != nil {
		return err
	}

	// Show all relevant ENV vars in DEVEL logging mode
	{
		var buff bytes.Buffer
		buff.WriteString("--- COMPILED ENVIRONMENT VARS ---\n")

		var keys []string
		for k := range AllowedSettings {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			val, ok := os.LookupEnv(k)
			if !ok {
				continue
			}
			if secretSettings[k] && val != "" {
				val = "--HIDDEN--"
			}
			fmt.Fprintf(&buff, "\t%s=%s\n", k, val)
		}

		tracelog.DebugLogger.Print(buff.String())
	}
	return nil
}

func SetDefaultValues(config *viper.Viper) {
	for setting, value := range defaultConfigValues {
		config.SetDefault(setting, value)
	}
}

// InitConfig reads config file and ENV variables if set.
func InitConfig() {
	globalViper := viper.GetViper()
	globalViper.AutomaticEnv()
	SetDefaultValues(globalViper)
	ReadConfigFromFile(globalViper, CfgFile)
	CheckAllowedSettings(globalViper)
}

// ReadConfigFromFile read config to the viper instance
func ReadConfigFromFile(config *viper.Viper, configFile string) {
	if configFile == "" {
		return
	}
	config.SetConfigFile(configFile)
	err := config.ReadInConfig()
	if err != nil {
		tracelog.ErrorLogger.FatalError(errors.Wrapf(err, "failed to read config file %s", configFile))
	}
	tracelog.DebugLogger.Printf("Using config file: %s", config.ConfigFileUsed())
}

// CheckAllowedSettings warns if there is any setting that is set, but not allowed
func CheckAllowedSettings(config *viper.Viper) {
	foundNotAllowed := false
	for k := range config.AllSettings() {
		k = strings.ToUpper(k)
		if !AllowedSettings[k] {
			tracelog.WarningLogger.Printf("%s: unknown setting", k)
			foundNotAllowed = true
		}
	}
	if foundNotAllowed {
		tracelog.WarningLogger.Println("Unknown settings found, they will be ignored")
	}
}

func AddConfigFlags(cmd *cobra.Command) {
	cfgFlags := &pflag.FlagSet{}
	for k := range AllowedSettings {
		flagName := toFlagName(k)
		cfgFlags.String(flagName, "", "")
		_ = viper.BindPFlag(k, cfgFlags.Lookup(flagName))
	}
	cfgFlags.VisitAll(func(f *pflag.Flag) {
		f.Hidden = true
	})
	cmd.PersistentFlags().AddFlagSet(cfgFlags)
}

func toFlagName(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "_", "-")
}
