package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tenniscourt/slotwatch/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	envFile string
	logFile *os.File

	// exitCode is set by commands whose status matters to the scheduler.
	exitCode int
)

const defaultEnvFile = "config.env"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "slotwatch",
	Short: "Watches tennis court reservation portals and mails you when availability changes.",
	Long: `slotwatch drives a venue's reservation portal in a headless browser, extracts the open
court slots, and sends an email whenever the filtered list differs from the last run.

Run it from cron, one line per venue:

	*/10 * * * * slotwatch watch toneri --logfile toneri.log`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		if exitCode == 0 {
			exitCode = 1
		}
	}
	if logFile != nil {
		logFile.Close()
	}
	os.Exit(exitCode)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.slotwatch.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file with deployment secrets (default is ./"+defaultEnvFile+" if present)")

	// Global flags
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("logfile", "", "Append logs to this file instead of stderr")
	rootCmd.PersistentFlags().String("snapshot-dir", "", "Directory holding the per-venue snapshot files")
	viper.BindPFlag("snapshot.dir", rootCmd.PersistentFlags().Lookup("snapshot-dir"))
}

func setDefaults() {
	viper.SetDefault("notify.sender", "")
	viper.SetDefault("notify.recipients", "")
	viper.SetDefault("notify.password", "")
	viper.SetDefault("notify.to_header", "<noreply@example.com>")
	viper.SetDefault("notify.persist_on_failure", false)
	viper.SetDefault("smtp.host", "smtp.gmail.com")
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("snapshot.dir", ".")
	viper.SetDefault("holidays.file", "")
	viper.SetDefault("browser.headless", true)
	viper.SetDefault("browser.exec_path", "")
	viper.SetDefault("run.timeout", "10s")
	viper.SetDefault("run.retries", 3)
	viper.SetDefault("run.watchdog", "5m")
	viper.SetDefault("run.lock_wait", "0s")
}

// bindEnv maps deployment secrets to their environment variables. The lowercase names
// are the ones older deployments already export.
func bindEnv() {
	viper.BindEnv("notify.sender", "SLOTWATCH_SENDER", "sender_email2")
	viper.BindEnv("notify.recipients", "SLOTWATCH_RECIPIENTS", "receiver_email")
	viper.BindEnv("notify.password", "SLOTWATCH_PASSWORD", "password2")
	viper.BindEnv("smtp.host", "SLOTWATCH_SMTP_HOST")
	viper.BindEnv("smtp.port", "SLOTWATCH_SMTP_PORT")
}

// loadEnvFile exports a dotenv file into the process environment without overriding
// variables that are already set.
func loadEnvFile(path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return err
	}
	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	for _, key := range env.AllKeys() {
		value := env.GetString(key)
		for _, name := range []string{key, strings.ToUpper(key)} {
			if _, set := os.LookupEnv(name); !set {
				os.Setenv(name, value)
			}
		}
	}
	return nil
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
	if path, _ := rootCmd.PersistentFlags().GetString("logfile"); path != "" {
		f, err := utils.SetLogFile(path)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		logFile = f
	}

	if envFile != "" {
		if err := loadEnvFile(envFile, true); err != nil {
			utils.Log.Fatal(err)
		}
	} else if err := loadEnvFile(defaultEnvFile, false); err != nil {
		utils.Log.Warnf("Ignoring %s: %v", defaultEnvFile, err)
	}

	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".slotwatch")
		viper.SetConfigType("yaml")
	}

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := filepath.Join(home, ".slotwatch.yaml")
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				utils.Log.Debugf("Could not create config file: %s", err)
			}
		} else {
			utils.Log.Fatalf("Error reading config file: %v", err)
		}
	} else {
		utils.Log.Debugf("Using config file %s", viper.ConfigFileUsed())
	}

	// Bound after the first-run write so secrets never land in the config file.
	bindEnv()
	viper.AutomaticEnv()
}
