package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/rhythm/internal/logging"
	"github.com/hrygo/rhythm/internal/profile"
	"github.com/hrygo/rhythm/internal/version"
	"github.com/hrygo/rhythm/server"
	"github.com/hrygo/rhythm/server/auth"
	"github.com/hrygo/rhythm/store"
	"github.com/hrygo/rhythm/store/db"
)

var (
	rootCmd = &cobra.Command{
		Use:   "rhythm",
		Short: `Learns when you work best and proactively suggests how to plan your day.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Systemd units provide their environment explicitly.
			if !isRunningAsSystemdService() {
				_ = godotenv.Load()
			}
			return nil
		},
		Run: func(_ *cobra.Command, _ []string) {
			instanceProfile := loadProfile()
			logging.Setup(instanceProfile)

			ctx, cancel := context.WithCancel(context.Background())
			dbDriver, err := db.NewDBDriver(instanceProfile)
			if err != nil {
				cancel()
				slog.Error("failed to create db driver", "driver", instanceProfile.Driver, "error", err)
				return
			}

			storeInstance := store.New(dbDriver, instanceProfile)
			if err := storeInstance.Migrate(ctx); err != nil {
				cancel()
				slog.Error("failed to migrate", "error", err)
				return
			}

			s, err := server.NewServer(ctx, instanceProfile, storeInstance)
			if err != nil {
				cancel()
				slog.Error("failed to create server", "error", err)
				return
			}

			c := make(chan os.Signal, 1)
			signal.Notify(c, terminationSignals...)

			if err := s.Start(ctx); err != nil {
				cancel()
				slog.Error("failed to start server", "error", err)
				return
			}

			printGreetings(instanceProfile)

			go func() {
				<-c
				s.Shutdown(context.Background())
				cancel()
			}()

			<-ctx.Done()
		},
	}

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			instanceProfile := loadProfile()
			userID, err := cmd.Flags().GetInt32("user-id")
			if err != nil {
				return err
			}
			if userID <= 0 {
				return errors.New("--user-id must be positive")
			}
			ttl, err := cmd.Flags().GetDuration("ttl")
			if err != nil {
				return err
			}
			token, err := auth.GenerateAccessToken(instanceProfile.Secret, userID, "", time.Now().Add(ttl))
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(version.String())
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 28090)
	viper.SetDefault("learning-interval", profile.DefaultLearningInterval)
	viper.SetDefault("cycle-timeout", profile.DefaultCycleTimeout)

	flags := rootCmd.PersistentFlags()
	flags.String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	flags.String("addr", "", "address of server")
	flags.Int("port", 28090, "port of server")
	flags.String("data", "", "data directory")
	flags.String("driver", "sqlite", "database driver (sqlite, postgres, memory)")
	flags.String("dsn", "", "database source name(aka. DSN)")
	flags.String("secret", "", "secret used to sign access tokens")
	flags.Duration("learning-interval", profile.DefaultLearningInterval, "period between learning cycles of a user")
	flags.Duration("cycle-timeout", profile.DefaultCycleTimeout, "upper bound of one learning cycle, 0 disables it")
	flags.Bool("resume-learning", true, "restart learning on boot for users that had it enabled")

	for _, name := range []string{
		"mode", "addr", "port", "data", "driver", "dsn", "secret",
		"learning-interval", "cycle-timeout", "resume-learning",
	} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("rhythm")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	tokenCmd.Flags().Int32("user-id", 0, "id of the user the token is issued for")
	tokenCmd.Flags().Duration("ttl", auth.AccessTokenDuration, "token lifetime")
	rootCmd.AddCommand(tokenCmd, versionCmd)
}

func loadProfile() *profile.Profile {
	instanceProfile := &profile.Profile{
		Mode:             viper.GetString("mode"),
		Addr:             viper.GetString("addr"),
		Port:             viper.GetInt("port"),
		Data:             viper.GetString("data"),
		Driver:           viper.GetString("driver"),
		DSN:              viper.GetString("dsn"),
		Secret:           viper.GetString("secret"),
		LearningInterval: viper.GetDuration("learning-interval"),
		CycleTimeout:     viper.GetDuration("cycle-timeout"),
		ResumeLearning:   viper.GetBool("resume-learning"),
		Version:          version.GetCurrentVersion(viper.GetString("mode")),
	}
	instanceProfile.FromEnv()
	if err := instanceProfile.Validate(); err != nil {
		panic(err)
	}
	return instanceProfile
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("Rhythm %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if profile.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", profile.DSN)
		}
	}

	fmt.Printf("Data directory: %s\n", profile.Data)
	fmt.Printf("Database driver: %s\n", profile.Driver)
	fmt.Printf("Mode: %s\n", profile.Mode)
	fmt.Printf("Learning interval: %s\n", profile.LearningInterval)

	if len(profile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", profile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
