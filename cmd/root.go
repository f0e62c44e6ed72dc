package cmd

import (
	"context"
	"os"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	globalConfig "github.com/agentwa/wabridge/config"
	"github.com/agentwa/wabridge/domains/agent"
	"github.com/agentwa/wabridge/domains/policy"
	"github.com/agentwa/wabridge/infrastructure/policystore"
	"github.com/agentwa/wabridge/infrastructure/whatsapp"
	"github.com/agentwa/wabridge/integrations/agents"
	"github.com/agentwa/wabridge/pkg/kvcache"
	"github.com/agentwa/wabridge/pkg/msgworker"
)

var (
	policyStore   policy.Store
	agentProvider agent.Agent
	cache         kvcache.Cache
	pool          *msgworker.Pool
	supervisor    *whatsapp.Supervisor
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wabridge",
	Short: "WhatsApp to AI agent bridge",
	Long: `wabridge connects a WhatsApp account to an AI agent: inbound
messages are debounced, wrapped with sender context, and answered by
the configured provider, guarded by an allowlist with pairing codes.`,
}

func init() {
	// .env first so flag defaults and viper both see it.
	_ = godotenv.Load()

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	initFlags()
	cobra.OnInitialize(initEnvConfig, initApp)
}

// initEnvConfig applies viper-visible environment overrides on top of
// the config package defaults.
func initEnvConfig() {
	viper.AutomaticEnv()

	if envPort := viper.GetString("app_port"); envPort != "" {
		globalConfig.AppPort = envPort
	}
	if viper.GetBool("app_debug") {
		globalConfig.AppDebug = true
	}
	if envOs := viper.GetString("app_os"); envOs != "" {
		globalConfig.AppOs = envOs
	}
	envBasicAuth := viper.GetString("app_basic_auth")
	if envBasicAuth == "" {
		envBasicAuth = os.Getenv("APP_BASIC_AUTH")
	}
	if envBasicAuth != "" {
		globalConfig.AppBasicAuth = strings.Split(envBasicAuth, ",")
	}
	if envProvider := viper.GetString("agent_provider"); envProvider != "" {
		globalConfig.AgentProvider = strings.ToLower(envProvider)
	}
	if envModel := viper.GetString("agent_model"); envModel != "" {
		globalConfig.AgentModel = envModel
	}
}

func initFlags() {
	rootCmd.PersistentFlags().StringVarP(
		&globalConfig.AppPort,
		"port", "p",
		globalConfig.AppPort,
		"change port number with --port <number> | example: --port=8080",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&globalConfig.AppDebug,
		"debug", "d",
		globalConfig.AppDebug,
		"hide or displaying log with --debug <true/false> | example: --debug=true",
	)
	rootCmd.PersistentFlags().StringVarP(
		&globalConfig.AppOs,
		"os", "",
		globalConfig.AppOs,
		`device name shown in WhatsApp --os <string> | example: --os="Chrome"`,
	)
	rootCmd.PersistentFlags().StringSliceVarP(
		&globalConfig.AppBasicAuth,
		"basic-auth", "b",
		globalConfig.AppBasicAuth,
		"basic auth credential | -b=yourUsername:yourPassword",
	)
	rootCmd.PersistentFlags().StringVarP(
		&globalConfig.DBName,
		"db-name", "",
		globalConfig.DBName,
		`policy database path or name --db-name <string> | example: --db-name="storages/bridge.db"`,
	)
	rootCmd.PersistentFlags().StringVarP(
		&globalConfig.AgentProvider,
		"agent-provider", "",
		globalConfig.AgentProvider,
		`agent backend --agent-provider <gemini|openai> | example: --agent-provider=openai`,
	)
	rootCmd.PersistentFlags().IntVarP(
		&globalConfig.MessageWorkerPoolSize,
		"message-workers", "",
		globalConfig.MessageWorkerPoolSize,
		`number of concurrent message workers --message-workers <number> | example: --message-workers=30`,
	)
	rootCmd.PersistentFlags().IntVarP(
		&globalConfig.MessageWorkerQueueSize,
		"message-queue-size", "",
		globalConfig.MessageWorkerQueueSize,
		`queue size per message worker --message-queue-size <number> | example: --message-queue-size=1500`,
	)
}

func initApp() {
	if globalConfig.AppDebug {
		globalConfig.WhatsappLogLevel = "DEBUG"
		logrus.SetLevel(logrus.DebugLevel)
	}

	if err := os.MkdirAll(globalConfig.PathStorages, 0o755); err != nil {
		logrus.Errorln(err)
	}

	ctx := context.Background()

	db, err := policystore.OpenDatabase()
	if err != nil {
		logrus.Fatalf("failed to open policy database: %v", err)
	}
	policyStore, err = policystore.NewGormStore(db)
	if err != nil {
		logrus.Fatalf("failed to init policy store: %v", err)
	}

	if globalConfig.ValkeyEnabled {
		vk, err := kvcache.NewValkey(kvcache.ValkeyConfig{
			Address:   globalConfig.ValkeyAddress,
			Password:  globalConfig.ValkeyPassword,
			DB:        globalConfig.ValkeyDB,
			KeyPrefix: globalConfig.ValkeyKeyPrefix,
		})
		if err != nil {
			logrus.WithError(err).Warn("[APP] Valkey unavailable, falling back to in-memory cache")
			cache = kvcache.NewMemory()
		} else {
			cache = vk
		}
	} else {
		cache = kvcache.NewMemory()
	}

	agentProvider, err = agents.New()
	if err != nil {
		logrus.Fatalf("failed to init agent provider: %v", err)
	}

	pool = msgworker.NewPool(globalConfig.MessageWorkerPoolSize, globalConfig.MessageWorkerQueueSize)
	pool.Start(ctx)

	supervisor = whatsapp.NewSupervisor(policyStore, agentProvider, pool, cache)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// StopApp performs a clean shutdown of the socket and worker pool.
func StopApp() {
	logrus.Info("[APP] Stopping application...")

	if supervisor != nil {
		supervisor.Disconnect()
	}
	if pool != nil {
		pool.Stop()
	}

	logrus.Info("[APP] Application stopped cleanly.")
}
