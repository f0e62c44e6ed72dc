package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	globalConfig "github.com/agentwa/wabridge/config"
	"github.com/agentwa/wabridge/infrastructure/whatsapp"
	"github.com/agentwa/wabridge/ui/rest"
	"github.com/agentwa/wabridge/ui/rest/middleware"
	"github.com/agentwa/wabridge/ui/websocket"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Run the bridge with its REST control surface",
	Run:   restServer,
}

func init() {
	rootCmd.AddCommand(restCmd)
}

func restServer(_ *cobra.Command, _ []string) {
	app := fiber.New(fiber.Config{
		Network:               "tcp",
		AppName:               "WaBridge",
		DisableStartupMessage: false,
		ServerHeader:          "Hidden",
		BodyLimit:             int(globalConfig.WhatsappMaxDownloadSize),
	})

	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.Recovery())

	if globalConfig.AppDebug {
		app.Use(logger.New())
	}

	apiGroup := app.Group("/api")

	if len(globalConfig.AppBasicAuth) > 0 {
		account := make(map[string]string)
		for _, basicAuth := range globalConfig.AppBasicAuth {
			ba := strings.Split(basicAuth, ":")
			if len(ba) != 2 {
				logrus.Fatalln("Basic auth is not valid, please use the format <user>:<secret>")
			}
			account[ba[0]] = ba[1]
		}
		apiGroup.Use(basicauth.New(basicauth.Config{
			Users: account,
			Next: func(c *fiber.Ctx) bool {
				// Allow CORS preflight without credentials.
				return c.Method() == fiber.MethodOptions
			},
		}))
	} else {
		logrus.Warn("[REST] APP_BASIC_AUTH not set, the control surface is unauthenticated")
	}

	// Graceful shutdown handler
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] Termination signal received, shutting down gracefully...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}
		StopApp()
	}()

	rest.InitSessionAPI(apiGroup, supervisor, pool)
	rest.InitPolicyAPI(apiGroup, policyStore)
	rest.InitSendAPI(apiGroup, supervisor)

	supervisor.OnState = func(state whatsapp.State, qr string) {
		_, _, account := supervisor.Status()
		go websocket.BroadcastState(state, qr, account)
	}
	websocket.RegisterRoutes(apiGroup, supervisor)
	go websocket.RunHub()

	apiGroup.All("/*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "API Endpoint not found",
			"path":  c.Path(),
		})
	})

	// Reconnect on boot when a session was left enabled.
	go func() {
		ctx := context.Background()
		if auto, err := policyStore.GetConfig(ctx, "auto_connect"); err == nil && auto == "true" {
			if err := supervisor.Connect(ctx); err != nil {
				logrus.WithError(err).Error("[REST] Auto-connect failed")
			}
		}
	}()

	if err := app.Listen(":" + globalConfig.AppPort); err != nil {
		logrus.Fatalln("Failed to start: ", err.Error())
	}
}
