package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"

	"github.com/digiquarium/bouncer/pkg/audit"
	"github.com/digiquarium/bouncer/pkg/banlist"
	"github.com/digiquarium/bouncer/pkg/config"
	"github.com/digiquarium/bouncer/pkg/distress"
	"github.com/digiquarium/bouncer/pkg/filter"
	"github.com/digiquarium/bouncer/pkg/gateway"
	"github.com/digiquarium/bouncer/pkg/httputil"
	"github.com/digiquarium/bouncer/pkg/identity"
	"github.com/digiquarium/bouncer/pkg/pool"
	"github.com/digiquarium/bouncer/pkg/ratelimit"
	"github.com/digiquarium/bouncer/pkg/session"
	"github.com/digiquarium/bouncer/pkg/specimen"
)

const Version = "1.0.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		port := ""
		if len(os.Args) > 2 {
			port = os.Args[2]
		}
		runServer(port)
	case "scan":
		if len(os.Args) < 3 {
			fmt.Println("Usage: bouncer scan <text>")
			os.Exit(1)
		}
		runCLIScan(strings.Join(os.Args[2:], " "))
	case "status":
		runCLIStatus()
	case "version":
		fmt.Printf("bouncer v%s\n", Version)
		fmt.Println("Digiquarium visitor gateway")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("bouncer v%s - Digiquarium visitor gateway\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  bouncer serve [port]    Start the gateway HTTP server")
	fmt.Println("  bouncer scan <text>     Classify text against the inbound policy")
	fmt.Println("  bouncer status          Query a running gateway's status endpoint")
	fmt.Println("  bouncer version         Show version")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  BOUNCER_LISTEN_ADDR     HTTP listen address (default :8089)")
	fmt.Println("  BOUNCER_ACCESS_SECRET   Shared admission secret (required in production)")
	fmt.Println("  BOUNCER_IDENTITY_SALT   Salt for visitor identity hashing")
	fmt.Println("  BOUNCER_OLLAMA_URL      Specimen backend (default http://localhost:11434)")
	fmt.Println("  BOUNCER_TANKS_FILE      YAML tank definitions (default: stock three tanks)")
	fmt.Println("  BOUNCER_REDIS_URL       Shared rate limits and ban set (optional)")
	fmt.Println("  BOUNCER_POSTGRES_URL    Durable audit archive (optional)")
	fmt.Println("  BOUNCER_ADMIN_TOKEN     Enables the admin endpoints")
}

// runCLIScan classifies one message from the command line. Handy for tuning
// the rule table without standing up the server.
func runCLIScan(text string) {
	c := filter.NewClassifier()
	v := c.ClassifyInbound(text)

	out, _ := json.MarshalIndent(map[string]any{
		"action":   v.Action,
		"category": v.Category,
		"rule":     v.Rule,
		"message":  v.Message,
	}, "", "  ")
	fmt.Println(string(out))
}

// runCLIStatus queries the status endpoint of a gateway already running on
// this host.
func runCLIStatus() {
	addr := config.GetEnv("BOUNCER_LISTEN_ADDR", ":8089")
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}

	resp, err := httputil.FastClient().Get("http://" + addr + "/status")
	if err != nil {
		log.Fatalf("[FATAL] gateway unreachable at %s: %v", addr, err)
	}
	defer httputil.DrainAndClose(resp.Body)

	body, err := httputil.ReadResponseBody(resp.Body, 0)
	if err != nil {
		log.Fatalf("[FATAL] read status: %v", err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Println(pretty.String())
}

func runServer(port string) {
	cfg := config.NewDefaultConfig()
	if port != "" {
		if !strings.Contains(port, ":") {
			port = ":" + port
		}
		cfg.ListenAddr = port
	}
	if err := cfg.ResolveTanks(); err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
	cfg.MustValidate()

	// Backends: in-memory and file stores by default, Redis when configured.
	var (
		buckets ratelimit.BucketStore = ratelimit.NewMemoryStore()
		bans    banlist.Store
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("[FATAL] parse BOUNCER_REDIS_URL: %v", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("[FATAL] redis unreachable: %v", err)
		}
		buckets = ratelimit.NewRedisStore(client)
		bans = banlist.NewRedisStore(client)
		log.Printf("[STARTUP] using Redis at %s for rate limits and bans", opts.Addr)
	} else {
		fileBans, err := banlist.NewFileStore(cfg.StateFile)
		if err != nil {
			log.Fatalf("[FATAL] load ban state: %v", err)
		}
		bans = fileBans
		log.Printf("[STARTUP] ban state file: %s", cfg.StateFile)
	}

	auditLog, err := audit.NewLogger(cfg.AuditDir)
	if err != nil {
		log.Fatalf("[FATAL] audit log: %v", err)
	}
	if cfg.PostgresURL != "" {
		archive, err := audit.NewPostgresArchive(context.Background(), cfg.PostgresURL)
		if err != nil {
			log.Printf("[WARN] Postgres archive disabled: %v", err)
		} else {
			auditLog.SetArchive(archive)
			defer archive.Close()
			log.Printf("[STARTUP] audit archive: Postgres")
		}
	}

	tanks, err := pool.New(cfg.Tanks)
	if err != nil {
		log.Fatalf("[FATAL] tank pool: %v", err)
	}

	backend := specimen.NewClient(cfg.OllamaURL, cfg.DefaultModel,
		specimen.WithTimeout(cfg.GenerateTimeout),
		specimen.WithMaxConcurrent(cfg.MaxConcurrent),
	)

	scorer := distress.NewScorer()
	if cfg.EnableSemantics {
		index, err := distress.NewSemanticIndex(cfg.OllamaURL, cfg.EmbeddingModel)
		if err != nil {
			log.Printf("[WARN] semantic distress layer disabled (init failed: %v)", err)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			if err := index.LoadExemplars(ctx); err != nil {
				log.Printf("[WARN] semantic distress layer disabled (exemplar load failed: %v)", err)
			} else {
				scorer = distress.NewScorerWithSemantic(index)
				log.Printf("[STARTUP] semantic distress layer enabled (model %s)", cfg.EmbeddingModel)
			}
			cancel()
		}
	}

	gw := gateway.New(gateway.Options{
		AccessSecret: cfg.AccessSecret,
		Hasher:       identity.NewHasher(cfg.IdentitySalt),
		Bans:         bans,
		Limiter:      ratelimit.NewLimiter(cfg.RateLimits, buckets),
		Pool:         tanks,
		Registry:     session.NewRegistry(cfg.SessionLimits),
		Generator:    backend,
		Audit:        auditLog,
		Classifier:   filter.NewClassifierWithBounds(cfg.MaxInboundChars, cfg.MaxOutboundChars),
		Scorer:       scorer,
	})
	gw.StartSweep()
	defer gw.Close()

	if err := backend.HealthCheck(context.Background()); err != nil {
		log.Printf("[WARN] specimen backend not healthy at startup: %v", err)
	}

	app := buildApp(gw, backend, cfg)

	log.Printf("[STARTUP] bouncer v%s: %d tanks, listening on %s", Version, tanks.Capacity(), cfg.ListenAddr)
	if err := app.Listen(cfg.ListenAddr); err != nil {
		log.Fatalf("[FATAL] server: %v", err)
	}
}

func buildApp(gw *gateway.Gateway, backend *specimen.Client, cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "Digiquarium Bouncer",
	})

	app.Get("/health", func(c fiber.Ctx) error {
		backendStatus := "ok"
		if err := backend.HealthCheck(c.Context()); err != nil {
			backendStatus = "unreachable"
		}
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": Version,
			"backend": backendStatus,
		})
	})

	app.Get("/status", func(c fiber.Ctx) error {
		return c.JSON(gw.GetStatus(c.Context()))
	})

	app.Post("/session", func(c fiber.Ctx) error {
		var req struct {
			Secret string `json:"secret"`
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}

		res, err := gw.StartSession(c.Context(), c.IP(), req.Secret)
		if err != nil {
			return refusal(c, err)
		}
		return c.JSON(res)
	})

	app.Post("/session/:id/message", func(c fiber.Ctx) error {
		var req struct {
			Text string `json:"text"`
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}

		sessionID := c.Params("id")
		reply, err := gw.SubmitMessage(c.Context(), sessionID, req.Text)
		if err != nil {
			return refusal(c, err)
		}

		// The visitor may have dropped while the specimen was generating.
		// Their session ends so the tank frees up instead of idling out.
		if c.Context().Err() != nil {
			_ = gw.EndSession(sessionID, session.ReasonClientDisconnect)
		}

		return c.JSON(reply)
	})

	app.Get("/session/:id", func(c fiber.Ctx) error {
		snap, err := gw.SessionStatus(c.Params("id"))
		if err != nil {
			return refusal(c, err)
		}
		return c.JSON(fiber.Map{
			"id":         snap.ID,
			"status":     snap.Status,
			"end_reason": snap.EndReason,
			"specimen":   snap.Specimen,
			"messages":   snap.MessageCount,
			"warnings":   snap.Warnings,
		})
	})

	app.Delete("/session/:id", func(c fiber.Ctx) error {
		if err := gw.EndSession(c.Params("id"), session.ReasonVisitorLeft); err != nil {
			return refusal(c, err)
		}
		return c.JSON(fiber.Map{"status": "ended"})
	})

	admin := app.Group("/admin", func(c fiber.Ctx) error {
		if cfg.AdminToken == "" {
			return c.Status(404).JSON(fiber.Map{"error": "not found"})
		}
		if c.Get("X-Admin-Token") != cfg.AdminToken {
			return c.Status(401).JSON(fiber.Map{"error": "unauthorized"})
		}
		return c.Next()
	})

	admin.Get("/sessions", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"sessions": gw.Sessions()})
	})

	admin.Post("/terminate/:id", func(c fiber.Ctx) error {
		var req struct {
			Reason string `json:"reason"`
		}
		// The body is optional; no reason means a generic termination.
		_ = c.Bind().Body(&req)

		if err := gw.EmergencyTerminate(c.Params("id"), req.Reason); err != nil {
			return refusal(c, err)
		}
		return c.JSON(fiber.Map{"status": "terminated"})
	})

	admin.Post("/ban", func(c fiber.Ctx) error {
		var req struct {
			Token  string `json:"token"`
			Reason string `json:"reason"`
		}
		if err := c.Bind().Body(&req); err != nil || req.Token == "" {
			return c.Status(400).JSON(fiber.Map{"error": "token field is required"})
		}
		if req.Reason == "" {
			req.Reason = "operator decision"
		}
		if err := gw.BanIdentity(c.Context(), req.Token, req.Reason); err != nil {
			return refusal(c, err)
		}
		return c.JSON(fiber.Map{"status": "banned"})
	})

	admin.Post("/unban", func(c fiber.Ctx) error {
		var req struct {
			Token string `json:"token"`
		}
		if err := c.Bind().Body(&req); err != nil || req.Token == "" {
			return c.Status(400).JSON(fiber.Map{"error": "token field is required"})
		}
		if err := gw.UnbanIdentity(c.Context(), req.Token); err != nil {
			return refusal(c, err)
		}
		return c.JSON(fiber.Map{"status": "unbanned"})
	})

	return app
}

// refusal maps gateway errors to HTTP responses. Visitor-facing messages
// come from the error itself; anything unexpected becomes an opaque 500.
func refusal(c fiber.Ctx, err error) error {
	var le *ratelimit.LimitError
	switch {
	case errors.As(err, &le):
		return c.Status(429).JSON(fiber.Map{"error": le.Message})
	case errors.Is(err, gateway.ErrBadCredential):
		return c.Status(401).JSON(fiber.Map{"error": "invalid credentials"})
	case errors.Is(err, gateway.ErrBanned):
		return c.Status(403).JSON(fiber.Map{"error": "access denied"})
	case errors.Is(err, gateway.ErrDuplicateSession):
		return c.Status(409).JSON(fiber.Map{"error": "you already have an active session"})
	case errors.Is(err, pool.ErrNoFreeTank):
		return c.Status(503).JSON(fiber.Map{"error": "all tanks are occupied, please try again shortly"})
	case errors.Is(err, session.ErrNotFound):
		return c.Status(404).JSON(fiber.Map{"error": "session not found"})
	case errors.Is(err, gateway.ErrSessionNotActive):
		return c.Status(410).JSON(fiber.Map{"error": "session has ended"})
	case errors.Is(err, gateway.ErrBackendUnavailable):
		return c.Status(502).JSON(fiber.Map{"error": "specimen is not responding, please try again"})
	default:
		log.Printf("[ERROR] %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "internal error"})
	}
}
