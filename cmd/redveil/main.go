package main

import (
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"redveil"
	"redveil/internal"
	pkgerrs "redveil/pkg/errors"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	configPath := os.Getenv("REDVEIL_CONFIG")
	if configPath == "" {
		configPath = "redveil.yaml"
	}
	cfg, err := redveil.LoadServerConfig(configPath)
	if err != nil {
		logger.Fatal("load config", zap.String("path", configPath), zap.Error(err))
	}
	cfg.ResolveEnv()

	client, err := redveil.NewClient(cfg.ClientConfig(logger))
	if err != nil {
		logger.Fatal("build client", zap.Error(err))
	}

	srv := &server{
		client:      client,
		collections: redveil.ParseCollections(cfg.Collections),
		logger:      logger,
	}

	app := fiber.New(fiber.Config{
		AppName:               "redveil",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(srv.requestLogger)
	srv.routes(app)

	go func() {
		logger.Info("listening", zap.String("addr", cfg.Listen))
		if err := app.Listen(cfg.Listen); err != nil {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	if err := app.Shutdown(); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

type server struct {
	client      *redveil.Client
	collections *redveil.CollectionSet
	logger      *zap.Logger
}

func (s *server) routes(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/r/:name", s.community)
	app.Get("/r/:name/comments/:id", s.post)
	app.Get("/r/:name/wiki", s.wiki)
	app.Get("/r/:name/wiki/+", s.wiki)
	app.Get("/u/:name", s.user)
	app.Get("/search", s.search)
	app.Get("/c/:name", s.collection)
	app.Get("/duplicates/:id", s.duplicates)

	app.Get("/img/+", s.media)
	app.Get("/vid/+", s.media)
	app.Get("/thumb/+", s.media)
}

func (s *server) requestLogger(c *fiber.Ctx) error {
	err := c.Next()
	s.logger.Info("request",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", c.Response().StatusCode()),
	)
	return err
}

// envelope is the wire shape of every JSON response.
type envelope struct {
	Data  any     `json:"data"`
	Error *string `json:"error"`
}

func respond(c *fiber.Ctx, data any) error {
	return c.JSON(envelope{Data: data})
}

func (s *server) respondErr(c *fiber.Ctx, err error) error {
	msg, status := friendlyError(err)
	s.logger.Warn("request failed",
		zap.String("path", c.Path()),
		zap.Int("status", status),
		zap.Error(err),
	)
	return c.Status(status).JSON(envelope{Error: &msg})
}

// friendlyError maps internal failures to a neutral message and status.
func friendlyError(err error) (string, int) {
	var fe *pkgerrs.FetchError
	if errors.As(err, &fe) {
		switch fe.Kind {
		case pkgerrs.KindNotFound:
			return "That page couldn't be found.", fiber.StatusNotFound
		case pkgerrs.KindPrivate:
			return "This community is private.", fiber.StatusForbidden
		case pkgerrs.KindBanned:
			return "This community has been banned.", fiber.StatusNotFound
		case pkgerrs.KindQuarantined:
			return "This community is quarantined. Opt in to view it.", fiber.StatusForbidden
		case pkgerrs.KindGated:
			return "This community is gated and can't be shown.", fiber.StatusForbidden
		case pkgerrs.KindRateLimited:
			return "Too many requests. Please wait a moment and try again.", fiber.StatusTooManyRequests
		}
	}
	var ce *pkgerrs.ConfigError
	if errors.As(err, &ce) {
		return "That doesn't look like a valid request.", fiber.StatusBadRequest
	}
	return "Unable to load this page right now. Please try again in a moment.", fiber.StatusBadGateway
}

func (s *server) community(c *fiber.Ctx) error {
	page, err := s.client.FetchCommunity(
		c.UserContext(),
		c.Params("name"),
		c.Query("sort"),
		c.Query("after"),
		c.QueryBool("quarantine"),
	)
	if err != nil {
		return s.respondErr(c, err)
	}
	return respond(c, page)
}

func (s *server) collection(c *fiber.Ctx) error {
	target, ok := s.collections.Resolve(c.Params("name"))
	if !ok {
		return s.respondErr(c, &pkgerrs.FetchError{
			Kind: pkgerrs.KindNotFound,
			Err:  errors.New("unknown collection"),
		})
	}
	page, err := s.client.FetchCommunity(
		c.UserContext(),
		target,
		c.Query("sort"),
		c.Query("after"),
		c.QueryBool("quarantine"),
	)
	if err != nil {
		return s.respondErr(c, err)
	}
	return respond(c, page)
}

func (s *server) post(c *fiber.Ctx) error {
	page, err := s.client.FetchPostWithComments(
		c.UserContext(),
		c.Params("name"),
		c.Params("id"),
		c.Query("sort"),
		c.Query("highlight"),
	)
	if err != nil {
		return s.respondErr(c, err)
	}
	return respond(c, page)
}

func (s *server) user(c *fiber.Ctx) error {
	page, err := s.client.FetchUser(
		c.UserContext(),
		c.Params("name"),
		c.Query("listing"),
		c.Query("after"),
	)
	if err != nil {
		return s.respondErr(c, err)
	}
	return respond(c, page)
}

func (s *server) search(c *fiber.Ctx) error {
	page, err := s.client.FetchSearch(
		c.UserContext(),
		c.Query("q"),
		c.Query("community"),
		c.Query("after"),
	)
	if err != nil {
		return s.respondErr(c, err)
	}
	return respond(c, page)
}

func (s *server) wiki(c *fiber.Ctx) error {
	page, err := s.client.FetchWiki(c.UserContext(), c.Params("name"), c.Params("+"))
	if err != nil {
		return s.respondErr(c, err)
	}
	return respond(c, page)
}

func (s *server) duplicates(c *fiber.Ctx) error {
	page, err := s.client.FetchDuplicates(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.respondErr(c, err)
	}
	return respond(c, page)
}

func (s *server) media(c *fiber.Ctx) error {
	resp, err := s.client.FetchMedia(c.UserContext(), c.Path(), c.Get(fiber.HeaderRange))
	if err != nil {
		return s.respondErr(c, err)
	}

	c.Status(resp.StatusCode)
	for _, h := range []string{
		fiber.HeaderContentType,
		fiber.HeaderContentLength,
		fiber.HeaderContentRange,
		fiber.HeaderAcceptRanges,
		fiber.HeaderETag,
		fiber.HeaderLastModified,
	} {
		if v := resp.Header.Get(h); v != "" {
			c.Set(h, v)
		}
	}
	c.Set(fiber.HeaderCacheControl, "public, max-age=86400")

	return c.SendStream(&countingBody{rc: resp.Body})
}

// countingBody feeds the streamed byte total into the media metrics.
type countingBody struct {
	rc io.ReadCloser
	n  int64
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	b.n += int64(n)
	return n, err
}

func (b *countingBody) Close() error {
	internal.CountMediaBytes(b.n)
	return b.rc.Close()
}
