// Command roomctl books rooms against a roombook server from the terminal.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"roombook/internal/availability"
	"roombook/internal/booking"
	"roombook/internal/config"
	"roombook/internal/logging"
	"roombook/internal/roomapi"
	"roombook/internal/session"
)

const usage = `usage: roomctl [global flags] <command> [flags]

commands:
  login         authenticate and store the session
  logout        forget the stored session
  register      request a new account
  whoami        show the logged in user
  floors        list floors
  rooms         list rooms, optionally of one floor
  availability  show free hours for rooms on a day
  book          book rooms for part of one day
  camp          book rooms over several days
  edit          change an existing booking
  show          show one booking
  mine          list your bookings
  cancel        cancel a booking
  ping          check that the server is up
  admin         pending | approve | deny | status | delete-all | list | calendar
`

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "roomctl:", err)
		}
		os.Exit(1)
	}
}

type storedSession struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func run(ctx context.Context, args []string, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("roomctl", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.Usage = func() {
		fmt.Fprint(errOut, usage)
		fs.PrintDefaults()
	}
	baseURL := fs.String("url", envOr("ROOMCTL_URL", "http://localhost:8000"), "server base URL")
	sessionPath := fs.String("session", envOr("ROOMCTL_SESSION", defaultSessionPath()), "file that stores tokens")
	tz := fs.String("tz", envOr("ROOMCTL_TIMEZONE", config.DefaultTimezone), "organisation time zone")
	redisAddr := fs.String("redis", os.Getenv("ROOMCTL_REDIS"), "redis address for the catalog cache")
	cacheTTL := fs.Duration("cache-ttl", 5*time.Minute, "catalog cache TTL, 0 disables caching")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	loc, err := time.LoadLocation(*tz)
	if err != nil {
		return fmt.Errorf("time zone: %w", err)
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger := logging.New(errOut, level)

	stored, err := loadSession(*sessionPath)
	if err != nil {
		return err
	}
	sess := session.New(stored.Access, stored.Refresh)

	client := roomapi.NewClient(*baseURL, sess, loc, logger)
	if *cacheTTL > 0 {
		if *redisAddr != "" {
			rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
			defer rdb.Close()
			client.UseRedisCache(rdb, *cacheTTL)
		} else {
			client.UseLocalCache(*cacheTTL)
		}
	}

	engine := availability.NewEngine(loc)
	a := &app{
		client:  client,
		engine:  engine,
		planner: booking.NewPlanner(engine, client, logger),
		loc:     loc,
		out:     out,
		errOut:  errOut,
		logger:  logger,
	}

	cmdErr := a.dispatch(ctx, fs.Arg(0), fs.Args()[1:])

	current := storedSession{Access: sess.Token(), Refresh: sess.RefreshTokenValue()}
	if current != stored {
		if err := saveSession(*sessionPath, current); err != nil {
			logger.Warn().Err(err).Str("path", *sessionPath).Msg("failed to store session")
		}
	}
	return cmdErr
}

type app struct {
	client  *roomapi.Client
	engine  *availability.Engine
	planner *booking.Planner
	loc     *time.Location
	out     io.Writer
	errOut  io.Writer
	logger  zerolog.Logger
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return a.login(ctx, args)
	case "logout":
		a.client.Session().Clear()
		fmt.Fprintln(a.out, "Logged out.")
		return nil
	case "register":
		return a.register(ctx, args)
	case "whoami":
		return a.whoami(ctx)
	case "floors":
		return a.floors(ctx)
	case "rooms":
		return a.rooms(ctx, args)
	case "availability":
		return a.availability(ctx, args)
	case "book":
		return a.book(ctx, args)
	case "camp":
		return a.camp(ctx, args)
	case "edit":
		return a.edit(ctx, args)
	case "show":
		return a.show(ctx, args)
	case "mine":
		return a.mine(ctx)
	case "cancel":
		return a.cancel(ctx, args)
	case "ping":
		if err := a.client.HealthCheck(ctx); err != nil {
			return a.explain(err)
		}
		fmt.Fprintln(a.out, "Server is up.")
		return nil
	case "admin":
		return a.admin(ctx, args)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".roomctl.json"
	}
	return filepath.Join(home, ".roomctl.json")
}

func loadSession(path string) (storedSession, error) {
	var s storedSession
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("read session: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return storedSession{}, fmt.Errorf("parse session %s: %w", path, err)
	}
	return s, nil
}

func saveSession(path string, s storedSession) error {
	if s.Access == "" && s.Refresh == "" {
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
