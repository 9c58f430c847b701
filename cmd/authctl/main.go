// Command authctl administers an authcore credential database from the shell.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/common/expfmt"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/store/sqlstore"
)

const usage = `usage: authctl [flags] <command> [args]

commands:
  migrate                       apply schema migrations
  create-group NAME [DESC]      create a group
  register IDENTITY PASSWORD    create an account
  login IDENTITY PASSWORD       verify credentials and open a session
  forgot IDENTITY               issue a password recovery code
  complete CODE                 redeem a recovery code for a new password
  deactivate USERID             deactivate an account and print its activation code
  activate CODE                 activate the account holding CODE
`

type options struct {
	dialect     string
	dsn         string
	redisAddr   string
	configPath  string
	verbose     bool
	auditEvents bool
	dumpMetrics bool
	timeout     time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.dialect, "db", "sqlite", "database dialect: sqlite or postgres")
	flag.StringVar(&opts.dsn, "dsn", "file:authcore.db", "database connection string")
	flag.StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	flag.StringVar(&opts.configPath, "config", "", "YAML or TOML config file")
	flag.BoolVar(&opts.verbose, "v", false, "debug logging")
	flag.BoolVar(&opts.auditEvents, "audit", false, "write audit events as JSON to stderr")
	flag.BoolVar(&opts.dumpMetrics, "metrics", false, "print engine metrics after the command")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall command timeout")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fmt.Fprintln(os.Stderr, "\nflags:")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	err := run(ctx, opts, flag.Arg(0), flag.Args()[1:])
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "authctl: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("bad usage")

func run(ctx context.Context, opts options, command string, args []string) error {
	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := authcore.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := authcore.LoadConfig(opts.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	store, err := sqlstore.Open(ctx, sqlstore.Config{
		Dialect:        opts.dialect,
		DSN:            opts.dsn,
		MigrateOnStart: command == "migrate",
	})
	if err != nil {
		return err
	}
	defer store.Close()

	if command == "migrate" {
		fmt.Printf("migrated %s database\n", store.Dialect())
		return nil
	}

	client, cleanup, err := redisClient(opts.redisAddr)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Session.SigningKey == "" {
		key, err := internal.NewPassword(48)
		if err != nil {
			return err
		}
		cfg.Session.SigningKey = key
		logger.Warn("authctl: no session signing key configured, using an ephemeral one")
	}

	b := authcore.New().
		WithConfig(cfg).
		WithStore(store).
		WithRedis(client).
		WithLogger(logger)
	if cfg.Lockout.TrackAttempts {
		b.WithAttemptTracker(sqlstore.NewAttemptTracker(store, cfg.Lockout))
	}
	if opts.auditEvents {
		b.WithAuditSink(authcore.NewJSONWriterSink(os.Stderr))
	}
	engine, err := b.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := dispatch(ctx, engine, command, args); err != nil {
		return err
	}

	if opts.dumpMetrics {
		return writeMetrics(prometheus.NewPrometheusExporter(engine))
	}
	return nil
}

func redisClient(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	return client, func() { _ = client.Close() }, nil
}

func need(args []string, lo, hi int, form string) error {
	if len(args) < lo || len(args) > hi {
		return fmt.Errorf("%w: %s", errUsage, form)
	}
	return nil
}

func dispatch(ctx context.Context, engine *authcore.Engine, command string, args []string) error {
	switch command {
	case "create-group":
		if err := need(args, 1, 2, "create-group NAME [DESC]"); err != nil {
			return err
		}
		desc := ""
		if len(args) == 2 {
			desc = args[1]
		}
		g, err := engine.Groups().CreateGroup(ctx, args[0], desc)
		if err != nil {
			return err
		}
		fmt.Printf("group %s %s\n", g.ID, g.Name)

	case "register":
		if err := need(args, 2, 2, "register IDENTITY PASSWORD"); err != nil {
			return err
		}
		req := authcore.RegisterRequest{Password: args[1]}
		if engine.Config().Identity.Field == "username" {
			req.Username = args[0]
		} else {
			req.Email = args[0]
		}
		res, err := engine.Register(ctx, req)
		if err != nil {
			return err
		}
		fmt.Printf("user %s active=%t\n", res.User.ID, res.User.Active)
		if res.ActivationCode != "" {
			fmt.Printf("activation code %s\n", res.ActivationCode)
		}

	case "login":
		if err := need(args, 2, 2, "login IDENTITY PASSWORD"); err != nil {
			return err
		}
		res, err := engine.Login(ctx, args[0], args[1], false)
		if err != nil {
			return err
		}
		fmt.Printf("user %s session %s\n", res.User.ID, res.SessionHandle)

	case "forgot":
		if err := need(args, 1, 1, "forgot IDENTITY"); err != nil {
			return err
		}
		res, err := engine.ForgottenPassword(ctx, args[0])
		if err != nil {
			return err
		}
		if res.Code != "" {
			fmt.Printf("recovery code %s\n", res.Code)
		} else {
			fmt.Println("recovery code delivered")
		}

	case "complete":
		if err := need(args, 1, 1, "complete CODE"); err != nil {
			return err
		}
		res, err := engine.ForgottenPasswordComplete(ctx, args[0])
		if err != nil {
			return err
		}
		if res.NewPassword != "" {
			fmt.Printf("new password for %s: %s\n", res.Identity, res.NewPassword)
		} else {
			fmt.Printf("new password delivered to %s\n", res.Identity)
		}

	case "deactivate":
		if err := need(args, 1, 1, "deactivate USERID"); err != nil {
			return err
		}
		code, err := engine.Deactivate(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("activation code %s\n", code)

	case "activate":
		if err := need(args, 1, 1, "activate CODE"); err != nil {
			return err
		}
		id, err := engine.ActivateByCode(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("activated %s\n", id)

	default:
		return fmt.Errorf("%w: unknown command %q (commands: %s)", errUsage, command, strings.Join(commands, ", "))
	}
	return nil
}

var commands = []string{"migrate", "create-group", "register", "login", "forgot", "complete", "deactivate", "activate"}

func writeMetrics(exp *prometheus.PrometheusExporter) error {
	families, err := exp.Registry().Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(os.Stdout, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
