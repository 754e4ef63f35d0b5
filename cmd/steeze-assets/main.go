// steeze-assets waits for the build's handoff file, loads the asset manifest it
// names and serves lookups and health over a small admin HTTP surface.
//
// With --once it performs a single discovery and load, prints the resulting
// stats as JSON and exits non-zero on failure. Useful as a CI gate after a build.
//
// With --issue-token <subject> it prints an admin bearer token for POST /reload,
// signed with the configured ADMIN_JWT_SECRET and valid for --token-ttl.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeydtaylor/steeze-assets/pkg/codec"
	"github.com/joeydtaylor/steeze-assets/pkg/config"
	"github.com/joeydtaylor/steeze-assets/pkg/middleware/auth"
	"github.com/joeydtaylor/steeze-assets/pkg/middleware/logger"
	"github.com/joeydtaylor/steeze-assets/pkg/resolver"
	"github.com/joeydtaylor/steeze-assets/pkg/serverfx"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfgPath, listen, subject string
	var once bool
	var ttl time.Duration

	flagSet := pflag.NewFlagSet("steeze-assets", pflag.ContinueOnError)
	flagSet.StringVar(&cfgPath, "config", "", "config file (default: $"+config.PathEnv+" or "+config.DefaultPath+")")
	flagSet.StringVar(&listen, "listen", "", "admin listen address (overrides [server].listen)")
	flagSet.BoolVar(&once, "once", false, "load the manifest once, print stats and exit")
	flagSet.StringVar(&subject, "issue-token", "", "print an admin token for this subject and exit")
	flagSet.DurationVar(&ttl, "token-ttl", 24*time.Hour, "lifetime of the token printed by --issue-token")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if subject != "" {
		tok, err := issueToken(cfgPath, subject, ttl)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	}
	if once {
		return loadOnce(cfgPath)
	}

	fx.New(serverfx.Module(serverfx.Options{
		Service:    "steeze-assets",
		ConfigPath: cfgPath,
		Listen:     listen,
	})).Run()
	return nil
}

func loadOnce(cfgPath string) error {
	cfg, err := config.Load(config.Path(cfgPath))
	if err != nil {
		return err
	}
	opts := cfg.ResolverOptions(logger.NewLog("system.log"))
	opts.Watch = false
	res := resolver.New(opts)
	defer res.Teardown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loadErr := res.Initialize(ctx)
	b, err := codec.JSONStrict.Marshal(res.Stats())
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return loadErr
}

func issueToken(cfgPath, subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	cfg, err := config.Load(config.Path(cfgPath))
	if err != nil {
		return "", err
	}
	return auth.ProvideAuthentication(cfg).Issue(subject, auth.DefaultAdminRole, ttl)
}
