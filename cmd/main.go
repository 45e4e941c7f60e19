package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jessevdk/go-flags"

	"github.com/victornm/questiontime/internal/config"
	"github.com/victornm/questiontime/internal/server"
)

type options struct {
	Config string `long:"config" short:"c" env:"CONFIG_PATH" description:"Configuration file path"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		var fe *flags.Error
		if errors.As(err, &fe) && fe.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	c, err := loadConfig(opts.Config)
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	slog.SetDefault(newLogger(c))

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		log.Fatalf("Init server failed: %v", err)
	}

	go func() {
		if err := s.Start(); err != nil {
			slog.Error("server: stopped with error", "error", err)
			shutdown <- syscall.SIGTERM
		}
	}()

	<-shutdown
	s.Shutdown()
}

func loadConfig(p string) (server.Config, error) {
	c := server.DefaultConfig()

	err := config.Load(p, &c,
		config.WithEnvFiles(".env"),
		config.WithEnvAlias("grader.apikey", "OPENAI_API_KEY"),
	)
	if err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}

func newLogger(c server.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}

	ho := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, ho))
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, ho))
}
