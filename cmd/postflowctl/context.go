package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/app"
)

type commandContext struct {
	envFlag  *string
	jsonFlag *bool

	configOnce sync.Once
	config     *config.Config

	appOnce sync.Once
	app     *app.App
	appErr  error
}

func newCommandContext(envFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{envFlag: envFlag, jsonFlag: jsonFlag}
}

func (c *commandContext) ensureConfig() *config.Config {
	c.configOnce.Do(func() {
		if path := strings.TrimSpace(*c.envFlag); path != "" {
			if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
				slog.Warn("could not load env file", "path", path, "error", err)
			}
		}
		c.config = config.LoadConfig()
		slog.SetDefault(app.NewLogger(os.Stderr, c.config.LogLevel))
	})
	return c.config
}

func (c *commandContext) ensureApp(ctx context.Context) (*app.App, error) {
	c.appOnce.Do(func() {
		c.app, c.appErr = app.New(ctx, c.ensureConfig())
	})
	return c.app, c.appErr
}

func (c *commandContext) close() error {
	if c.app == nil {
		return nil
	}
	return c.app.Close()
}

// wantJSON is true when asked for, or when stdout is not a terminal.
func (c *commandContext) wantJSON(cmd *cobra.Command) bool {
	if c.jsonFlag != nil && *c.jsonFlag {
		return true
	}
	f, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return true
	}
	fd := f.Fd()
	return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}
