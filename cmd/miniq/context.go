package main

import (
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"miniq/internal/backends"
	"miniq/internal/config"
	"miniq/internal/jobstore"
	"miniq/internal/journal"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// withStore opens the configured job store for the duration of fn.
func (c *commandContext) withStore(ctx context.Context, fn func(jobstore.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := backends.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

// withJournal opens the configured journal for the duration of fn.
func (c *commandContext) withJournal(ctx context.Context, fn func(journal.Journal) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	j, err := backends.OpenJournal(ctx, cfg)
	if err != nil {
		return err
	}
	defer j.Close()
	return fn(j)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
