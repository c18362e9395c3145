package main

import (
	"strings"
	"sync"

	"github.com/cieplik206/dokumenty/config"
	"github.com/cieplik206/dokumenty/pkg/logger"
)

type commandContext struct {
	configFlag *string
	verbose    *bool

	configOnce sync.Once
	config     *config.IntakeConfig
	configErr  error

	logOnce sync.Once
	log     logger.Logger
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
	}
}

func (c *commandContext) ensureConfig() (*config.IntakeConfig, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		if path == "" {
			c.config, c.configErr = config.GetIntakeConfig()
			return
		}
		c.config, c.configErr = config.LoadIntakeConfig(path)
	})
	return c.config, c.configErr
}

// logger writes console logs to stderr so command output stays clean.
func (c *commandContext) logger() logger.Logger {
	c.logOnce.Do(func() {
		level := "info"
		if c.verbose != nil && *c.verbose {
			level = "debug"
		}
		log, err := logger.NewLogger(
			logger.WithLevel(level),
			logger.WithEncoding("console"),
			logger.WithOutputPaths([]string{"stderr"}),
		)
		if err != nil {
			log = logger.NewNop()
		}
		c.log = log
	})
	return c.log
}
