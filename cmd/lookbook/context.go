package main

import (
	"net"
	"os"
	"strings"
	"sync"

	"lookbook/internal/api"
	"lookbook/internal/config"
)

const fallbackBind = "127.0.0.1:7680"

type commandContext struct {
	serverFlag *string
	userFlag   *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	clientOnce sync.Once
	client     *api.Client
}

func newCommandContext(serverFlag, userFlag, configFlag *string) *commandContext {
	return &commandContext{
		serverFlag: serverFlag,
		userFlag:   userFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) apiClient() *api.Client {
	c.clientOnce.Do(func() {
		c.client = api.NewClient(c.serverURL(), c.userID())
	})
	return c.client
}

// serverURL resolves the daemon base URL: flag, then environment, then the
// bind address from the configuration file.
func (c *commandContext) serverURL() string {
	if c.serverFlag != nil && strings.TrimSpace(*c.serverFlag) != "" {
		return strings.TrimRight(strings.TrimSpace(*c.serverFlag), "/")
	}
	if env := strings.TrimSpace(os.Getenv("LOOKBOOK_SERVER")); env != "" {
		return strings.TrimRight(env, "/")
	}
	bind := fallbackBind
	if cfg, err := c.ensureConfig(); err == nil && cfg != nil && cfg.Paths.APIBind != "" {
		bind = cfg.Paths.APIBind
	}
	return bindToURL(bind)
}

func bindToURL(bind string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(bind))
	if err != nil {
		return "http://" + bind
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func (c *commandContext) userID() string {
	if c.userFlag != nil && strings.TrimSpace(*c.userFlag) != "" {
		return strings.TrimSpace(*c.userFlag)
	}
	if env := strings.TrimSpace(os.Getenv("LOOKBOOK_USER")); env != "" {
		return env
	}
	return "default"
}
