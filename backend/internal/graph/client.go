package graph

import (
	"context"
	"sync"
	"time"

	"github.com/izukuuuu/opinion-system-sub001/backend/pkg/config"
	apperrors "github.com/izukuuuu/opinion-system-sub001/backend/pkg/errors"
	"github.com/izukuuuu/opinion-system-sub001/backend/pkg/logger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Settings are the connection parameters of a Client
type Settings struct {
	URI            string
	User           string
	Password       string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    int
}

// SettingsFromConfig extracts connection settings from application config
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		URI:            cfg.Neo4jURI,
		User:           cfg.Neo4jUser,
		Password:       cfg.Neo4jPassword,
		Database:       cfg.Neo4jDatabase,
		ConnectTimeout: time.Duration(cfg.ConnectTimeoutSeconds) * time.Second,
		MaxPoolSize:    cfg.MaxPoolSize,
	}
}

// Client owns the Neo4j driver. It is constructed once and passed to every
// component that writes to the graph.
//
// The driver is created lazily on first use and its connectivity is verified
// immediately; a driver that fails verification is closed and discarded so the
// next call attempts a fresh connection.
type Client struct {
	settings Settings
	logger   *zap.Logger

	mu     sync.Mutex
	driver neo4j.DriverWithContext
}

// NewClient creates a client without contacting the server
func NewClient(settings Settings) *Client {
	if settings.ConnectTimeout <= 0 {
		settings.ConnectTimeout = 10 * time.Second
	}
	if settings.MaxPoolSize <= 0 {
		settings.MaxPoolSize = 50
	}
	return &Client{
		settings: settings,
		logger:   logger.Component(nil, "graph.client"),
	}
}

// Connected reports whether a verified driver is currently held
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.driver != nil
}

// Connect ensures a verified driver exists
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.Driver(ctx)
	return err
}

// Driver returns the shared driver, creating and verifying it on first use
func (c *Client) Driver(ctx context.Context) (neo4j.DriverWithContext, error) {
	if c.settings.URI == "" {
		return nil, apperrors.NewConfigMissingRequired("NEO4J_URI")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.driver != nil {
		return c.driver, nil
	}

	timeout := c.settings.ConnectTimeout
	maxPool := c.settings.MaxPoolSize
	driver, err := neo4j.NewDriverWithContext(
		c.settings.URI,
		neo4j.BasicAuth(c.settings.User, c.settings.Password, ""),
		func(cfg *neo4j.Config) {
			cfg.MaxConnectionPoolSize = maxPool
			cfg.SocketConnectTimeout = timeout
		},
	)
	if err != nil {
		return nil, apperrors.NewGraphConnectionFailed(c.settings.URI, err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		c.logger.Error("Neo4j connectivity verification failed",
			zap.String("uri", c.settings.URI),
			zap.Error(err),
		)
		_ = driver.Close(ctx)
		return nil, apperrors.NewGraphConnectionFailed(c.settings.URI, err)
	}

	c.driver = driver
	c.logger.Info("Connected to Neo4j", zap.String("uri", c.settings.URI))
	return driver, nil
}

// WithSession opens a session, runs fn and always closes the session afterwards
func (c *Client) WithSession(ctx context.Context, mode neo4j.AccessMode, fn func(neo4j.SessionWithContext) error) error {
	driver, err := c.Driver(ctx)
	if err != nil {
		return err
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: c.settings.Database,
	})
	defer session.Close(ctx)

	return fn(session)
}

// ExecuteWrite runs work inside a managed write transaction
func (c *Client) ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	var out any
	err := c.WithSession(ctx, neo4j.AccessModeWrite, func(session neo4j.SessionWithContext) error {
		var err error
		out, err = session.ExecuteWrite(ctx, work)
		return err
	})
	return out, err
}

// Exec runs a single auto-commit statement and drains its result
func (c *Client) Exec(ctx context.Context, query string, params map[string]any) error {
	return c.WithSession(ctx, neo4j.AccessModeWrite, func(session neo4j.SessionWithContext) error {
		result, err := session.Run(ctx, query, params)
		if err != nil {
			return err
		}
		_, err = result.Consume(ctx)
		return err
	})
}

// Close releases the driver. It is safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.driver == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := c.driver.Close(ctx)
	c.driver = nil
	return err
}
