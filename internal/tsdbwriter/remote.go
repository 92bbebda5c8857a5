package tsdbwriter

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	supa "github.com/nedpals/supabase-go"
)

const remoteUploadTimeout = 10 * time.Second

// RemoteClient uploads buffered results to a Postgrest-fronted remote
// store, grounded on supabase.Client: it hides the underlying library,
// lazily (re)connects after an error, and wraps every call in a timeout
// since the library itself has no timeout support.
type RemoteClient struct {
	url     string
	anonKey string
	userKey string
	schema  string
	table   string

	subClient       *supa.Client
	shouldReconnect bool
	logger          *slog.Logger
}

// NewRemoteClient returns a RemoteClient targeting the given Postgrest
// schema/table. The underlying connection is made lazily on first use.
func NewRemoteClient(url, anonKey, userKey, schema, table string, logger *slog.Logger) *RemoteClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteClient{
		url: url, anonKey: anonKey, userKey: userKey, schema: schema, table: table,
		shouldReconnect: true,
		logger:          logger.With("host", url),
	}
}

// UploadResults inserts results into the remote table, reconnecting first
// if the previous call left the connection in a dirty state.
func (c *RemoteClient) UploadResults(results []Result) error {
	if err := c.reconnectIfNecessary(); err != nil {
		return fmt.Errorf("tsdbwriter: connect to remote store: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.subClient.DB.From(c.table).Insert(results).Execute(nil)
	}()

	select {
	case <-time.After(remoteUploadTimeout):
		c.shouldReconnect = true
		return errors.New("tsdbwriter: remote upload timed out")
	case err := <-errCh:
		if err != nil {
			c.shouldReconnect = true
		}
		return err
	}
}

func (c *RemoteClient) reconnectIfNecessary() error {
	if !c.shouldReconnect {
		return nil
	}

	subClient := supa.CreateClient(c.url, c.anonKey)
	subClient.DB.AddHeader("Accept-Profile", c.schema)
	subClient.DB.AddHeader("Content-Profile", c.schema)
	if c.userKey != "" {
		subClient.DB.AddHeader("Authorization", fmt.Sprintf("Bearer %s", c.userKey))
	}
	c.subClient = subClient
	c.shouldReconnect = false
	c.logger.Info("created remote store client")
	return nil
}
