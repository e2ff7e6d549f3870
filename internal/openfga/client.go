package openfga

import (
	"context"
	"fmt"
	"log/slog"

	"memberconsole/internal/config"

	openfga "github.com/openfga/go-sdk"
	"github.com/openfga/go-sdk/client"
	"github.com/openfga/go-sdk/credentials"
)

// Tuple is one relationship, e.g. user:u-1 chapter_admin chapter:ch-1.
type Tuple struct {
	User     string `json:"user"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

// Client wraps the OpenFGA SDK client. A disabled client performs no calls.
type Client struct {
	fga    *client.OpenFgaClient
	config config.OpenFGAConfig
	logger *slog.Logger
}

func NewClient(cfg config.OpenFGAConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "openfga")

	if !cfg.Enabled {
		logger.Info("OpenFGA is disabled")
		return &Client{config: cfg, logger: logger}, nil
	}

	clientCfg := &client.ClientConfiguration{
		ApiUrl:               cfg.APIURL,
		StoreId:              cfg.StoreID,
		AuthorizationModelId: cfg.AuthorizationModelID,
	}
	if cfg.APIToken != "" {
		clientCfg.Credentials = &credentials.Credentials{
			Method: credentials.CredentialsMethodApiToken,
			Config: &credentials.Config{
				ApiToken: cfg.APIToken,
			},
		}
	}

	fga, err := client.NewSdkClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create OpenFGA client: %w", err)
	}

	logger.Info("OpenFGA client initialized", "store_id", cfg.StoreID, "model_id", cfg.AuthorizationModelID)
	return &Client{fga: fga, config: cfg, logger: logger}, nil
}

func (c *Client) IsEnabled() bool {
	return c != nil && c.config.Enabled && c.fga != nil
}

// Verify checks that the configured store is reachable.
func (c *Client) Verify(ctx context.Context) error {
	if !c.IsEnabled() {
		return nil
	}
	store, err := c.fga.GetStore(ctx).Execute()
	if err != nil {
		return fmt.Errorf("get store: %w", err)
	}
	if store.Id != c.config.StoreID {
		return fmt.Errorf("store id mismatch: expected %s, got %s", c.config.StoreID, store.Id)
	}
	return nil
}

// Check asks whether user holds relation on object.
func (c *Client) Check(ctx context.Context, t Tuple) (bool, error) {
	if !c.IsEnabled() {
		return false, ErrDisabled
	}

	resp, err := c.fga.Check(ctx).Body(client.ClientCheckRequest{
		User:     t.User,
		Relation: t.Relation,
		Object:   t.Object,
	}).Execute()
	if err != nil {
		c.logger.Error("OpenFGA check failed", "user", t.User, "relation", t.Relation, "object", t.Object, "error", err)
		return false, fmt.Errorf("check %s %s %s: %w", t.User, t.Relation, t.Object, err)
	}

	allowed := resp.GetAllowed()
	c.logger.Debug("OpenFGA check completed", "user", t.User, "relation", t.Relation, "object", t.Object, "allowed", allowed)
	return allowed, nil
}

func (c *Client) WriteTuples(ctx context.Context, tuples []Tuple) error {
	if !c.IsEnabled() || len(tuples) == 0 {
		return nil
	}

	writes := make([]client.ClientTupleKey, 0, len(tuples))
	for _, t := range tuples {
		writes = append(writes, client.ClientTupleKey{User: t.User, Relation: t.Relation, Object: t.Object})
	}
	if _, err := c.fga.Write(ctx).Body(client.ClientWriteRequest{Writes: writes}).Execute(); err != nil {
		return fmt.Errorf("write %d tuples: %w", len(tuples), err)
	}
	c.logger.Debug("OpenFGA tuples written", "count", len(tuples))
	return nil
}

func (c *Client) DeleteTuples(ctx context.Context, tuples []Tuple) error {
	if !c.IsEnabled() || len(tuples) == 0 {
		return nil
	}

	deletes := make([]client.ClientTupleKeyWithoutCondition, 0, len(tuples))
	for _, t := range tuples {
		deletes = append(deletes, client.ClientTupleKeyWithoutCondition{User: t.User, Relation: t.Relation, Object: t.Object})
	}
	if _, err := c.fga.Write(ctx).Body(client.ClientWriteRequest{Deletes: deletes}).Execute(); err != nil {
		return fmt.Errorf("delete %d tuples: %w", len(tuples), err)
	}
	return nil
}

// WriteModel uploads defs as a new authorization model and returns its id.
func (c *Client) WriteModel(ctx context.Context, defs []openfga.TypeDefinition) (string, error) {
	if !c.IsEnabled() {
		return "", ErrDisabled
	}
	resp, err := c.fga.WriteAuthorizationModel(ctx).Body(client.ClientWriteAuthorizationModelRequest{
		SchemaVersion:   SchemaVersion,
		TypeDefinitions: defs,
	}).Execute()
	if err != nil {
		return "", fmt.Errorf("write authorization model: %w", err)
	}
	return resp.GetAuthorizationModelId(), nil
}
