package eventstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/thingflow/thingflow/common/model"
)

// Config holds OpenSearch event store configuration.
type Config struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool

	// IndexPrefix prefixes the per-tenant event index name.
	IndexPrefix string
}

// OpenSearchStore implements DeviceEventStore on one tenant's event index.
type OpenSearchStore struct {
	client *opensearch.Client
	index  string
	tenant string

	// now is stubbed in tests.
	now func() time.Time
}

// NewOpenSearchStore creates a store for one tenant and verifies the
// cluster connection.
func NewOpenSearchStore(cfg Config, tenantToken string) (*OpenSearchStore, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.TLSSkipVerify,
			},
		},
	}

	osCfg := opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	}

	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	info, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to ping opensearch: %w", err)
	}
	defer info.Body.Close()

	if info.IsError() {
		return nil, fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	prefix := cfg.IndexPrefix
	if prefix == "" {
		prefix = "thingflow"
	}

	return &OpenSearchStore{
		client: client,
		index:  fmt.Sprintf("%s-events-%s", prefix, strings.ToLower(tenantToken)),
		tenant: tenantToken,
		now:    time.Now,
	}, nil
}

// Index returns the tenant event index name.
func (s *OpenSearchStore) Index() string { return s.index }

func (s *OpenSearchStore) AddDeviceMeasurements(ctx context.Context, ec model.EventContext, deviceToken string, req *model.MeasurementCreateRequest) (*model.PersistedEvent, error) {
	event := newPersistedEvent(model.EventTypeMeasurement, ec, deviceToken, req.EventCreateRequest, s.now())
	event.Measurement = req
	return s.persist(ctx, event)
}

func (s *OpenSearchStore) AddDeviceLocations(ctx context.Context, ec model.EventContext, deviceToken string, req *model.LocationCreateRequest) (*model.PersistedEvent, error) {
	event := newPersistedEvent(model.EventTypeLocation, ec, deviceToken, req.EventCreateRequest, s.now())
	event.Location = req
	return s.persist(ctx, event)
}

func (s *OpenSearchStore) AddDeviceAlerts(ctx context.Context, ec model.EventContext, deviceToken string, req *model.AlertCreateRequest) (*model.PersistedEvent, error) {
	req.ApplyDefaults()
	event := newPersistedEvent(model.EventTypeAlert, ec, deviceToken, req.EventCreateRequest, s.now())
	event.Alert = req
	return s.persist(ctx, event)
}

func (s *OpenSearchStore) AddDeviceCommandInvocations(ctx context.Context, ec model.EventContext, deviceToken string, req *model.CommandInvocationCreateRequest) (*model.PersistedEvent, error) {
	event := newPersistedEvent(model.EventTypeCommandInvocation, ec, deviceToken, req.EventCreateRequest, s.now())
	event.CommandInvocation = req
	return s.persist(ctx, event)
}

func (s *OpenSearchStore) AddDeviceCommandResponses(ctx context.Context, ec model.EventContext, deviceToken string, req *model.CommandResponseCreateRequest) (*model.PersistedEvent, error) {
	event := newPersistedEvent(model.EventTypeCommandResponse, ec, deviceToken, req.EventCreateRequest, s.now())
	event.CommandResponse = req
	return s.persist(ctx, event)
}

func (s *OpenSearchStore) AddDeviceStateChanges(ctx context.Context, ec model.EventContext, deviceToken string, req *model.StateChangeCreateRequest) (*model.PersistedEvent, error) {
	event := newPersistedEvent(model.EventTypeStateChange, ec, deviceToken, req.EventCreateRequest, s.now())
	event.StateChange = req
	return s.persist(ctx, event)
}

func (s *OpenSearchStore) persist(ctx context.Context, event *model.PersistedEvent) (*model.PersistedEvent, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index:      s.index,
		DocumentID: event.ID.String(),
		Body:       bytes.NewReader(data),
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("index event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("index event: opensearch returned %s", res.Status())
	}

	return event, nil
}

// GetDeviceEventByAlternateID looks up a stored event by alternate id using
// a term query. Returns (nil, nil) when no event carries the id.
func (s *OpenSearchStore) GetDeviceEventByAlternateID(ctx context.Context, alternateID string) (*model.PersistedEvent, error) {
	query := map[string]any{
		"size": 1,
		"query": map[string]any{
			"term": map[string]any{
				"alternate_id.keyword": alternateID,
			},
		},
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("search by alternate id: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		// Index does not exist yet; no events have been stored.
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("search by alternate id: opensearch returned %s", res.Status())
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source model.PersistedEvent `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	if len(result.Hits.Hits) == 0 {
		return nil, nil
	}
	event := result.Hits.Hits[0].Source
	return &event, nil
}
