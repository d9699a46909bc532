package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Deduplication policy names accepted in the wiring document.
const (
	PolicyNone        = "none"
	PolicyAlternateID = "alternate-id"
	PolicyPredicate   = "predicate"
)

// Receiver type names accepted in the wiring document.
const ReceiverMQTT = "mqtt"

// Decoder format names accepted in the wiring document.
const FormatJSONBatch = "json-batch"

// Wiring is the per-tenant event source topology, loaded once at startup.
// Decoders and deduplicators are fixed for the process lifetime; there is
// no hot-swap mid-stream.
type Wiring struct {
	Tenants []TenantWiring `yaml:"tenants"`
}

type TenantWiring struct {
	Token   string         `yaml:"token"`
	Sources []SourceWiring `yaml:"sources"`
}

type SourceWiring struct {
	ID        string           `yaml:"id"`
	Dedup     DedupWiring      `yaml:"dedup"`
	Receivers []ReceiverWiring `yaml:"receivers"`
	Decoders  []DecoderWiring  `yaml:"decoders"`
}

type DedupWiring struct {
	// Policy selects the deduplication policy; empty means none.
	Policy string `yaml:"policy"`

	// Predicate names a duplicate test registered in code via
	// dedup.RegisterPredicate. Required when Policy is "predicate".
	Predicate string `yaml:"predicate"`
}

type ReceiverWiring struct {
	Type      string `yaml:"type"`
	BrokerURL string `yaml:"broker_url"`
	ClientID  string `yaml:"client_id"`
	Topic     string `yaml:"topic"`
	QoS       byte   `yaml:"qos"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

type DecoderWiring struct {
	// DeviceType restricts the decoder to devices of this type token;
	// empty matches every device.
	DeviceType string `yaml:"device_type"`
	Format     string `yaml:"format"`
}

// LoadWiring reads and validates the wiring document at path.
func LoadWiring(path string) (*Wiring, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wiring file: %w", err)
	}
	return ParseWiring(data)
}

// ParseWiring parses and validates a wiring document.
func ParseWiring(data []byte) (*Wiring, error) {
	var w Wiring
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse wiring: %w", err)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// Validate checks structural invariants: unique tenant tokens, unique
// source ids per tenant, known policy/receiver/format names, and at least
// one decoder per source.
func (w *Wiring) Validate() error {
	if len(w.Tenants) == 0 {
		return fmt.Errorf("wiring declares no tenants")
	}

	tenantSeen := make(map[string]bool)
	for _, tenant := range w.Tenants {
		if tenant.Token == "" {
			return fmt.Errorf("tenant with empty token")
		}
		if tenantSeen[tenant.Token] {
			return fmt.Errorf("duplicate tenant token %q", tenant.Token)
		}
		tenantSeen[tenant.Token] = true

		sourceSeen := make(map[string]bool)
		for _, src := range tenant.Sources {
			if src.ID == "" {
				return fmt.Errorf("tenant %q: source with empty id", tenant.Token)
			}
			if sourceSeen[src.ID] {
				return fmt.Errorf("tenant %q: duplicate source id %q", tenant.Token, src.ID)
			}
			sourceSeen[src.ID] = true

			switch src.Dedup.Policy {
			case "", PolicyNone, PolicyAlternateID:
			case PolicyPredicate:
				if src.Dedup.Predicate == "" {
					return fmt.Errorf("tenant %q source %q: predicate policy requires a predicate name",
						tenant.Token, src.ID)
				}
			default:
				return fmt.Errorf("tenant %q source %q: unknown dedup policy %q",
					tenant.Token, src.ID, src.Dedup.Policy)
			}

			if len(src.Decoders) == 0 {
				return fmt.Errorf("tenant %q source %q: no decoders", tenant.Token, src.ID)
			}
			for _, d := range src.Decoders {
				if d.Format != FormatJSONBatch {
					return fmt.Errorf("tenant %q source %q: unknown decoder format %q",
						tenant.Token, src.ID, d.Format)
				}
			}

			for _, r := range src.Receivers {
				if r.Type != ReceiverMQTT {
					return fmt.Errorf("tenant %q source %q: unknown receiver type %q",
						tenant.Token, src.ID, r.Type)
				}
				if r.BrokerURL == "" || r.Topic == "" {
					return fmt.Errorf("tenant %q source %q: mqtt receiver requires broker_url and topic",
						tenant.Token, src.ID)
				}
			}
		}
	}
	return nil
}
