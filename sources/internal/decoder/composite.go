package decoder

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/thingflow/thingflow/common/model"
	"github.com/thingflow/thingflow/common/registry"
)

// Choice pairs an applicability predicate with a decoder. Choices are
// registered at event source startup and evaluated in order; the first
// matching predicate wins. Predicates must be side-effect-free so that
// registration order is the only source of selection behavior.
type Choice struct {
	// Describe names the choice for logging.
	Describe string

	// Matches reports whether the decoder applies to the payload. The
	// metadata always has Device and DeviceType resolved.
	Matches func(md *MessageMetadata) bool

	Decoder Decoder
}

// NewDeviceTypeChoice matches payloads from devices of the given type.
func NewDeviceTypeChoice(deviceTypeToken string, d Decoder) Choice {
	return Choice{
		Describe: "device-type:" + deviceTypeToken,
		Matches: func(md *MessageMetadata) bool {
			return md.DeviceType != nil && md.DeviceType.Token == deviceTypeToken
		},
		Decoder: d,
	}
}

// NewPredicateChoice matches payloads with an arbitrary predicate.
func NewPredicateChoice(describe string, matches func(md *MessageMetadata) bool, d Decoder) Choice {
	return Choice{Describe: describe, Matches: matches, Decoder: d}
}

// Composite resolves device context for a payload and delegates to the
// first applicable decoder choice. Composites may nest: a nested composite
// sees the already-resolved device context in the metadata and skips the
// registry lookup.
type Composite struct {
	extractor MetadataExtractor
	devices   registry.DeviceRegistry
	choices   []Choice

	// lookupTimer observes device resolution latency; optional.
	lookupTimer prometheus.Observer
}

// NewComposite builds a composite decoder over the ordered choices.
func NewComposite(extractor MetadataExtractor, devices registry.DeviceRegistry, choices []Choice) *Composite {
	return &Composite{
		extractor: extractor,
		devices:   devices,
		choices:   choices,
	}
}

// WithLookupTimer attaches a histogram observer for device lookups.
func (c *Composite) WithLookupTimer(o prometheus.Observer) *Composite {
	c.lookupTimer = o
	return c
}

// Decode extracts metadata, resolves the device, selects a choice, and
// delegates. All failures are reported as *DecodeError.
func (c *Composite) Decode(ctx context.Context, payload []byte, metadata *MessageMetadata) ([]*model.DecodedDeviceRequest, error) {
	md, err := c.extract(payload, metadata)
	if err != nil {
		return nil, err
	}

	if err := c.resolveDevice(ctx, md); err != nil {
		return nil, err
	}

	for _, choice := range c.choices {
		if choice.Matches(md) {
			return choice.Decoder.Decode(ctx, payload, md)
		}
	}
	return nil, NewDecodeError(ReasonNoDecoder,
		fmt.Errorf("no decoder choice matched device %q", md.DeviceToken))
}

func (c *Composite) extract(payload []byte, metadata *MessageMetadata) (*MessageMetadata, error) {
	// A nested composite receives already-extracted metadata.
	if metadata != nil && metadata.DeviceToken != "" {
		return metadata, nil
	}

	var source map[string]string
	if metadata != nil {
		source = metadata.Source
	}

	md, err := c.extractor.ExtractMetadata(payload, source)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, NewDecodeError(ReasonInvalidPayload, err)
	}
	return md, nil
}

func (c *Composite) resolveDevice(ctx context.Context, md *MessageMetadata) error {
	// Already resolved by an outer composite.
	if md.Device != nil && md.DeviceType != nil {
		return nil
	}

	var timer *prometheus.Timer
	if c.lookupTimer != nil {
		timer = prometheus.NewTimer(c.lookupTimer)
	}
	device, err := c.devices.GetDeviceByToken(ctx, md.DeviceToken)
	if timer != nil {
		timer.ObserveDuration()
	}
	if err != nil {
		if errors.Is(err, registry.ErrDeviceNotFound) {
			return NewDecodeError(ReasonUnknownDevice,
				fmt.Errorf("device %q is not registered", md.DeviceToken))
		}
		return NewDecodeError(ReasonInvalidPayload, fmt.Errorf("device lookup failed: %w", err))
	}

	deviceType, err := c.devices.GetDeviceType(ctx, device.DeviceTypeID)
	if err != nil {
		return NewDecodeError(ReasonInvalidPayload, fmt.Errorf("device type lookup failed: %w", err))
	}

	md.Device = device
	md.DeviceType = deviceType
	return nil
}
