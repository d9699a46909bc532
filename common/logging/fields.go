package logging

import "log/slog"

// Common field names for consistent logging across services.
const (
	FieldService   = "service"
	FieldTenant    = "tenant"
	FieldSource    = "source"
	FieldDevice    = "device_token"
	FieldEventID   = "event_id"
	FieldEventType = "event_type"
	FieldTopic     = "topic"
	FieldPartition = "partition"
	FieldOffset    = "offset"
	FieldError     = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Tenant returns a slog attribute for the tenant token.
func Tenant(token string) slog.Attr {
	return slog.String(FieldTenant, token)
}

// Source returns a slog attribute for the event source id.
func Source(id string) slog.Attr {
	return slog.String(FieldSource, id)
}

// Device returns a slog attribute for the device token.
func Device(token string) slog.Attr {
	return slog.String(FieldDevice, token)
}

// EventID returns a slog attribute for the event id.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// EventType returns a slog attribute for the event type.
func EventType(t string) slog.Attr {
	return slog.String(FieldEventType, t)
}

// Topic returns a slog attribute for a broker topic name.
func Topic(name string) slog.Attr {
	return slog.String(FieldTopic, name)
}

// Partition returns a slog attribute for a topic partition.
func Partition(p int) slog.Attr {
	return slog.Int(FieldPartition, p)
}

// Offset returns a slog attribute for a message offset.
func Offset(o int64) slog.Attr {
	return slog.Int64(FieldOffset, o)
}

// Err returns a slog attribute for an error value.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
