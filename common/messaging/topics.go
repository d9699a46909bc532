// Package messaging defines tenant topic naming and the wire payloads
// exchanged between the pipeline services over the broker.
package messaging

// Separator used between topic name segments.
const separator = "."

// Tenant topic indicator inserted between the instance prefix and the
// tenant token.
const tenantIndicator = "tenant"

// Role suffixes for tenant-scoped topics. The full topic name is
// {product}.{instance}.tenant.{tenantToken}.{suffix}.
const (
	TopicDecodedEvents              = "event-source-decoded-events"
	TopicFailedDecodeEvents         = "event-source-failed-decode-events"
	TopicDeviceRegistrationEvents   = "inbound-device-registration-events"
	TopicOutboundEvents             = "outbound-events"
	TopicOutboundCommandInvocations = "outbound-command-invocations"
	TopicUnprocessedBatchOperations = "unprocessed-batch-operations"
	TopicUnprocessedBatchElements   = "unprocessed-batch-elements"
	TopicFailedBatchElements        = "failed-batch-elements"
)

// TopicNaming computes stable, collision-free topic names for an instance.
// Tenant prefixes are unique per tenant token, so tenant topics never
// collide across tenants.
type TopicNaming struct {
	// Product identifies the product deployment (first name segment).
	Product string

	// Instance identifies the installation (second name segment).
	Instance string
}

// InstancePrefix returns the shared prefix for all topics of this instance.
func (n TopicNaming) InstancePrefix() string {
	return n.Product + separator + n.Instance
}

// TenantPrefix returns the prefix for all topics scoped to a tenant.
func (n TopicNaming) TenantPrefix(tenantToken string) string {
	return n.InstancePrefix() + separator + tenantIndicator + separator + tenantToken + separator
}

// TenantTopic returns the full topic name for a tenant and role suffix.
func (n TopicNaming) TenantTopic(tenantToken, suffix string) string {
	return n.TenantPrefix(tenantToken) + suffix
}

// DecodedEventsTopic returns the topic for decoded device events.
func (n TopicNaming) DecodedEventsTopic(tenantToken string) string {
	return n.TenantTopic(tenantToken, TopicDecodedEvents)
}

// FailedDecodeTopic returns the topic for payloads that failed decoding.
func (n TopicNaming) FailedDecodeTopic(tenantToken string) string {
	return n.TenantTopic(tenantToken, TopicFailedDecodeEvents)
}

// DeviceRegistrationTopic returns the topic for device registration requests.
func (n TopicNaming) DeviceRegistrationTopic(tenantToken string) string {
	return n.TenantTopic(tenantToken, TopicDeviceRegistrationEvents)
}

// OutboundEventsTopic returns the topic for enriched persisted events.
func (n TopicNaming) OutboundEventsTopic(tenantToken string) string {
	return n.TenantTopic(tenantToken, TopicOutboundEvents)
}

// OutboundCommandInvocationsTopic returns the topic for enriched command
// invocations.
func (n TopicNaming) OutboundCommandInvocationsTopic(tenantToken string) string {
	return n.TenantTopic(tenantToken, TopicOutboundCommandInvocations)
}

// ConsumerGroup returns the consumer group id for a tenant and role.
func (n TopicNaming) ConsumerGroup(tenantToken, role string) string {
	return n.TenantPrefix(tenantToken) + role + "-consumers"
}
