package ledger

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name to
// enable multiple fireline instances to safely coexist on a single Redis
// server.
//
// Key pattern: fireline:{instance_name}:{entity}:{id}
// Channel pattern: fireline:{instance_name}:{event_type}_events

// PermitKey returns the Redis key for a permit hash.
// Pattern: fireline:{instance_name}:permit:{permit_id}
func PermitKey(instanceName, permitID string) string {
	return fmt.Sprintf("fireline:%s:permit:%s", instanceName, permitID)
}

// PermitHistoryKey returns the Redis key for a permit's revision ZSET.
// Members are JSON revision snapshots scored by commit sequence.
// Pattern: fireline:{instance_name}:permit:{permit_id}:history
func PermitHistoryKey(instanceName, permitID string) string {
	return fmt.Sprintf("fireline:%s:permit:%s:history", instanceName, permitID)
}

// StatusIndexKey returns the Redis key for the set of permit IDs in a status.
// Pattern: fireline:{instance_name}:index:status:{status}
func StatusIndexKey(instanceName string, status PermitStatus) string {
	return fmt.Sprintf("fireline:%s:index:status:%s", instanceName, status)
}

// TypeIndexKey returns the Redis key for the set of permit IDs of a type.
// Pattern: fireline:{instance_name}:index:type:{permit_type}
func TypeIndexKey(instanceName string, permitType PermitType) string {
	return fmt.Sprintf("fireline:%s:index:type:%s", instanceName, permitType)
}

// CloseoutKey returns the Redis key for a closeout hash. Closeouts are
// keyed by permit ID because at most one closeout exists per permit.
// Pattern: fireline:{instance_name}:closeout:{permit_id}
func CloseoutKey(instanceName, permitID string) string {
	return fmt.Sprintf("fireline:%s:closeout:%s", instanceName, permitID)
}

// CloseoutBySignatureKey returns the Redis key for the signature->closeout
// index. This enables signature submissions to find their closeout record.
// Pattern: fireline:{instance_name}:closeout_by_signature:{signature_id}
func CloseoutBySignatureKey(instanceName, signatureID string) string {
	return fmt.Sprintf("fireline:%s:closeout_by_signature:%s", instanceName, signatureID)
}

// ArchiveKey returns the Redis key for a permit's archive receipt hash.
// Pattern: fireline:{instance_name}:archive:{permit_id}
func ArchiveKey(instanceName, permitID string) string {
	return fmt.Sprintf("fireline:%s:archive:%s", instanceName, permitID)
}

// PermitEventsChannel returns the Pub/Sub channel name for permit events.
// Pattern: fireline:{instance_name}:permit_events
func PermitEventsChannel(instanceName string) string {
	return fmt.Sprintf("fireline:%s:permit_events", instanceName)
}

// CloseoutEventsChannel returns the Pub/Sub channel name for closeout events.
// Pattern: fireline:{instance_name}:closeout_events
func CloseoutEventsChannel(instanceName string) string {
	return fmt.Sprintf("fireline:%s:closeout_events", instanceName)
}
