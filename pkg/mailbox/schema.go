package mailbox

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by deployment name to
// enable multiple deployments to safely coexist on a single Redis server.
//
// Key pattern: comb:{deployment_name}:{entity}[:{id}]
// Channel pattern: comb:{deployment_name}:announce

// MaxMailboxUpdates is the number of updates retained in a deployment's
// mailbox. Older updates are evicted on publish.
const MaxMailboxUpdates = 20

// UpdatesKey returns the Redis key for a deployment's update ZSET.
// Members are JSON-encoded updates scored by timestamp in milliseconds.
// Pattern: comb:{deployment_name}:updates
func UpdatesKey(deploymentName string) string {
	return fmt.Sprintf("comb:%s:updates", deploymentName)
}

// ValuesKey returns the Redis key for a deployment's resolved values hash.
// Fields are {element_id}:{input_path}, values are JSON-encoded.
// Pattern: comb:{deployment_name}:values
func ValuesKey(deploymentName string) string {
	return fmt.Sprintf("comb:%s:values", deploymentName)
}

// ValueField returns the hash field name for one element input.
// Pattern: {element_id}:{input_path}
func ValueField(elementID, inputPath string) string {
	return fmt.Sprintf("%s:%s", elementID, inputPath)
}

// InstanceKey returns the Redis key for an element instance's state hash.
// Pattern: comb:{deployment_name}:instance:{instance_id}
func InstanceKey(deploymentName, instanceID string) string {
	return fmt.Sprintf("comb:%s:instance:%s", deploymentName, instanceID)
}

// AnnounceChannel returns the Pub/Sub channel name for update announcements.
// Full update JSON is published here after every mailbox write.
// Pattern: comb:{deployment_name}:announce
func AnnounceChannel(deploymentName string) string {
	return fmt.Sprintf("comb:%s:announce", deploymentName)
}
