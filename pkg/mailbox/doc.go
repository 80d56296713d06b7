// Package mailbox provides type-safe Go definitions and Redis schema patterns
// for the deployment connection mailbox.
//
// # Overview
//
// The mailbox is the channel through which connected deployments exchange
// state. When a deployment's shared state changes, its host publishes a small
// ConnectionUpdate into the mailbox and announces it over Pub/Sub. Subscribers
// react by re-reading the mailbox and the resolved values hash; they never
// receive state payloads through the announcement stream itself.
//
// # Core Concepts
//
// Updates are change signals. Each carries the source deployment, the dotted
// state paths that changed (or ["*"] for a full refresh), and a timestamp.
// The mailbox retains only the newest MaxMailboxUpdates entries, so it is a
// recency window, not a log.
//
// Values are the materialised results of connection resolution. The host
// writes one ConnectionValue per connected element input; subscribers read
// them back keyed by {element_id}:{input_path}.
//
// InstanceState records are the host's authoritative copy of each element
// instance's shared and personal state, with a sequence number that orders
// state pushes to sandboxed guests.
//
// # Multi-Deployment Support
//
// All Redis keys and Pub/Sub channels are namespaced by deployment name so
// deployments can share one Redis server without interference.
//
// # Usage Example
//
//	import "github.com/hivelab/comb/pkg/mailbox"
//
//	client, err := mailbox.NewClient(&redis.Options{Addr: "localhost:6379"}, "spring-fair")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	update, err := mailbox.NewUpdate("spring-fair", []string{"shared.votes"}, time.Now().UnixMilli())
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := client.PublishUpdate(ctx, update); err != nil {
//		log.Fatal(err)
//	}
//
// # Redis Schema
//
// Updates: comb:{deployment_name}:updates (ZSET, score = timestamp ms)
// Values: comb:{deployment_name}:values (HASH, field = {element_id}:{input_path})
// Instances: comb:{deployment_name}:instance:{instance_id} (HASH)
//
// Announcements: comb:{deployment_name}:announce (Pub/Sub)
//
// # Design Principles
//
// - Type Safety: All data structures have validation methods
// - Recency: The mailbox window is bounded; consumers tolerate missed entries
// - Idempotence: Re-publishing or re-resolving the same data is safe
// - Isolation: Deployment namespacing prevents cross-deployment interference
package mailbox
