// Package client implements the RPC client of SphagnumDB.
//
// A Client implements store.IStore on top of a transport, so it can be used
// wherever a store is expected. Requests go to shard id 0 by default and are
// routed by the receiving Seed to the Field owning the key. Errors of the Seed
// arrive as store.Error values with their original return code.
//
// Besides the key operations a Client offers:
//
//   - Seed operations: Root, Proof, Verify, Passport and Members.
//
//   - Peer operations used between replicas of a Field: Replicate, Fetch,
//     Digest, Leaves and SyncBuckets. These must be sent to the shard id of the
//     Field (see WithShard and ring.FieldID).
//
// Usage Example:
//
//	config := common.ClientConfig{
//		Transport:     common.ClientTransportConfig{Endpoints: []string{"localhost:8080"}, RetryCount: 3},
//		TimeoutSecond: 5,
//	}
//	c, err := client.NewClient(config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	_ = c.Set("moss", []byte("green"))
//	value, ok, _ := c.Get("moss")
//
//	proof, _ := c.Proof("moss")
//	if err := proof.Verify("moss"); err != nil {
//		// the Seed returned a record that does not match its root
//	}
//
// Thread Safety:
//
//	A Client is safe for concurrent use.
package client
