package kv

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/sphagnumdb/sphagnum/lib/hlc"
)

// parseTTL parses a duration flag argument ("10s", "1h", "0") into write-index ticks
func parseTTL(name, value string) (uint64, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration (e.g. 30s, 5m, 0): %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", name)
	}
	return hlc.Ticks(d), nil
}

func parseTTLs(expireIn, deleteIn string) (uint64, uint64, error) {
	e, err := parseTTL("expireIn", expireIn)
	if err != nil {
		return 0, 0, err
	}
	d, err := parseTTL("deleteIn", deleteIn)
	if err != nil {
		return 0, 0, err
	}
	return e, d, nil
}

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.Set(args[0], []byte(args[1])); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	}
	setECmd = &cobra.Command{
		Use:   "setE [key] [value] [expireIn] [deleteIn]",
		Short: "Sets the value for a key that expires and is deleted after the given durations (0 = never)",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			expireIn, deleteIn, err := parseTTLs(args[2], args[3])
			if err != nil {
				return err
			}
			if err := rpcClient.SetE(args[0], []byte(args[1]), expireIn, deleteIn); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	}
	setNXCmd = &cobra.Command{
		Use:   "setNX [key] [value] [expireIn] [deleteIn]",
		Short: "Like setE, but only if the key does not exist",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			expireIn, deleteIn, err := parseTTLs(args[2], args[3])
			if err != nil {
				return err
			}
			if err := rpcClient.SetEIfUnset(args[0], []byte(args[1]), expireIn, deleteIn); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, ok, err := rpcClient.Get(args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("(nil)")
				return nil
			}
			fmt.Printf("%q\n", value)
			return nil
		},
	}
	appendCmd = &cobra.Command{
		Use:   "append [key] [value]",
		Short: "Appends to the value of a key and prints the new length",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := rpcClient.Append(args[0], []byte(args[1]))
			if err != nil {
				return err
			}
			fmt.Printf("(integer) %d\n", n)
			return nil
		},
	}
	expireCmd = &cobra.Command{
		Use:   "expire [key]",
		Short: "Expires the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.Expire(args[0]); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key...]",
		Short: "Deletes keys and prints how many existed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := rpcClient.Delete(args...)
			if err != nil {
				return err
			}
			fmt.Printf("(integer) %d\n", n)
			return nil
		},
	}
	existsCmd = &cobra.Command{
		Use:   "exists [key...]",
		Short: "Prints how many of the keys exist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := rpcClient.Exists(args...)
			if err != nil {
				return err
			}
			fmt.Printf("(integer) %d\n", n)
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key exists, expired values included",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := rpcClient.Has(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%t\n", args[0], found)
			return nil
		},
	}

	// Merkle verification

	rootCmd = &cobra.Command{
		Use:   "root",
		Short: "Prints the Merkle root of the Field replica of the Seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, n, err := rpcClient.Root()
			if err != nil {
				return err
			}
			fmt.Printf("%s (%d records)\n", root, n)
			return nil
		},
	}
	proofCmd = &cobra.Command{
		Use:   "proof [key]",
		Short: "Fetches and verifies the Merkle proof of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			result, err := rpcClient.Proof(key)
			if err != nil {
				return err
			}
			if err := result.Verify(key); err != nil {
				return fmt.Errorf("proof for %q is invalid: %w", key, err)
			}
			fmt.Printf("root:   %s\n", result.Root)
			fmt.Printf("bucket: %d of %d\n", result.Proof.Bucket, 1<<result.Proof.Depth)
			if result.Record != nil {
				fmt.Printf("member: %q (index %d, tombstone %t)\n", key, result.Record.Index, result.Record.Tombstone)
			} else {
				fmt.Printf("absent: %q\n", key)
			}
			fmt.Println("proof verified")
			return nil
		},
	}
	verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Compares the Merkle roots of all replicas of the Field of the Seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := rpcClient.Verify()
			if err != nil {
				return err
			}
			fmt.Println(report.String())
			if !report.Consistent {
				return fmt.Errorf("replicas of field %s differ", report.Field)
			}
			return nil
		},
	}
)
