// Package main provides the warren CLI, a read-only inspector for warren
// database files.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

var (
	// registryBucket and relationBucket are set by the persistent flags
	// for databases opened with non-default hidden bucket names.
	registryBucket string
	relationBucket string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "warren",
	Short: "Warren inspects warren database files",
	Long: `Warren is a read-only inspector for warren database files.

It decodes the hidden registry and free-relation buckets and dumps entity
records without needing the owning application's type declarations.
Removal is deliberately not offered: honoring deletion behaviors requires
the registered descriptors, which only the owning application has.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&registryBucket, "registry-bucket", "__registry", "name of the hidden registry bucket")
	rootCmd.PersistentFlags().StringVar(&relationBucket, "relation-bucket", "__free_relations", "name of the hidden free-relation bucket")

	rootCmd.AddCommand(storesCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(relationsCmd)
	rootCmd.AddCommand(statCmd)
}

// openReadOnly opens the database file without taking the write lock.
func openReadOnly(path string) (*bolt.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return db, nil
}

// registryRow mirrors the persisted descriptor fingerprint.
type registryRow struct {
	Store    string        `msgpack:"store"`
	KeySpec  string        `msgpack:"key_spec"`
	Siblings []relationRow `msgpack:"siblings"`
	Children []relationRow `msgpack:"children"`
	Partners []relationRow `msgpack:"partners"`
}

type relationRow struct {
	Store    string `msgpack:"store"`
	OnDelete int8   `msgpack:"on_delete"`
}

func behaviorName(b int8) string {
	switch b {
	case 0:
		return "cascade"
	case 1:
		return "error"
	case 2:
		return "break-link"
	default:
		return fmt.Sprintf("unknown(%d)", b)
	}
}

var storesCmd = &cobra.Command{
	Use:   "stores <db>",
	Short: "List registered stores",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openReadOnly(args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		return db.View(func(tx *bolt.Tx) error {
			reg := tx.Bucket([]byte(registryBucket))
			if reg == nil {
				return fmt.Errorf("no registry bucket %q; is this a warren database?", registryBucket)
			}
			return reg.ForEach(func(_, v []byte) error {
				var row registryRow
				if err := msgpack.Unmarshal(v, &row); err != nil {
					return fmt.Errorf("decode registry entry: %w", err)
				}
				fmt.Printf("%s\tkey=%s\n", row.Store, row.KeySpec)
				for _, s := range row.Siblings {
					fmt.Printf("\tsibling %s (%s)\n", s.Store, behaviorName(s.OnDelete))
				}
				for _, c := range row.Children {
					fmt.Printf("\tchild %s (%s)\n", c.Store, behaviorName(c.OnDelete))
				}
				for _, p := range row.Partners {
					fmt.Printf("\tpartner %s (%s)\n", p.Store, behaviorName(p.OnDelete))
				}
				return nil
			})
		})
	},
}

var statCmd = &cobra.Command{
	Use:   "stat <db> [store]",
	Short: "Show record counts per store",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openReadOnly(args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		return db.View(func(tx *bolt.Tx) error {
			if len(args) == 2 {
				b := tx.Bucket([]byte(args[1]))
				if b == nil {
					return fmt.Errorf("no store %q", args[1])
				}
				fmt.Printf("%s\t%d\n", args[1], b.Stats().KeyN)
				return nil
			}
			return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
				fmt.Printf("%s\t%d\n", name, b.Stats().KeyN)
				return nil
			})
		})
	},
}
