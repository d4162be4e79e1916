package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"

	"github.com/jacentio/warren/internal/edge"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <db> <store>",
	Short: "Dump a store's records",
	Long: `Dump prints every record of a store, one per line: the hex-encoded
key followed by the msgpack payload re-rendered as JSON.

Example:
  warren dump app.db users`,
	Args: cobra.ExactArgs(2),
	RunE: runDump,
}

func runDump(cmd *cobra.Command, args []string) error {
	db, err := openReadOnly(args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	return db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(args[1]))
		if b == nil {
			return fmt.Errorf("no store %q", args[1])
		}
		return b.ForEach(func(k, v []byte) error {
			var record any
			if err := msgpack.Unmarshal(v, &record); err != nil {
				fmt.Printf("%x\t<%d bytes, not msgpack>\n", k, len(v))
				return nil
			}
			rendered, err := json.Marshal(record)
			if err != nil {
				fmt.Printf("%x\t<%d bytes, not renderable>\n", k, len(v))
				return nil
			}
			fmt.Printf("%x\t%s\n", k, rendered)
			return nil
		})
	})
}

// edgeValue mirrors the stored free-relation edge record.
type edgeValue struct {
	Name          string `msgpack:"name"`
	OnSelfDelete  int8   `msgpack:"on_self_delete"`
	OnOtherDelete int8   `msgpack:"on_other_delete"`
}

var relationsCmd = &cobra.Command{
	Use:   "relations <db>",
	Short: "Dump the free-relation index",
	Long: `Relations prints every directed edge of the hidden free-relation
index: the two endpoints, the relation name if any, and the deletion
behavior each side owes the other.`,
	Args: cobra.ExactArgs(1),
	RunE: runRelations,
}

func runRelations(cmd *cobra.Command, args []string) error {
	db, err := openReadOnly(args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	return db.View(func(tx *bolt.Tx) error {
		rel := tx.Bucket([]byte(relationBucket))
		if rel == nil {
			return fmt.Errorf("no relation bucket %q; is this a warren database?", relationBucket)
		}
		return rel.ForEach(func(k, v []byte) error {
			p, err := edge.Parse(k)
			if err != nil {
				return fmt.Errorf("malformed edge key %x: %w", k, err)
			}
			var rec edgeValue
			if err := msgpack.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode edge record: %w", err)
			}
			name := rec.Name
			if name == "" {
				name = "-"
			}
			fmt.Printf("%s[%x] -> %s[%x]\tname=%s\ton-delete=%s\n",
				p.FromStore, p.FromKey, p.ToStore, p.ToKey,
				name, behaviorName(rec.OnSelfDelete))
			return nil
		})
	})
}
