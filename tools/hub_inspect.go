package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

// Local copy of the stored shape so the tool stays independent from the
// repositories package.
type storedMessage struct {
	ID      string  `json:"id"`
	Sender  string  `json:"sender"`
	Type    string  `json:"type"`
	Content string  `json:"content"`
	ReplyTo *string `json:"replyTo,omitempty"`
	At      int64   `json:"at"`
}

func main() {
	dbPath := flag.String("db", "/tmp/live-hub", "Path to badger DB")
	// Par défaut on cherche "msg:" pour éviter de percuter les clés de présence
	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	flag.Parse()

	opts := badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "Conversation", "Sender", "Content"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			rawKey := string(item.Key())

			err := item.Value(func(v []byte) error {
				table.Append(rowFor(rawKey, v))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func rowFor(key string, val []byte) []string {
	parts := strings.Split(key, ":")

	if parts[0] == "msg" && len(parts) >= 4 {
		var m storedMessage
		if err := json.Unmarshal(val, &m); err != nil {
			fmt.Printf("Error unmarshaling key %s: %v\n", key, err)
			return []string{key, "RAW", "--:--:--", "-", "-", "-"}
		}
		ts := "--:--:--"
		if tsNano, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
			ts = time.Unix(0, tsNano).Format("15:04:05")
		}
		return []string{key, "MSG", ts, parts[1], m.Sender, m.Content}
	}

	return []string{key, strings.ToUpper(parts[0]), "--:--:--", "-", "-", string(val)}
}
