// Seeds a hub database with a conversation, its members and the mutual
// follows calls require, then prints a ready-to-use token per member.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"

	"live-hub/auth"
	"live-hub/domain"
	"live-hub/repositories"
)

func main() {
	dbPath := flag.String("db", "/tmp/live-hub", "Path to badger DB")
	conversation := flag.String("conversation", "conv-demo", "Conversation to create")
	members := flag.String("members", "alice,bob", "Comma-separated member usernames")
	secret := flag.String("secret", "", "AUTH_TOKEN_SECRET of the target hub")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *secret == "" {
		log.Fatal("-secret is required")
	}
	usernames := strings.Split(*members, ",")
	if len(usernames) < 2 {
		log.Fatal("-members needs at least two usernames")
	}

	db, err := badger.Open(badger.DefaultOptions(*dbPath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	ctx := context.Background()
	store := repositories.NewStore(db, logs.GetLoggerFromString("WARN"), nil)
	// Issuance only, no validation cap needed here.
	directory := auth.NewTokenDirectory(*secret, 0)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Username", "Conversation", "Token"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, username := range usernames {
		identity := domain.Identity(strings.TrimSpace(username))
		if identity == "" {
			continue
		}
		if err := store.AddMember(ctx, domain.ConversationID(*conversation), identity); err != nil {
			log.Fatalf("Member %s: %v", identity, err)
		}
		// Every pair follows each other so any member can call any other.
		for _, other := range usernames {
			peer := domain.Identity(strings.TrimSpace(other))
			if peer == "" || peer == identity {
				continue
			}
			if err := store.AddFollow(ctx, identity, peer); err != nil {
				log.Fatalf("Follow %s -> %s: %v", identity, peer, err)
			}
		}

		token, err := directory.GenerateToken(identity, *ttl)
		if err != nil {
			log.Fatalf("Token %s: %v", identity, err)
		}
		table.Append([]string{string(identity), *conversation, token})
	}

	table.Render()
}
