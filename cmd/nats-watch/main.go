// nats-watch tails dusdd accounting events off the message bus.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

var (
	eventsSeen  int64
	serverFound atomic.Bool
)

func main() {
	natsURL := flag.String("nats", nats.DefaultURL, "NATS server URL")
	subject := flag.String("subject", "dusd.events.>", "event subject filter")
	discover := flag.Duration("discover", 10*time.Second, "how long to wait for a node announcement")
	flag.Parse()

	log.Printf("NATS watch: %s", *natsURL)
	log.Printf("Subject filter: %s", *subject)

	nc, err := nats.Connect(*natsURL)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer nc.Close()

	// Listen for node announcements
	nc.Subscribe("dusd.announce", func(m *nats.Msg) {
		if serverFound.CompareAndSwap(false, true) {
			var announcement map[string]interface{}
			if json.Unmarshal(m.Data, &announcement) == nil {
				log.Printf("Found dusdd node: id=%v symbol=%v rpcPort=%v",
					announcement["nodeId"],
					announcement["symbol"],
					announcement["rpcPort"])
			}
		}
	})

	nc.Subscribe(*subject, func(m *nats.Msg) {
		n := atomic.AddInt64(&eventsSeen, 1)

		var event map[string]interface{}
		if err := json.Unmarshal(m.Data, &event); err != nil {
			log.Printf("[%d] %s: %s", n, m.Subject, string(m.Data))
			return
		}
		log.Printf("[%d] %s type=%v data=%v", n, m.Subject, event["type"], event["data"])
	})

	log.Println("Waiting for node announcement...")
	deadline := time.After(*discover)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for !serverFound.Load() {
		select {
		case <-deadline:
			log.Println("No announcement received, watching events anyway")
			goto watch
		case <-ticker.C:
		}
	}

watch:
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt

	fmt.Printf("\nEvents observed: %d\n", atomic.LoadInt64(&eventsSeen))
}
