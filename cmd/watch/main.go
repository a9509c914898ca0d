// Command watch subscribes to a server's observer stream and logs one line
// per tick summary.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"colony.ai/internal/protocol"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/admin/v1/observer/ws", "observer ws url")
		every = flag.Uint64("every", 1, "log every n-th tick")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := protocol.SubscribeMsg{Type: protocol.TypeSubscribe, ProtocolVersion: protocol.Version}
	if err := conn.WriteJSON(sub); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		line, ok := formatTick(msg, *every)
		if ok {
			logger.Print(line)
		}
	}
}

// formatTick renders a TICK frame; other frames and skipped ticks report false.
func formatTick(msg []byte, every uint64) (string, bool) {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeTick {
		return "", false
	}
	var s protocol.TickSummary
	if err := json.Unmarshal(msg, &s); err != nil {
		return "", false
	}
	if every > 1 && s.Tick%every != 0 {
		return "", false
	}
	o := s.Outcomes
	return fmt.Sprintf("tick=%d tasks=%d pooled=%d running=%d idle=%d busy=%d issued=%d ran=%d throttled=%d outcomes=c%d/r%d/f%d/d%d step=%.3fms",
		s.Tick, s.Tasks, s.Pooled, s.Running, s.IdleWorkers, s.BusyWorkers,
		s.Issued, s.Ran, s.Throttled, o.Continue, o.Renew, o.Finish, o.Delete, s.StepMS), true
}
