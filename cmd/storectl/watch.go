package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/tethys-org/store/pkg/store"
)

func watchCmd() *cobra.Command {
	var (
		storeID string
		raw     bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Tail runtime events from a devtools endpoint",
		Long: `Stream store lifecycle, snapshot, and dispatch events as they happen.

Examples:
  storectl watch
  storectl watch --store Cart-1
  storectl watch --raw            # print event JSON unformatted`,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			return runWatch(addr, storeID, raw)
		},
	}

	cmd.Flags().StringVarP(&storeID, "store", "s", "", "Only show events for this store instance id")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print raw event JSON")

	return cmd
}

func runWatch(addr, storeID string, raw bool) error {
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		return fmt.Errorf("connect to devtools at %s: %w", addr, err)
	}
	defer conn.Close()

	// Close the socket cleanly on interrupt; ReadMessage then unblocks.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	interrupted := make(chan struct{})
	go func() {
		<-interrupt
		close(interrupted)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	fmt.Printf("watching %s (ctrl-c to stop)\n", addr)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			select {
			case <-interrupted:
				return nil
			default:
			}
			return fmt.Errorf("read event: %w", err)
		}

		var ev store.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			fmt.Fprintf(os.Stderr, "skipping malformed event: %s\n", err)
			continue
		}
		if storeID != "" && ev.StoreID != storeID {
			continue
		}

		if raw {
			fmt.Println(string(msg))
			continue
		}
		printEvent(ev)
	}
}

func printEvent(ev store.Event) {
	ts := ev.Time.Format("15:04:05.000")
	switch ev.Kind {
	case store.EventStoreRegistered:
		fmt.Printf("%s  + %s registered\n", ts, ev.StoreID)
	case store.EventStoreReleased:
		fmt.Printf("%s  - %s released\n", ts, ev.StoreID)
	case store.EventSnapshot:
		snap, _ := json.Marshal(ev.Snapshot)
		fmt.Printf("%s  %s snapshot %s\n", ts, ev.StoreID, snap)
	case store.EventDispatchStarted:
		fmt.Printf("%s  %s dispatch %s #%d\n", ts, ev.StoreID, ev.Action, ev.Token)
	case store.EventDispatchSettled:
		line := fmt.Sprintf("%s  %s dispatch %s #%d %s", ts, ev.StoreID, ev.Action, ev.Token, ev.Outcome)
		if ev.Error != "" {
			line += ": " + ev.Error
		}
		fmt.Println(line)
	default:
		fmt.Printf("%s  %s %s\n", ts, ev.StoreID, ev.Kind)
	}
}
