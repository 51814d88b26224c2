// retro-watch follows a room on a board server and prints it whenever it
// changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/npezzotti/retro-board/internal/logger"
	"github.com/npezzotti/retro-board/pkg/client"
	"github.com/npezzotti/retro-board/pkg/domain"
	"github.com/npezzotti/retro-board/pkg/wire"
	"go.uber.org/zap"
)

var (
	serverURL   string
	roomId      int
	subprotocol string
	retryDelay  time.Duration
	logLevel    string
)

func main() {
	flag.StringVar(&serverURL, "server", "http://localhost:8000", "board server base URL")
	flag.IntVar(&roomId, "room", 1, "id of the room to follow")
	flag.StringVar(&subprotocol, "subprotocol", wire.SubprotocolMsgpack, "websocket subprotocol (retro.msgpack or retro.json)")
	flag.DurationVar(&retryDelay, "retry", client.DefaultRetryDelay, "delay between reconnect attempts")
	flag.StringVar(&logLevel, "log-level", "warn", "log level")
	flag.Parse()

	log, err := logger.New(logLevel, "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	c := client.New(serverURL, client.WithLogger(log), client.WithSubprotocol(subprotocol))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	w, err := c.WatchRoom(ctx, roomId, client.WithRetryDelay(retryDelay))
	cancel()
	if err != nil {
		log.Fatal("watch room", zap.Int("room_id", roomId), zap.Error(err))
	}
	defer w.Close()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigs:
			return
		case room, ok := <-w.Updates():
			if !ok {
				return
			}
			printRoom(os.Stdout, room)
		}
	}
}

func printRoom(out io.Writer, room *domain.Room) {
	fmt.Fprintf(out, "\n== %s (room %d) ==\n", room.Title, room.Id)
	for _, t := range room.Topics {
		fmt.Fprintf(out, "  # %s\n", t.Name)
		for _, c := range t.Comments {
			value := c.Value
			if !c.Exposed {
				value = "(hidden)"
			}
			fmt.Fprintf(out, "    - [%d] %s  +%d\n", c.Id, value, c.Votes)
		}
	}
}
