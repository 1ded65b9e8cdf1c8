package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"overture/internal/logging"
	"overture/internal/sched"
	"overture/internal/supervisor"
)

var (
	logsFollow bool
	logsLines  int
)

var logsCmd = &cobra.Command{
	Use:   "logs [environment-id]",
	Short: "Print captured output, or stream it live with --follow",
	Long: `With an environment id, logs prints that environment's captured process
output. Without one it prints the server's own log. --follow streams
either live over WebSocket.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		if len(args) == 0 {
			if logsFollow {
				return followServerLogs(client)
			}
			return printServerLogs(client)
		}
		if logsFollow {
			return followOutput(client, args[0])
		}

		var snap supervisor.Snapshot
		if err := client.get(fmt.Sprintf("/api/environments/%s?lines=%d", args[0], logsLines), &snap); err != nil {
			return err
		}
		for _, node := range snap.Nodes {
			for _, line := range node.Output {
				fmt.Println(renderOutputLine(node.Name, string(node.Color), string(line.Stream), line.Text))
			}
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "stream until the source ends")
	logsCmd.Flags().IntVar(&logsLines, "lines", 100, "lines to print per process (or log entries)")
}

// dialStream opens a WebSocket to the server and closes it on SIGINT or
// SIGTERM so the read loop unblocks.
func dialStream(client *apiClient, path string) (*websocket.Conn, func(), error) {
	target, err := client.websocketURL(path)
	if err != nil {
		return nil, nil, err
	}

	conn, resp, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		if resp != nil {
			return nil, nil, fmt.Errorf("cannot stream %s: HTTP %d", path, resp.StatusCode)
		}
		return nil, nil, fmt.Errorf("cannot stream %s: %w", path, err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-interrupt
		conn.Close()
	}()

	cleanup := func() {
		signal.Stop(interrupt)
		close(interrupt)
		conn.Close()
	}
	return conn, cleanup, nil
}

// followOutput streams the environment's output until the environment
// ends or the user interrupts.
func followOutput(client *apiClient, id string) error {
	conn, cleanup, err := dialStream(client, "/ws/environments/"+id+"/output")
	if err != nil {
		return err
	}
	defer cleanup()

	for {
		var event sched.OutputEvent
		if err := conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("stream closed unexpectedly: %w", err)
			}
			// Normal closure ("environment ended") or local interrupt.
			return nil
		}
		fmt.Println(renderOutputLine(event.Node, string(event.Color), string(event.Line.Stream), event.Line.Text))
	}
}

func printServerLogs(client *apiClient) error {
	var entries []logging.LogEntry
	if err := client.get(fmt.Sprintf("/api/logs?limit=%d", logsLines), &entries); err != nil {
		return err
	}
	for _, entry := range entries {
		fmt.Println(renderLogEntry(entry))
	}
	return nil
}

// followServerLogs streams the server's log until interrupted.
func followServerLogs(client *apiClient) error {
	conn, cleanup, err := dialStream(client, "/ws/logs")
	if err != nil {
		return err
	}
	defer cleanup()

	for {
		var entry logging.LogEntry
		if err := conn.ReadJSON(&entry); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("stream closed unexpectedly: %w", err)
			}
			return nil
		}
		fmt.Println(renderLogEntry(entry))
	}
}

func renderLogEntry(entry logging.LogEntry) string {
	builder := strings.Builder{}
	builder.WriteString(ui.Dim.Render(entry.Timestamp.Local().Format("15:04:05")))
	builder.WriteString(" ")
	builder.WriteString(levelStyle(entry.Level).Render(string(entry.Level)))
	builder.WriteString(" ")
	builder.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Context))
	for key := range entry.Context {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		builder.WriteString(ui.Dim.Render(fmt.Sprintf(" %s=%s", key, entry.Context[key])))
	}
	return builder.String()
}
