// Command audioclient streams a raw audio file through a running intake bridge and
// prints everything the bridge sends back.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "bridge host:port")
	voice := flag.String("voice", "", "voice persona id sent with start")
	file := flag.String("file", "", "raw audio file (linear16 16kHz mono unless the bridge says otherwise)")
	frameBytes := flag.Int("frame", 640, "bytes per 20ms of audio, used for pacing")
	listen := flag.Duration("listen", 15*time.Second, "how long to keep listening after the file ends")
	flag.Parse()

	if *frameBytes <= 0 {
		log.Fatalf("-frame must be positive, got %d", *frameBytes)
	}

	wsURL := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	fmt.Printf("Connecting to: %s\n", wsURL.String())

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		if resp != nil {
			log.Fatalf("WebSocket connection failed with status %d: %v", resp.StatusCode, err)
		}
		log.Fatalf("WebSocket connection failed: %v", err)
	}
	defer conn.Close()

	fmt.Println("✓ WebSocket connection successful!")

	done := make(chan struct{})
	go readLoop(conn, done)

	start := map[string]string{"type": "start"}
	if *voice != "" {
		start["voiceId"] = *voice
	}
	if err := conn.WriteJSON(start); err != nil {
		log.Fatalf("Failed to send start: %v", err)
	}

	if *file != "" {
		if err := streamFile(conn, *file, *frameBytes, done); err != nil {
			log.Printf("Streaming stopped: %v", err)
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	select {
	case <-done:
		return
	case <-interrupt:
	case <-time.After(*listen):
	}

	fmt.Println("Sending stop...")
	conn.WriteJSON(map[string]string{"type": "stop"})
	select {
	case <-done:
	case <-time.After(3 * time.Second):
	}
}

// chunkSize picks an uneven chunk length between half a frame and three and a
// half frames. frameBytes must be positive.
func chunkSize(frameBytes int) int {
	return frameBytes/2 + 1 + rand.Intn(frameBytes*3)
}

// streamFile sends the file in deliberately uneven chunks at roughly real time.
func streamFile(conn *websocket.Conn, path string, frameBytes int, done <-chan struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	frameTime := 20 * time.Millisecond
	buf := make([]byte, frameBytes*4)
	sent := 0
	for {
		n := chunkSize(frameBytes)
		read, err := io.ReadFull(f, buf[:n])
		if read > 0 {
			if werr := conn.WriteMessage(websocket.BinaryMessage, buf[:read]); werr != nil {
				return werr
			}
			sent += read
			time.Sleep(time.Duration(read) * frameTime / time.Duration(frameBytes))
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			fmt.Printf("✓ Sent %d bytes of audio\n", sent)
			return nil
		}
		if err != nil {
			return err
		}

		select {
		case <-done:
			return fmt.Errorf("bridge closed the connection")
		default:
		}
	}
}

func readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	audioBytes := 0
	for {
		typ, message, err := conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				fmt.Printf("Connection closed: %d %s\n", ce.Code, ce.Text)
			} else {
				fmt.Printf("Read failed: %v\n", err)
			}
			fmt.Printf("Received %d bytes of agent audio\n", audioBytes)
			return
		}

		if typ == websocket.BinaryMessage {
			audioBytes += len(message)
			continue
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &envelope); err != nil {
			fmt.Printf("? %s\n", message)
			continue
		}
		fmt.Printf("[%s] %s\n", envelope.Type, message)
	}
}
