// roomclient is a terminal client for exercising a study room end to end:
// it joins the websocket gateway, relays chat from stdin, and can attach a
// silent voice session to verify the signaling path against Redis.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/domain"
	redisstate "github.com/Amankumar006/online-learning-plateform-sub003/internal/infra/state/redis"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/presence"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/voice"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	var (
		server    = flag.String("server", "ws://localhost:8080", "gateway base URL")
		token     = flag.String("token", "", "bearer token")
		roomID    = flag.String("room", "", "room id to join")
		userID    = flag.String("user", "", "user id, required with -voice")
		withVoice = flag.Bool("voice", false, "attach a silent voice session")
		redisAddr = flag.String("redis", "localhost:6379", "redis address for voice signaling")
		keyPrefix = flag.String("key-prefix", "sr:", "redis key prefix used by the server")
	)
	flag.Parse()

	if *token == "" || *roomID == "" {
		logrus.Fatal("both -token and -room are required")
	}

	url := strings.TrimSuffix(*server, "/") + "/ws/room/" + *roomID
	header := http.Header{}
	header.Set("Authorization", "Bearer "+*token)
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to gateway")
	}
	defer conn.Close()
	logrus.WithField("room_id", *roomID).Info("Connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var coordinator *voice.Coordinator
	if *withVoice {
		if *userID == "" {
			logrus.Fatal("-user is required with -voice")
		}
		client := redis.NewClient(&redis.Options{Addr: *redisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logrus.WithError(err).Fatal("Failed to reach redis for voice signaling")
		}
		st := redisstate.New(client, *keyPrefix)
		tracker := presence.NewTracker(st)

		coordinator = voice.NewCoordinator(st, *roomID, *userID, voice.Options{})
		if err := coordinator.JoinVoice(ctx, voice.NewSilenceSource()); err != nil {
			logrus.WithError(err).Fatal("Failed to join voice")
		}
		unsubscribe, err := tracker.SubscribeRoster(ctx, *roomID, coordinator.SyncRoster)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to subscribe roster for voice")
		}
		defer unsubscribe()
		defer coordinator.LeaveVoice(context.Background())
		logrus.Info("Voice attached (silent source)")
	}

	go readLoop(conn)
	go stdinLoop(conn)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Disconnecting...")
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

func readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			logrus.WithError(err).Info("Connection closed")
			os.Exit(0)
		}
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			logrus.WithError(err).Warn("Malformed frame from server")
			continue
		}
		switch f.Type {
		case "chat_message":
			var msg domain.ChatMessage
			if json.Unmarshal(f.Payload, &msg) == nil {
				logrus.Infof("[chat] %s: %s", msg.UserName, msg.Content)
			}
		case "roster":
			var roster struct {
				Participants []domain.Participant `json:"participants"`
			}
			if json.Unmarshal(f.Payload, &roster) == nil {
				names := make([]string, 0, len(roster.Participants))
				for _, p := range roster.Participants {
					name := p.UserID
					if p.HandRaised {
						name += " (hand raised)"
					}
					names = append(names, name)
				}
				logrus.Infof("[roster] %s", strings.Join(names, ", "))
			}
		case "snapshot":
			logrus.Debugf("[snapshot] %s", string(f.Payload))
		case "ended":
			logrus.Info("[room] session ended")
		case "error":
			logrus.Warnf("[error] %s", string(f.Payload))
		}
	}
}

func stdinLoop(conn *websocket.Conn) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		payload, _ := json.Marshal(map[string]string{"content": text})
		out, _ := json.Marshal(frame{Type: "chat", Payload: payload})
		if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
			logrus.WithError(err).Warn("Failed to send chat message")
			return
		}
	}
}
