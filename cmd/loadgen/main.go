package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Drives pairs of users through the full flow: register, login, create a
// shared room, join it over the websocket and exchange messages. Sends
// are spaced out so the per-connection rate limit is not the bottleneck.
var (
	baseURL   = flag.String("base", "http://localhost:8080", "server base URL")
	wsURL     = flag.String("ws", "ws://localhost:8080/ws", "websocket URL")
	pairCount = flag.Int("pairs", 50, "number of user pairs")
	msgCount  = flag.Int("messages", 10, "messages per user")
)

type authResponse struct {
	Token    string `json:"access_token"`
	Username string `json:"username"`
}

func main() {
	flag.Parse()
	log.Printf("starting load run: %d users, %d messages each", *pairCount*2, *msgCount)

	var wg sync.WaitGroup
	for i := 0; i < *pairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}
	wg.Wait()
	log.Println("load run complete")
}

func runPair(pairID int) {
	userA := fmt.Sprintf("load_%d_a", pairID)
	userB := fmt.Sprintf("load_%d_b", pairID)
	roomName := fmt.Sprintf("load-room-%d", pairID)
	pass := "password123"

	tokenA := authenticate(userA, pass)
	tokenB := authenticate(userB, pass)
	if tokenA == "" || tokenB == "" {
		return
	}

	if !createRoom(tokenA, roomName) {
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go chatInRoom(&wsWg, tokenA, roomName, userA)
	go chatInRoom(&wsWg, tokenB, roomName, userB)
	wsWg.Wait()
}

// authenticate registers (ignoring "already exists") and logs in.
func authenticate(username, password string) string {
	if resp, err := postJSON("/register", "", map[string]string{"username": username, "password": password}); err == nil {
		resp.Body.Close()
	}

	resp, err := postJSON("/login", "", map[string]string{"username": username, "password": password})
	if err != nil {
		log.Printf("login failed [%s]: %v", username, err)
		return ""
	}
	defer resp.Body.Close()

	var data authResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.Token
}

func createRoom(token, roomName string) bool {
	resp, err := postJSON("/api/rooms", token, map[string]any{"name": roomName, "is_public": true})
	if err != nil {
		log.Printf("create room failed [%s]: %v", roomName, err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusCreated
}

func chatInRoom(wg *sync.WaitGroup, token, roomName, username string) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", *wsURL, token), nil)
	if err != nil {
		log.Printf("ws connect failed [%s]: %v", username, err)
		return
	}
	defer conn.Close()

	// Drain inbound frames so the server's outbound queue never fills.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	join := map[string]string{"type": "join_room", "room": roomName}
	if err := conn.WriteJSON(join); err != nil {
		log.Printf("join failed [%s]: %v", username, err)
		return
	}

	for i := 0; i < *msgCount; i++ {
		msg := map[string]string{
			"type":    "send_message",
			"room":    roomName,
			"content": fmt.Sprintf("load message %d from %s", i, username),
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("send failed [%s]: %v", username, err)
			break
		}
		// 10 sends per minute per connection is the server-side cap.
		time.Sleep(6100 * time.Millisecond)
	}
	log.Printf("%s finished sending %d messages", username, *msgCount)
}

func postJSON(endpoint, token string, data any) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	req, err := http.NewRequest("POST", *baseURL+endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}
