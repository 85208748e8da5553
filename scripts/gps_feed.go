// Package main runs a demo WebSocket GPS feed for the dispatch agent's
// bridge provider. It publishes a jittered walk around a fixed campus
// coordinate, tightening reported accuracy as the feed warms up.
package main

import (
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type feedFix struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Timestamp *int64   `json:"timestamp,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "9100"
	}

	http.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("upgrade: %v", err)
			return
		}
		defer func() { _ = c.Close() }()
		log.Printf("feed subscriber connected: %s", r.RemoteAddr)

		lat, lng := 37.4419, -122.1430
		acc := 80.0 // first fix is deliberately coarse, like a cold receiver
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			lat += (rand.Float64() - 0.5) * 0.0001
			lng += (rand.Float64() - 0.5) * 0.0001
			if acc > 8 {
				acc *= 0.6
			}
			a := acc
			ts := time.Now().UnixMilli()
			msg, _ := json.Marshal(feedFix{Latitude: lat, Longitude: lng, Accuracy: &a, Timestamp: &ts})
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("feed subscriber gone: %v", err)
				return
			}
		}
	})

	log.Printf("demo GPS feed on :%s/feed", port)
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatal(err)
	}
}
