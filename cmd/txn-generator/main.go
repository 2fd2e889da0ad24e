package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"math/rand"

	"github.com/go-faker/faker/v4"
	"github.com/google/uuid"
)

// paymentRequest mirrors the body accepted by POST /api/v1/payments.
type paymentRequest struct {
	CardID string `json:"card_id"`
	Amount string `json:"amount"`
	Method string `json:"method"`
	Kind   string `json:"kind"`
}

var methods = []string{"UPI", "NET_BANKING", "CARD", "WALLET"}

func main() {
	targetURL := flag.String("target", "http://localhost:8080/api/v1/payments", "Target URL for sending payments")
	token := flag.String("token", "", "Bearer token for the API")
	cardID := flag.String("card-id", "", "Card id to pay against (random when empty)")
	rps := flag.Int("rps", 20, "Requests per second")
	flag.Parse()

	log.Printf("Starting generator: target=%s, rps=%d\n", *targetURL, *rps)

	ticker := time.NewTicker(time.Second / time.Duration(*rps))
	defer ticker.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ticker.C:
			// Send in a goroutine so a slow response never blocks the ticker.
			go sendRequest(*targetURL, *token, *cardID)
		case <-ctx.Done():
			log.Println("Shutting down generator...")
			return
		}
	}
}

func sendRequest(url, token, cardID string) {
	if cardID == "" {
		cardID = uuid.New().String()
	}

	// Amounts between ₹100 and ₹50,000 with two decimal places, so most
	// requests pass validation and some cross the OTP threshold.
	paise := 10_000 + rand.Int63n(4_990_001)
	reqData := paymentRequest{
		CardID: cardID,
		Amount: fmt.Sprintf("%d.%02d", paise/100, paise%100),
		Method: methods[rand.Intn(len(methods))],
		Kind:   "CUSTOM",
	}

	body, err := json.Marshal(reqData)
	if err != nil {
		log.Printf("ERROR: failed to marshal request: %v", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		log.Printf("ERROR: failed to build request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	// Fake device ids exercise the audit fields downstream.
	req.Header.Set("X-Device-Id", faker.UUIDDigit())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("ERROR: failed to send request: %v", err)
		return
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Failed to close response body : %v", err)
		}
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		log.Printf("WARN: received status code: %d", resp.StatusCode)
	} else {
		log.Printf("INFO: request sent, status: %d", resp.StatusCode)
	}
}
