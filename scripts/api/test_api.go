// End-to-end check of a running commons API. It signs in with the airgap
// method (confirming the remark directly in redis), joins, creates a
// proposal and responds to it.
//
//	API_URL   base URL (default http://localhost:8080/v1)
//	REDIS_URL redis URL (default redis://127.0.0.1:6379/0)
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	schnorrkel "github.com/ChainSafe/go-schnorrkel"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stake-plus/commons/src/polkadot"
)

var (
	baseURL  = getenv("API_URL", "http://localhost:8080/v1")
	redisURL = getenv("REDIS_URL", "redis://127.0.0.1:6379/0")
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	ctx := context.Background()
	rdb := mustRedis()
	defer rdb.Close()

	addr := freshAddress()
	addr = challenge(addr)
	confirmNonce(ctx, rdb, addr)
	token := verify(addr)

	doReq("POST", "/members/join", token, nil, nil, http.StatusCreated)

	var p struct{ ID uint64 }
	doReq("POST", "/proposals", token, map[string]any{
		"type":          "RuleChange",
		"title":         "integration-test " + uuid.NewString(),
		"description":   "created by scripts/api",
		"listeningDays": 1,
		"votingDays":    1,
	}, &p, http.StatusCreated)

	doReq("POST", fmt.Sprintf("/proposals/%d/responses", p.ID), token, map[string]any{
		"comment": "looks fine",
	}, nil, http.StatusCreated)

	var part struct{ Responded bool }
	doReq("GET", fmt.Sprintf("/proposals/%d/participation/%s", p.ID, addr), "", nil, &part, http.StatusOK)
	if !part.Responded {
		log.Fatal("participation: response not recorded")
	}

	var rep struct{ OK bool }
	doReq("GET", "/ledger/verify", "", nil, &rep, http.StatusOK)
	if !rep.OK {
		log.Fatal("ledger: verification failed")
	}

	fmt.Println("all endpoints passed")
}

func freshAddress() string {
	_, pub, err := schnorrkel.GenerateKeypair()
	if err != nil {
		log.Fatalf("keypair: %v", err)
	}
	raw := pub.Encode()
	addr, err := polkadot.EncodeSS58(raw[:], 42)
	if err != nil {
		log.Fatalf("ss58: %v", err)
	}
	return addr
}

func challenge(addr string) string {
	var resp struct{ Nonce, Address string }
	doReq("POST", "/auth/challenge", "", map[string]any{"address": addr, "method": "airgap"}, &resp, http.StatusOK)
	if resp.Nonce == "" {
		log.Fatal("challenge: empty nonce")
	}
	return resp.Address
}

// confirmNonce stands in for the remark watcher.
func confirmNonce(ctx context.Context, rdb *redis.Client, addr string) {
	if err := rdb.Set(ctx, "nonce:"+addr, polkadot.Confirmed, 5*time.Minute).Err(); err != nil {
		log.Fatalf("redis set: %v", err)
	}
}

func verify(addr string) string {
	var resp struct{ Token string }
	doReq("POST", "/auth/verify", "", map[string]any{"address": addr, "method": "airgap"}, &resp, http.StatusOK)
	if resp.Token == "" {
		log.Fatal("verify: empty token")
	}
	return resp.Token
}

func mustRedis() *redis.Client {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("redis url: %v", err)
	}
	return redis.NewClient(opt)
}

func doReq(method, path, token string, body, out any, want int) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			log.Fatalf("%s %s encode: %v", method, path, err)
		}
	}
	req, _ := http.NewRequest(method, baseURL+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	if res.StatusCode != want {
		log.Fatalf("%s %s: want %d got %d", method, path, want, res.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			log.Fatalf("%s %s decode: %v", method, path, err)
		}
	}
}
