package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SeedFile describes an organizer and its weekly schedule.
type SeedFile struct {
	Organizer      json.RawMessage   `json:"organizer"`
	EventTypes     []json.RawMessage `json:"event_types"`
	Rules          []json.RawMessage `json:"rules"`
	Buffer         json.RawMessage   `json:"buffer,omitempty"`
	PrecomputeDays int               `json:"precompute_days,omitempty"`
}

type seeder struct {
	apiURL string
	token  string
	client *http.Client
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/seed-organizer <seed-file.json>")
		fmt.Println("Example: go run ./scripts/seed-organizer testdata/sample-organizer.json")
		os.Exit(1)
	}

	apiURL := strings.TrimRight(os.Getenv("API_URL"), "/")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Printf("error reading file: %v\n", err)
		os.Exit(1)
	}
	var seed SeedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		fmt.Printf("error parsing JSON: %v\n", err)
		os.Exit(1)
	}

	token, err := adminToken(os.Getenv("ORGANIZER_JWT_SECRET"))
	if err != nil {
		fmt.Printf("error signing token: %v\n", err)
		os.Exit(1)
	}
	s := &seeder{apiURL: apiURL, token: token, client: &http.Client{Timeout: 30 * time.Second}}
	ctx := context.Background()

	fmt.Printf("Seeding organizer against %s\n", apiURL)

	var org struct {
		ID   string `json:"id"`
		Slug string `json:"slug"`
	}
	if err := s.send(ctx, http.MethodPost, "/organizers", seed.Organizer, &org); err != nil {
		fmt.Printf("create organizer: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("organizer %s (%s)\n", org.Slug, org.ID)
	base := "/organizers/" + org.ID

	for _, et := range seed.EventTypes {
		var created struct {
			Slug string `json:"slug"`
		}
		if err := s.send(ctx, http.MethodPost, base+"/event-types", et, &created); err != nil {
			fmt.Printf("  event type failed: %v\n", err)
			continue
		}
		fmt.Printf("  event type %s\n", created.Slug)
	}
	for i, rule := range seed.Rules {
		if err := s.send(ctx, http.MethodPost, base+"/availability/rules", rule, nil); err != nil {
			fmt.Printf("  rule %d failed: %v\n", i, err)
		}
	}
	fmt.Printf("  %d weekly rules\n", len(seed.Rules))

	if len(seed.Buffer) > 0 {
		if err := s.send(ctx, http.MethodPatch, base+"/availability/buffer", seed.Buffer, nil); err != nil {
			fmt.Printf("  buffer failed: %v\n", err)
		}
	}

	if seed.PrecomputeDays > 0 {
		body, _ := json.Marshal(map[string]int{"days_ahead": seed.PrecomputeDays})
		var ack struct {
			Status string `json:"status"`
			JobID  string `json:"job_id"`
		}
		if err := s.send(ctx, http.MethodPost, base+"/availability/cache/precompute", body, &ack); err != nil {
			fmt.Printf("  precompute failed: %v\n", err)
		} else {
			fmt.Printf("  precompute %s (job %s)\n", ack.Status, ack.JobID)
		}
	}

	fmt.Printf("\nDone. Try: curl '%s/events/slots/%s/<event-type>?start_date=%s'\n",
		apiURL, org.Slug, time.Now().AddDate(0, 0, 1).Format("2006-01-02"))
}

// adminToken mints a short-lived admin token. Without a secret the API runs
// unauthenticated and no token is sent.
func adminToken(secret string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", nil
	}
	claims := jwt.MapClaims{
		"sub":  "seed-script",
		"role": "admin",
		"exp":  time.Now().Add(15 * time.Minute).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (s *seeder) send(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, s.apiURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out != nil && len(raw) > 0 {
		return json.Unmarshal(raw, out)
	}
	return nil
}
