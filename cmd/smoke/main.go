package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/fdg312/meal-calendar/internal/mealdate"
)

const (
	defaultAPIBase = "http://localhost:8080"
)

var (
	apiBase  string
	password string
	token    string
	client   = &http.Client{Timeout: 30 * time.Second}
	today    string
	dishID   string
)

func main() {
	fmt.Println("=== Meal Calendar Smoke Test ===")
	fmt.Println()

	apiBase = getEnv("API_BASE_URL", defaultAPIBase)
	password = getEnv("SMOKE_PASSWORD", "")
	token = getEnv("SMOKE_TOKEN", "")

	fmt.Printf("API Base: %s\n", apiBase)
	fmt.Printf("Password: %s\n", maskString(password))
	fmt.Printf("Token: %s\n", maskString(token))
	fmt.Println()

	steps := []struct {
		name string
		fn   func() error
	}{
		{"Healthz", testHealthz},
		{"Login", testLogin},
		{"Create Dish", testCreateDish},
		{"Plan Dish Today", testPlanToday},
		{"Last Eaten Is Today", testLastEatenIsToday},
		{"Remove Dish", testRemoveDish},
		{"Last Eaten Cleared", testLastEatenCleared},
		{"Export Menu (CSV)", testExportMenu},
		{"Delete Dish", testDeleteDish},
	}

	failed := false
	for i, step := range steps {
		fmt.Printf("[%d/%d] %s... ", i+1, len(steps), step.name)
		if err := step.fn(); err != nil {
			fmt.Printf("FAILED\n")
			fmt.Printf("  Error: %v\n\n", err)
			failed = true
			break
		}
		fmt.Printf("OK\n")
	}

	// best effort cleanup when a step after creation failed
	if failed && dishID != "" {
		_ = testDeleteDish()
	}

	fmt.Println()
	if failed {
		fmt.Println("SMOKE TEST FAILED")
		os.Exit(1)
	}
	fmt.Println("ALL SMOKE TESTS PASSED")
}

// call sends a JSON request and decodes a JSON response into out when given.
func call(method, path string, body any, wantStatus int, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, apiBase+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status=%d body=%s", method, path, resp.StatusCode, string(data))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode failed: %w", err)
		}
	}
	return nil
}

func testHealthz() error {
	var health struct {
		Status string `json:"status"`
		Today  string `json:"today"`
	}
	if err := call(http.MethodGet, "/healthz", nil, http.StatusOK, &health); err != nil {
		return err
	}
	if health.Today == "" {
		return fmt.Errorf("healthz did not report today")
	}
	today = health.Today
	return nil
}

func testLogin() error {
	if token != "" || password == "" {
		return nil
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := call(http.MethodPost, "/v1/auth/login", map[string]string{"password": password}, http.StatusOK, &resp); err != nil {
		return err
	}
	token = resp.AccessToken
	return nil
}

func testCreateDish() error {
	var dish struct {
		ID string `json:"id"`
	}
	body := map[string]any{
		"name":        fmt.Sprintf("Smoke dish %d", time.Now().UnixNano()),
		"cuisine":     "chinese",
		"ingredients": []string{"rice"},
	}
	if err := call(http.MethodPost, "/v1/dishes", body, http.StatusCreated, &dish); err != nil {
		return err
	}
	dishID = dish.ID
	return nil
}

func testPlanToday() error {
	path := fmt.Sprintf("/v1/planner/slots/%s/dinner/dishes", today)
	return call(http.MethodPost, path, map[string]string{"dish_id": dishID}, http.StatusOK, nil)
}

func lastEaten() (*string, error) {
	var dish struct {
		LastEaten *string `json:"last_eaten"`
	}
	if err := call(http.MethodGet, "/v1/dishes/"+dishID, nil, http.StatusOK, &dish); err != nil {
		return nil, err
	}
	return dish.LastEaten, nil
}

func testLastEatenIsToday() error {
	le, err := lastEaten()
	if err != nil {
		return err
	}
	if le == nil || *le != today {
		return fmt.Errorf("expected last_eaten=%s, got %v", today, le)
	}
	return nil
}

func testRemoveDish() error {
	path := fmt.Sprintf("/v1/planner/slots/%s/dinner/dishes/%s", today, dishID)
	return call(http.MethodDelete, path, nil, http.StatusOK, nil)
}

func testLastEatenCleared() error {
	le, err := lastEaten()
	if err != nil {
		return err
	}
	if le != nil {
		return fmt.Errorf("expected last_eaten=null, got %s", *le)
	}
	return nil
}

func testExportMenu() error {
	day, err := mealdate.Parse(today)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/v1/menus/%s?format=csv", mealdate.WeekStart(day))

	req, err := http.NewRequest(http.MethodGet, apiBase+path, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(data))
	}
	// inline CSV, or JSON with a presigned URL when S3 is configured
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("empty menu export")
	}
	return nil
}

func testDeleteDish() error {
	if dishID == "" {
		return nil
	}
	if err := call(http.MethodDelete, "/v1/dishes/"+dishID, nil, http.StatusNoContent, nil); err != nil {
		return err
	}
	dishID = ""
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func maskString(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
