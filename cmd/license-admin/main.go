package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"rstudio-ai-chat/internal/license"
)

// Drives the running server's admin API. Needs ADMIN_KEY (or a key
// matching the server's ADMIN_KEY_HASH) and optionally SERVER_URL.
func main() {
	fmt.Println("========================================")
	fmt.Println(" License Administration Tool")
	fmt.Println("========================================")
	fmt.Println()

	client := newAdminClient()
	if client.adminKey == "" {
		fmt.Println("ADMIN_KEY environment variable is required")
		os.Exit(1)
	}

	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Println("\nOptions:")
		fmt.Println("  1. Create single license")
		fmt.Println("  2. Create batch of licenses")
		fmt.Println("  3. List licenses")
		fmt.Println("  4. Deactivate a license")
		fmt.Println("  5. Delete a license")
		fmt.Println("  6. Show usage stats")
		fmt.Println("  7. Show license type info")
		fmt.Println("  8. Exit")
		fmt.Print("\nSelect option: ")

		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		switch input {
		case "1":
			createSingle(client, reader)
		case "2":
			createBatch(client, reader)
		case "3":
			listLicenses(client)
		case "4":
			deactivateLicense(client, reader)
		case "5":
			deleteLicense(client, reader)
		case "6":
			showStats(client)
		case "7":
			showLicenseInfo()
		case "8":
			fmt.Println("Goodbye!")
			os.Exit(0)
		default:
			fmt.Println("Invalid option")
		}
	}
}

type adminClient struct {
	baseURL  string
	adminKey string
	http     *http.Client
}

func newAdminClient() *adminClient {
	baseURL := os.Getenv("SERVER_URL")
	if baseURL == "" {
		baseURL = "http://localhost:3001"
	}
	return &adminClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		adminKey: os.Getenv("ADMIN_KEY"),
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *adminClient) do(method, path string, body interface{}) (map[string]interface{}, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Key", c.adminKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("invalid response (%s): %w", resp.Status, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := result["error"].(string)
		return nil, fmt.Errorf("%s: %s", resp.Status, msg)
	}
	return result, nil
}

func readLicenseType(reader *bufio.Reader) string {
	fmt.Println("License types:")
	fmt.Println("  1. Trial     (100 turns, 7 days)")
	fmt.Println("  2. Basic     (1000 turns, 30 days)")
	fmt.Println("  3. Premium   (10000 turns, 90 days)")
	fmt.Println("  4. Unlimited (no practical limit)")
	fmt.Print("Select type (1-4): ")

	input, _ := reader.ReadString('\n')
	switch strings.TrimSpace(input) {
	case "2":
		return string(license.TypeBasic)
	case "3":
		return string(license.TypePremium)
	case "4":
		return string(license.TypeUnlimited)
	default:
		fmt.Println("Defaulting to trial")
		return string(license.TypeTrial)
	}
}

func createSingle(c *adminClient, reader *bufio.Reader) {
	fmt.Println("\n--- Create License ---")
	licenseType := readLicenseType(reader)

	result, err := c.do("POST", "/api/admin/licenses", map[string]interface{}{"type": licenseType})
	if err != nil {
		fmt.Printf("Failed: %v\n", err)
		return
	}

	lic, _ := result["license"].(map[string]interface{})
	fmt.Println("\n========================================")
	fmt.Printf("  License Type: %v\n", lic["type"])
	fmt.Printf("  License Key:  %v\n", lic["key"])
	fmt.Printf("  Max Usage:    %v\n", lic["maxUsage"])
	fmt.Println("========================================")
}

func createBatch(c *adminClient, reader *bufio.Reader) {
	fmt.Println("\n--- Create Batch ---")
	licenseType := readLicenseType(reader)

	fmt.Print("How many licenses (1-100)? ")
	countInput, _ := reader.ReadString('\n')
	count, err := strconv.Atoi(strings.TrimSpace(countInput))
	if err != nil || count < 1 || count > 100 {
		fmt.Println("Invalid count")
		return
	}

	result, err := c.do("POST", "/api/admin/licenses/bulk", map[string]interface{}{
		"type":  licenseType,
		"count": count,
	})
	if err != nil {
		fmt.Printf("Failed: %v\n", err)
		return
	}

	lics, _ := result["licenses"].([]interface{})
	fmt.Printf("\nCreated %d licenses:\n", len(lics))
	for _, item := range lics {
		if lic, ok := item.(map[string]interface{}); ok {
			fmt.Printf("  %v\n", lic["key"])
		}
	}
}

func listLicenses(c *adminClient) {
	result, err := c.do("GET", "/api/admin/licenses", nil)
	if err != nil {
		fmt.Printf("Failed: %v\n", err)
		return
	}

	lics, _ := result["licenses"].([]interface{})
	fmt.Printf("\n%d licenses:\n", len(lics))
	for _, item := range lics {
		lic, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		status := "active"
		if active, _ := lic["isActive"].(bool); !active {
			status = "inactive"
		}
		fmt.Printf("  %-38v %-10v %6v/%v  %s\n",
			lic["key"], lic["type"], lic["usageCount"], lic["maxUsage"], status)
	}
}

func deactivateLicense(c *adminClient, reader *bufio.Reader) {
	fmt.Print("\nLicense key to deactivate: ")
	key, _ := reader.ReadString('\n')
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}

	isActive := false
	_, err := c.do("PUT", "/api/admin/licenses/"+key, map[string]interface{}{"isActive": isActive})
	if err != nil {
		fmt.Printf("Failed: %v\n", err)
		return
	}
	fmt.Println("License deactivated")
}

func deleteLicense(c *adminClient, reader *bufio.Reader) {
	fmt.Print("\nLicense key to delete: ")
	key, _ := reader.ReadString('\n')
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}

	fmt.Print("Are you sure? (y/n): ")
	confirm, _ := reader.ReadString('\n')
	if strings.TrimSpace(strings.ToLower(confirm)) != "y" {
		fmt.Println("Cancelled")
		return
	}

	if _, err := c.do("DELETE", "/api/admin/licenses/"+key, nil); err != nil {
		fmt.Printf("Failed: %v\n", err)
		return
	}
	fmt.Println("License deleted")
}

func showStats(c *adminClient) {
	result, err := c.do("GET", "/api/admin/stats", nil)
	if err != nil {
		fmt.Printf("Failed: %v\n", err)
		return
	}

	stats, _ := result["stats"].(map[string]interface{})
	fmt.Println("\n--- Usage Stats ---")
	fmt.Printf("  Total users:         %v\n", stats["totalUsers"])
	fmt.Printf("  Active users (7d):   %v\n", stats["activeUsers"])
	fmt.Printf("  Total conversations: %v\n", stats["totalConversations"])
	fmt.Printf("  Total messages:      %v\n", stats["totalMessages"])
	if types, ok := stats["licenseTypes"].(map[string]interface{}); ok {
		fmt.Println("  Licenses by type:")
		for t, n := range types {
			fmt.Printf("    %-10s %v\n", t, n)
		}
	}
}

func showLicenseInfo() {
	fmt.Println("\n--- License Types ---")
	for _, t := range []license.Type{license.TypeTrial, license.TypeBasic, license.TypePremium, license.TypeUnlimited} {
		limits := license.DefaultLimits[t]
		expiry := "never expires"
		if limits.ExpiresIn > 0 {
			expiry = fmt.Sprintf("expires after %d days", int(limits.ExpiresIn.Hours()/24))
		}
		fmt.Printf("  %-10s %6d turns, %s\n", t, limits.MaxUsage, expiry)
	}
}
