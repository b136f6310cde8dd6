// Command smoke drives a running server through the ingest, resolve,
// and review cycle. It expects the server and Memgraph on localhost.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const baseURL = "http://localhost:8080"

func main() {
	// Wait for server to start
	time.Sleep(2 * time.Second)

	fmt.Println("Starting Resolution Smoke Test...")

	groupID := fmt.Sprintf("smoke-group-%d", time.Now().Unix())

	// 1. Save a near-duplicate organization pair.
	fmt.Println("1. Saving organization pair...")
	orgA, ok := saveEntity(map[string]interface{}{
		"group_id": groupID,
		"kind":     "organization",
		"name":     "International Business Machines",
		"domain":   "ibm.com",
		"source":   "document",
	})
	if !ok {
		fmt.Println("FAILED: Save organization")
		os.Exit(1)
	}
	orgB, ok := saveEntity(map[string]interface{}{
		"group_id": groupID,
		"kind":     "organization",
		"name":     "IBM",
		"domain":   "ibm.com",
		"source":   "transcript",
	})
	if !ok {
		fmt.Println("FAILED: Save organization")
		os.Exit(1)
	}
	fmt.Println("PASSED: Save organizations")

	// 2. Save a borderline person pair that lands in review.
	fmt.Println("2. Saving person pair...")
	_, ok = saveEntity(map[string]interface{}{
		"group_id": groupID,
		"kind":     "person",
		"name":     "João Silva",
		"email":    "joao.silva@cgi.com",
		"source":   "document",
	})
	if !ok {
		fmt.Println("FAILED: Save person")
		os.Exit(1)
	}
	_, ok = saveEntity(map[string]interface{}{
		"group_id": groupID,
		"kind":     "person",
		"name":     "J. Silva",
		"email":    "j.silva@cgi.com",
		"source":   "transcript",
	})
	if !ok {
		fmt.Println("FAILED: Save person")
		os.Exit(1)
	}
	fmt.Println("PASSED: Save persons")

	// 3. Cancel the debounced pass the saves scheduled; the full pass
	// below covers everything.
	fmt.Println("3. Canceling scheduled pass...")
	if _, ok := sendRequest("DELETE", "/resolution/schedule", nil); !ok {
		fmt.Println("FAILED: Cancel schedule")
		os.Exit(1)
	}
	fmt.Println("PASSED: Cancel schedule")

	// 4. Run a full resolution pass.
	fmt.Println("4. Running full resolution pass...")
	resp, ok := sendRequest("POST", "/resolution/run", map[string]string{"kind": "full"})
	if !ok {
		fmt.Println("FAILED: Run resolution")
		os.Exit(1)
	}
	stats, _ := resp["stats"].(map[string]interface{})
	if num(stats, "auto_merged") < 1 {
		fmt.Println("FAILED: expected the organization pair to auto-merge")
		os.Exit(1)
	}
	if num(stats, "flagged") < 1 {
		fmt.Println("FAILED: expected the person pair to be flagged")
		os.Exit(1)
	}
	fmt.Println("PASSED: Run resolution")

	// 5. Fetch the retired organization; the pointer must land on the
	// surviving record.
	fmt.Println("5. Fetching merged organization...")
	resp, ok = sendRequest("GET", "/entities/"+orgB, nil)
	if !ok {
		fmt.Println("FAILED: Fetch entity")
		os.Exit(1)
	}
	entity, _ := resp["entity"].(map[string]interface{})
	if uuid, _ := entity["uuid"].(string); uuid != orgA && uuid != orgB {
		fmt.Printf("FAILED: merge pointer landed on unknown entity %q\n", uuid)
		os.Exit(1)
	}
	fmt.Println("PASSED: Fetch merged organization")

	// 6. Approve the flagged person pair.
	fmt.Println("6. Resolving review flag...")
	resp, ok = sendRequest("GET", "/resolution/review?group_id="+groupID, nil)
	if !ok {
		fmt.Println("FAILED: List review flags")
		os.Exit(1)
	}
	flags, _ := resp["flags"].([]interface{})
	if len(flags) == 0 {
		fmt.Println("FAILED: no review flags listed")
		os.Exit(1)
	}
	flag, _ := flags[0].(map[string]interface{})
	flagUUID, _ := flag["uuid"].(string)

	resp, ok = sendRequest("POST", "/resolution/review/"+flagUUID, map[string]bool{"approve": true})
	if !ok {
		fmt.Println("FAILED: Approve review flag")
		os.Exit(1)
	}
	if approved, _ := resp["approved"].(bool); !approved {
		fmt.Println("FAILED: approval not recorded")
		os.Exit(1)
	}
	fmt.Println("PASSED: Resolve review flag")

	// 7. Execution history.
	fmt.Println("7. Checking execution stats...")
	resp, ok = sendRequest("GET", "/executions/stats", nil)
	if !ok || num(resp, "completed") < 1 {
		fmt.Println("FAILED: Execution stats")
		os.Exit(1)
	}
	fmt.Println("PASSED: Execution stats")

	fmt.Println("Smoke test complete.")
}

func saveEntity(payload map[string]interface{}) (string, bool) {
	resp, ok := sendRequest("POST", "/entities", payload)
	if !ok {
		return "", false
	}
	entity, _ := resp["entity"].(map[string]interface{})
	uuid, _ := entity["uuid"].(string)
	return uuid, uuid != ""
}

func num(m map[string]interface{}, key string) float64 {
	v, _ := m[key].(float64)
	return v
}

func sendRequest(method, endpoint string, payload interface{}) (map[string]interface{}, bool) {
	var body io.Reader
	if payload != nil {
		jsonBytes, _ := json.Marshal(payload)
		body = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, baseURL+endpoint, body)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		return nil, false
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		return nil, false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(respBody))
		return nil, false
	}
	fmt.Printf("Response: %s\n", string(respBody))

	var decoded map[string]interface{}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &decoded); err != nil {
			fmt.Printf("Error decoding response: %v\n", err)
			return nil, false
		}
	}
	return decoded, true
}
