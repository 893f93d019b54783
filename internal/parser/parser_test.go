package parser

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// sampleFields returns a well-formed 34-field record in NSS order.
func sampleFields() []string {
	return []string{
		"Mon Jun 20 12:00:00 2022", // 0 timestamp
		"HQ",                       // 1 location
		"HTTPS",                    // 2 protocol
		"https://example.com/path", // 3 url
		"Allowed",                  // 4 action
		"Browser",                  // 5 app_name
		"General Browsing",         // 6 app_class
		"100",                      // 7 throttle_req_size
		"200",                      // 8 throttle_resp_size
		"1500",                     // 9 req_size
		"4000",                     // 10 resp_size
		"Business",                 // 11 url_class
		"Information",              // 12 url_supercat
		"Search Engines",           // 13 url_cat
		"None",                     // 14 dlp_dict
		"None",                     // 15 dlp_eng
		"0",                        // 16 dlp_hits
		"None",                     // 17 file_class
		"None",                     // 18 file_type
		"HQ",                       // 19 location2
		"Engineering",              // 20 department
		"10.0.0.5",                 // 21 client_ip
		"93.184.216.34",            // 22 server_ip
		"GET",                      // 23 http_method
		"200",                      // 24 http_status
		"Mozilla/5.0",              // 25 user_agent
		"None",                     // 26 threat_category
		"None",                     // 27 fw_filter
		"None",                     // 28 fw_rule
		"URL Filtering",            // 29 policy_type
		"None",                     // 30 reason
		"0",                        // 31
		"0",                        // 32
		"None",                     // 33
	}
}

func buildLine(fields []string) string {
	return `"` + strings.Join(fields, `","`) + `"`
}

func TestParseLineValid(t *testing.T) {
	entry, err := ParseLine(buildLine(sampleFields()))
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}

	want := time.Date(2022, time.June, 20, 12, 0, 0, 0, time.UTC)
	if !entry.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", entry.Timestamp, want)
	}
	if entry.Domain != "example.com" {
		t.Errorf("domain = %q, want %q", entry.Domain, "example.com")
	}
	if entry.Action != "Allowed" {
		t.Errorf("action = %q, want %q", entry.Action, "Allowed")
	}
	if entry.RespSize != 4000 {
		t.Errorf("resp_size = %d, want 4000", entry.RespSize)
	}
	if entry.Department != "Engineering" {
		t.Errorf("department = %q, want %q", entry.Department, "Engineering")
	}
	if entry.ClientIP != "10.0.0.5" {
		t.Errorf("client_ip = %q, want %q", entry.ClientIP, "10.0.0.5")
	}
	if entry.HTTPStatus != 200 {
		t.Errorf("http_status = %d, want 200", entry.HTTPStatus)
	}
	if entry.UserAgent != "Mozilla/5.0" {
		t.Errorf("user_agent = %q, want %q", entry.UserAgent, "Mozilla/5.0")
	}
	if entry.Reason != "None" {
		t.Errorf("reason = %q, want %q", entry.Reason, "None")
	}
}

func TestParseLineDeterministic(t *testing.T) {
	line := buildLine(sampleFields())
	a, err := ParseLine(line)
	if err != nil {
		t.Fatalf("first parse failed: %v", err)
	}
	b, err := ParseLine(line)
	if err != nil {
		t.Fatalf("second parse failed: %v", err)
	}
	if *a != *b {
		t.Errorf("same line produced different entries:\n%+v\n%+v", a, b)
	}
}

func TestParseLineFieldCount(t *testing.T) {
	short := sampleFields()[:33]
	if _, err := ParseLine(buildLine(short)); !errors.Is(err, ErrFieldCount) {
		t.Errorf("33 fields: err = %v, want ErrFieldCount", err)
	}

	long := append(sampleFields(), "extra")
	if _, err := ParseLine(buildLine(long)); !errors.Is(err, ErrFieldCount) {
		t.Errorf("35 fields: err = %v, want ErrFieldCount", err)
	}
}

func TestParseLineInvalidTimestamp(t *testing.T) {
	fields := sampleFields()
	fields[0] = "2022-06-20T12:00:00Z"
	if _, err := ParseLine(buildLine(fields)); !errors.Is(err, ErrTimestamp) {
		t.Errorf("err = %v, want ErrTimestamp", err)
	}
}

func TestParseLineQuotedComma(t *testing.T) {
	fields := sampleFields()
	fields[25] = "Mozilla/5.0 (Windows NT 10.0, Win64, x64)"
	entry, err := ParseLine(buildLine(fields))
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if entry.UserAgent != fields[25] {
		t.Errorf("user_agent = %q, want %q", entry.UserAgent, fields[25])
	}
}

func TestParseLineNumericDefaults(t *testing.T) {
	fields := sampleFields()
	fields[9] = ""
	fields[10] = "not-a-number"
	fields[24] = " "
	entry, err := ParseLine(buildLine(fields))
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if entry.ReqSize != 0 || entry.RespSize != 0 || entry.HTTPStatus != 0 {
		t.Errorf("numeric defaults: req=%d resp=%d status=%d, want all 0",
			entry.ReqSize, entry.RespSize, entry.HTTPStatus)
	}
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://example.com/path", "example.com"},
		{"https://example.com/path", "example.com"},
		{"example.com/path", "example.com"},
		{"example.com", "example.com"},
		{"example.com:8080/path", "example.com"},
		{"https://example.com:443/", "example.com"},
		{"phishing-login.co", "phishing-login.co"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExtractDomain(tt.url); got != tt.want {
			t.Errorf("ExtractDomain(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
