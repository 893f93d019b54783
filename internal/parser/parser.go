// Package parser turns raw Zscaler NSS web-proxy log lines into typed
// entries. A line either parses fully or is rejected with a single error;
// there is no partial success.
package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ExpectedFieldCount is the fixed width of the NSS feed format.
const ExpectedFieldCount = 34

// TimestampLayout matches the NSS timestamp, e.g. "Mon Jun 20 12:00:00 2022".
const TimestampLayout = "Mon Jan 2 15:04:05 2006"

var (
	// ErrFieldCount marks a line whose CSV field count is not 34.
	ErrFieldCount = errors.New("field count mismatch")
	// ErrTimestamp marks a line whose first field is not a valid NSS timestamp.
	ErrTimestamp = errors.New("invalid timestamp")
)

// Entry is the typed result of successfully parsing one log line.
// Field offsets follow the NSS feed order; offsets 31-33 are present in the
// feed but carry no retained data.
type Entry struct {
	Timestamp        time.Time
	Location         string
	Protocol         string
	URL              string
	Domain           string
	Action           string
	AppName          string
	AppClass         string
	ThrottleReqSize  int64
	ThrottleRespSize int64
	ReqSize          int64
	RespSize         int64
	URLClass         string
	URLSupercat      string
	URLCat           string
	DLPDict          string
	DLPEngine        string
	DLPHits          int64
	FileClass        string
	FileType         string
	Location2        string
	Department       string
	ClientIP         string
	ServerIP         string
	HTTPMethod       string
	HTTPStatus       int64
	UserAgent        string
	ThreatCategory   string
	FWFilter         string
	FWRule           string
	PolicyType       string
	Reason           string
}

// ParseLine parses one CSV line with 34 double-quoted fields.
func ParseLine(line string) (*Entry, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	fields, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFieldCount, err)
	}
	if len(fields) != ExpectedFieldCount {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", ErrFieldCount, ExpectedFieldCount, len(fields))
	}

	ts, err := time.Parse(TimestampLayout, fields[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrTimestamp, fields[0])
	}

	rawURL := fields[3]

	return &Entry{
		Timestamp:        ts,
		Location:         fields[1],
		Protocol:         fields[2],
		URL:              rawURL,
		Domain:           ExtractDomain(rawURL),
		Action:           fields[4],
		AppName:          fields[5],
		AppClass:         fields[6],
		ThrottleReqSize:  parseInt(fields[7]),
		ThrottleRespSize: parseInt(fields[8]),
		ReqSize:          parseInt(fields[9]),
		RespSize:         parseInt(fields[10]),
		URLClass:         fields[11],
		URLSupercat:      fields[12],
		URLCat:           fields[13],
		DLPDict:          fields[14],
		DLPEngine:        fields[15],
		DLPHits:          parseInt(fields[16]),
		FileClass:        fields[17],
		FileType:         fields[18],
		Location2:        fields[19],
		Department:       fields[20],
		ClientIP:         fields[21],
		ServerIP:         fields[22],
		HTTPMethod:       fields[23],
		HTTPStatus:       parseInt(fields[24]),
		UserAgent:        fields[25],
		ThreatCategory:   fields[26],
		FWFilter:         fields[27],
		FWRule:           fields[28],
		PolicyType:       fields[29],
		Reason:           fields[30],
	}, nil
}

// ExtractDomain returns the host portion of a URL field, port stripped.
// The field may or may not carry a scheme. Never fails; the result can be
// empty when the field is empty.
func ExtractDomain(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	withScheme := rawURL
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		withScheme = "http://" + rawURL
	}
	if u, err := url.Parse(withScheme); err == nil {
		if host := u.Hostname(); host != "" {
			return host
		}
	}

	// Manual fallback for values url.Parse rejects (embedded spaces, stray
	// control characters): strip scheme, cut at first slash, drop the port.
	trimmed := strings.TrimPrefix(rawURL, "http://")
	trimmed = strings.TrimPrefix(trimmed, "https://")
	host, _, _ := strings.Cut(trimmed, "/")
	host, _, _ = strings.Cut(host, ":")
	return host
}

// parseInt is the permissive numeric parse: empty or non-numeric fields
// become 0 rather than rejecting the whole line.
func parseInt(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
