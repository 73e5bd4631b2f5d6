package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spiderctl/spiderctl/internal/spider"
)

// listResponse is the envelope for every paginated collection endpoint.
type listResponse[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 200
)

// decodeJSON reads a request body strictly: unknown fields are rejected
// so client typos surface as 400s instead of silently dropped fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &spider.ValidationError{Field: "body", Msg: err.Error()}
	}
	return nil
}

func parsePaging(r *http.Request) (page, pageSize int, err error) {
	page, pageSize = defaultPage, defaultPageSize
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, &spider.ValidationError{Field: "page", Msg: "must be a positive integer"}
		}
	}
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		pageSize, err = strconv.Atoi(raw)
		if err != nil || pageSize < 1 || pageSize > maxPageSize {
			return 0, 0, &spider.ValidationError{
				Field: "page_size",
				Msg:   fmt.Sprintf("must be between 1 and %d", maxPageSize),
			}
		}
	}
	return page, pageSize, nil
}

func parseBoolParam(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, &spider.ValidationError{Field: name, Msg: "must be true or false"}
	}
	return &v, nil
}

func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, &spider.ValidationError{Field: name, Msg: "must be an RFC 3339 timestamp"}
	}
	return &t, nil
}

// splitParam parses a comma-separated query value into its non-empty parts.
func splitParam(r *http.Request, name string) []string {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	var parts []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
