package source

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// ODataPath is the service root below the API base URL
	ODataPath = "/odata/v2/"

	// DefaultResultsPath and DefaultNextPagePath describe the
	// {"data": {"results": [...], "nextPage": ...}} page shape
	DefaultResultsPath  = "data.results"
	DefaultNextPagePath = "data.nextPage"
)

// InitialURL builds the first-page address for an entity. The field
// selection is sent on this request only; continuations carry their own
// query.
func InitialURL(baseURL, entity, selectFields string) (string, error) {
	if entity == "" {
		return "", fmt.Errorf("entity name is required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + ODataPath + url.PathEscape(entity))
	if err != nil {
		return "", fmt.Errorf("invalid API base URL: %w", err)
	}

	params := u.Query()
	params.Set("$format", "json")
	if selectFields != "" {
		params.Set("$select", selectFields)
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}
