package source

import "github.com/tidwall/gjson"

// Record is one element of a page's results array, exactly as the server
// sent it. Records are not required to be objects.
type Record []byte

// Get reads a field of the record by gjson path
func (r Record) Get(path string) gjson.Result {
	return gjson.GetBytes(r, path)
}

// String returns the record's raw text
func (r Record) String() string {
	return string(r)
}

// Chunk is one non-empty page of records in source order
type Chunk struct {
	Records []Record
	// Next is the continuation of the following page; empty on the last page
	Next string
	// Page numbers pages fetched during this run, starting at 1
	Page int
}

// Last reports whether no page follows this chunk
func (c Chunk) Last() bool {
	return c.Next == ""
}

// Credentials are exchanged for a bearer token
type Credentials struct {
	ClientID     string
	ClientSecret string
	CompanyID    string
	UserID       string
}

// tokenResponse is the token endpoint's JSON body
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}
