package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"CredTree/internal/types"
)

// Status is the node summary served by GET /status.
type Status struct {
	Sequence    uint64 `json:"sequence"`
	Entities    int    `json:"entities"`
	Connections int    `json:"connections"`
	Node        string `json:"node"`
}

// EntityInfo is an entity as served by GET /entities.
type EntityInfo struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	Authorities []string `json:"authorities"`
	Quorum      int      `json:"quorum"`
	Sequenced   bool     `json:"sequenced"`
	Roster      bool     `json:"roster"`
	PeriodStart uint64   `json:"periodStart"`
	PeriodEnd   uint64   `json:"periodEnd"`
	Parent      string   `json:"parent"`
	Children    []string `json:"children"`
}

// ProofInfo is an aggregate proof with its content identifier.
type ProofInfo struct {
	Subject   string `json:"subject"`
	Aggregate string `json:"aggregate"`
	CID       string `json:"cid"`
}

// Status fetches the node summary.
func (c *Client) Status() (*Status, error) {
	var s Status
	if err := httpGet(c.url("/status"), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Entities lists the hosted entities.
func (c *Client) Entities() ([]EntityInfo, error) {
	var out []EntityInfo
	if err := httpGet(c.url("/entities"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Entity fetches one entity.
func (c *Client) Entity(id types.Identity) (*EntityInfo, error) {
	var e EntityInfo
	if err := httpGet(c.url("/entities/"+id.String()), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// SubjectProof fetches a subject's aggregate proof and CID.
func (c *Client) SubjectProof(target, subject types.Identity) (*ProofInfo, error) {
	var p ProofInfo
	if err := httpGet(c.url("/entities/"+target.String()+"/subjects/"+subject.String()+"/proof"), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// VerifyHTTP checks a claim through the read-only API. It needs no key.
func (c *Client) VerifyHTTP(target, subject types.Identity, claimed []types.Digest, children []types.Identity) (bool, error) {
	body := map[string]any{
		"subject":  subject.String(),
		"digests":  hexList(claimed),
		"children": hexList(children),
	}

	var resp struct {
		Valid bool `json:"valid"`
	}

	if err := httpPostJSON(c.url("/entities/"+target.String()+"/verify"), body, &resp); err != nil {
		return false, err
	}

	return resp.Valid, nil
}

func (c *Client) url(path string) string {
	return "http://" + c.httpAddr + path
}

func hexList[T fmt.Stringer](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = v.String()
	}
	return out
}

// httpGet performs a GET request and decodes the JSON response.
func httpGet(url string, result any) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("GET %s:\n%w", url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, errorBody(resp.Body))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// httpPostJSON performs a POST request with JSON body and decodes the JSON response.
func httpPostJSON(url string, body any, result any) error {
	jsonBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body:\n%w", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(jsonBytes))
	if err != nil {
		return fmt.Errorf("POST %s:\n%w", url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("POST %s: status %d: %s", url, resp.StatusCode, errorBody(resp.Body))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// errorBody extracts the API's error message.
func errorBody(r io.Reader) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.NewDecoder(r).Decode(&e) != nil {
		return "unreadable body"
	}
	return e.Error
}
