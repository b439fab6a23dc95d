// Package hfdata fetches logical-reasoning questions from the HuggingFace
// dataset viewer API. ProofWriter and RuleTaker supply TRUE/FALSE/UNKNOWN
// deduction questions (formal logic); ReClor supplies exam-style MCQ
// (argument logic).
package hfdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"moltbattle/internal/domain/model"
)

// Question is the normalized provider output, independent of which dataset
// a row came from.
type Question struct {
	Prompt        string
	Choices       []string
	CorrectAnswer string
	Dataset       string
	Config        string
	Split         string
	RowOffset     int
}

type datasetSpec struct {
	name   string
	config string
	split  string
	mcq    bool
}

var datasets = map[string]datasetSpec{
	"proofwriter": {name: "tasksource/proofwriter", config: "default", split: "validation"},
	// ruletaker uses 'dev' rather than 'validation'
	"ruletaker": {name: "tasksource/ruletaker", config: "default", split: "dev"},
	"reclor":    {name: "metaeval/reclor", config: "default", split: "validation", mcq: true},
}

var modeDatasets = map[model.CombatMode][]string{
	model.ModeFormalLogic:   {"proofwriter", "ruletaker"},
	model.ModeArgumentLogic: {"reclor"},
}

const sizeCacheTTL = time.Hour

type cachedSize struct {
	rows      int
	fetchedAt time.Time
}

type Client struct {
	base       string
	httpClient *http.Client

	mu        sync.Mutex
	sizeCache map[string]cachedSize
}

func NewClient(base string, timeout time.Duration) *Client {
	return &Client{
		base:       base,
		httpClient: &http.Client{Timeout: timeout},
		sizeCache:  make(map[string]cachedSize),
	}
}

// FetchQuestion picks a random dataset for the mode, a random row offset,
// and returns the normalized question. Any failure is returned to the
// caller, which is expected to fall back to the local pool.
func (c *Client) FetchQuestion(ctx context.Context, mode model.CombatMode) (*Question, error) {
	keys, ok := modeDatasets[mode]
	if !ok {
		keys = modeDatasets[model.ModeFormalLogic]
	}
	spec := datasets[keys[rand.Intn(len(keys))]]

	size, err := c.splitSize(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("hfdata: split size for %s: %w", spec.name, err)
	}
	if size == 0 {
		return nil, fmt.Errorf("hfdata: dataset %s has no rows in %s/%s", spec.name, spec.config, spec.split)
	}

	offset := rand.Intn(size)
	row, err := c.fetchRow(ctx, spec, offset)
	if err != nil {
		return nil, fmt.Errorf("hfdata: fetch row %d from %s: %w", offset, spec.name, err)
	}

	if spec.mcq {
		return normalizeMCQ(row, spec, offset)
	}
	return normalizeTrueFalse(row, spec, offset)
}

func (c *Client) splitSize(ctx context.Context, spec datasetSpec) (int, error) {
	cacheKey := spec.name + ":" + spec.config + ":" + spec.split

	c.mu.Lock()
	if cached, ok := c.sizeCache[cacheKey]; ok && time.Since(cached.fetchedAt) < sizeCacheTTL {
		c.mu.Unlock()
		return cached.rows, nil
	}
	c.mu.Unlock()

	var payload struct {
		Size struct {
			Splits []struct {
				Config  string `json:"config"`
				Split   string `json:"split"`
				NumRows int    `json:"num_rows"`
			} `json:"splits"`
		} `json:"size"`
	}
	params := url.Values{"dataset": {spec.name}}
	if err := c.getJSON(ctx, "/size", params, &payload); err != nil {
		return 0, err
	}

	rows := 0
	for _, s := range payload.Size.Splits {
		if s.Config == spec.config && s.Split == spec.split {
			rows = s.NumRows
			break
		}
	}

	c.mu.Lock()
	c.sizeCache[cacheKey] = cachedSize{rows: rows, fetchedAt: time.Now()}
	c.mu.Unlock()
	return rows, nil
}

func (c *Client) fetchRow(ctx context.Context, spec datasetSpec, offset int) (map[string]json.RawMessage, error) {
	var payload struct {
		Rows []struct {
			Row map[string]json.RawMessage `json:"row"`
		} `json:"rows"`
	}
	params := url.Values{
		"dataset": {spec.name},
		"config":  {spec.config},
		"split":   {spec.split},
		"offset":  {strconv.Itoa(offset)},
		"length":  {"1"},
	}
	if err := c.getJSON(ctx, "/rows", params, &payload); err != nil {
		return nil, err
	}
	if len(payload.Rows) == 0 {
		return nil, fmt.Errorf("no row found at offset %d", offset)
	}
	return payload.Rows[0].Row, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("dataset viewer returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
