package logmine

import (
	"bytes"
	"encoding/json"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spendmon/spendmon/internal/core"
)

// SchemaVersion identifies the set of record shapes this parser recognizes.
// Bump it whenever a shape is added or changed so cached payloads parsed by
// an older version are invalidated wholesale.
const SchemaVersion = 3

// Lines carrying these markers are known non-usage records (summaries,
// user turns, session index records) and are skipped before any JSON work.
var skipMarkers = [][]byte{
	[]byte(`"type":"summary"`),
	[]byte(`"type":"user"`),
	[]byte(`"sessionId"`),
	[]byte(`"parentUuid"`),
	[]byte(`"leafUuid"`),
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
}

// Parser turns one raw log line into a usage entry. The log producer has
// changed its line format across versions without a version marker, so
// parsing is an ordered fallback chain: the first strategy that yields
// usable token counts wins.
type Parser struct {
	now func() time.Time
}

func NewParser() *Parser {
	return &Parser{now: time.Now}
}

type parseStrategy func(line []byte) (core.UsageLogEntry, bool)

var strategies = []parseStrategy{
	parseNestedSnake,
	parseFlatSnake,
	parseCamel,
	parseTokenRegex,
}

// ParseLine reports ok=false for lines that carry no usable token data;
// such lines are skipped, never zero-filled. A recognized line missing its
// timestamp gets the current time substituted.
func (p *Parser) ParseLine(line []byte) (core.UsageLogEntry, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return core.UsageLogEntry{}, false
	}
	for _, marker := range skipMarkers {
		if bytes.Contains(line, marker) {
			return core.UsageLogEntry{}, false
		}
	}
	if !bytes.Contains(line, []byte("token")) && !bytes.Contains(line, []byte("Token")) {
		return core.UsageLogEntry{}, false
	}

	for _, strat := range strategies {
		entry, ok := strat(line)
		if !ok {
			continue
		}
		if entry.Timestamp.IsZero() {
			entry.Timestamp = p.now()
			log.Printf("[parser] line missing timestamp, substituting current time")
		}
		return entry, true
	}
	return core.UsageLogEntry{}, false
}

type snakeUsage struct {
	InputTokens              *int `json:"input_tokens"`
	OutputTokens             *int `json:"output_tokens"`
	CacheCreationInputTokens *int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     *int `json:"cache_read_input_tokens"`
}

type nestedSnakeLine struct {
	Timestamp string `json:"timestamp"`
	Message   *struct {
		Model string      `json:"model"`
		Usage *snakeUsage `json:"usage"`
	} `json:"message"`
	CostUSD  *float64 `json:"costUSD"`
	CostUSD2 *float64 `json:"cost_usd"`
}

func parseNestedSnake(line []byte) (core.UsageLogEntry, bool) {
	var rec nestedSnakeLine
	if err := json.Unmarshal(line, &rec); err != nil {
		return core.UsageLogEntry{}, false
	}
	if rec.Message == nil || rec.Message.Usage == nil {
		return core.UsageLogEntry{}, false
	}
	u := rec.Message.Usage
	if u.InputTokens == nil && u.OutputTokens == nil {
		return core.UsageLogEntry{}, false
	}
	entry := core.UsageLogEntry{
		Model:               rec.Message.Model,
		InputTokens:         clampTokens(intVal(u.InputTokens)),
		OutputTokens:        clampTokens(intVal(u.OutputTokens)),
		CacheCreationTokens: clampTokens(intVal(u.CacheCreationInputTokens)),
		CacheReadTokens:     clampTokens(intVal(u.CacheReadInputTokens)),
		CostUSD:             firstCost(rec.CostUSD, rec.CostUSD2),
	}
	entry.Timestamp, _ = parseTimestamp(rec.Timestamp)
	return entry, true
}

type flatSnakeLine struct {
	Timestamp string `json:"timestamp"`
	Model     string `json:"model"`
	snakeUsage
	CostUSD  *float64 `json:"cost_usd"`
	CostUSD2 *float64 `json:"costUSD"`
}

func parseFlatSnake(line []byte) (core.UsageLogEntry, bool) {
	var rec flatSnakeLine
	if err := json.Unmarshal(line, &rec); err != nil {
		return core.UsageLogEntry{}, false
	}
	if rec.InputTokens == nil && rec.OutputTokens == nil {
		return core.UsageLogEntry{}, false
	}
	entry := core.UsageLogEntry{
		Model:               rec.Model,
		InputTokens:         clampTokens(intVal(rec.InputTokens)),
		OutputTokens:        clampTokens(intVal(rec.OutputTokens)),
		CacheCreationTokens: clampTokens(intVal(rec.CacheCreationInputTokens)),
		CacheReadTokens:     clampTokens(intVal(rec.CacheReadInputTokens)),
		CostUSD:             firstCost(rec.CostUSD, rec.CostUSD2),
	}
	entry.Timestamp, _ = parseTimestamp(rec.Timestamp)
	return entry, true
}

type camelUsage struct {
	InputTokens              *int `json:"inputTokens"`
	OutputTokens             *int `json:"outputTokens"`
	CacheCreationInputTokens *int `json:"cacheCreationInputTokens"`
	CacheCreationTokens      *int `json:"cacheCreationTokens"`
	CacheReadInputTokens     *int `json:"cacheReadInputTokens"`
	CacheReadTokens          *int `json:"cacheReadTokens"`
}

type camelLine struct {
	Timestamp string `json:"timestamp"`
	Model     string `json:"model"`
	Message   *struct {
		Model string      `json:"model"`
		Usage *camelUsage `json:"usage"`
	} `json:"message"`
	camelUsage
	CostUSD *float64 `json:"costUSD"`
}

// parseCamel covers the camelCase generation of the format, nested form
// first, then flat.
func parseCamel(line []byte) (core.UsageLogEntry, bool) {
	var rec camelLine
	if err := json.Unmarshal(line, &rec); err != nil {
		return core.UsageLogEntry{}, false
	}

	model := rec.Model
	u := rec.camelUsage
	if rec.Message != nil && rec.Message.Usage != nil {
		u = *rec.Message.Usage
		if rec.Message.Model != "" {
			model = rec.Message.Model
		}
	}
	if u.InputTokens == nil && u.OutputTokens == nil {
		return core.UsageLogEntry{}, false
	}
	entry := core.UsageLogEntry{
		Model:               model,
		InputTokens:         clampTokens(intVal(u.InputTokens)),
		OutputTokens:        clampTokens(intVal(u.OutputTokens)),
		CacheCreationTokens: clampTokens(intVal(firstInt(u.CacheCreationInputTokens, u.CacheCreationTokens))),
		CacheReadTokens:     clampTokens(intVal(firstInt(u.CacheReadInputTokens, u.CacheReadTokens))),
		CostUSD:             rec.CostUSD,
	}
	entry.Timestamp, _ = parseTimestamp(rec.Timestamp)
	return entry, true
}

var (
	tokenPairRe = regexp.MustCompile(`"?([A-Za-z_]*[Tt]okens?)"?\s*:\s*(-?\d+)`)
	timestampRe = regexp.MustCompile(`"timestamp"\s*:\s*"([^"]+)"`)
	costRe      = regexp.MustCompile(`"cost(?:USD|_usd)"\s*:\s*(-?[0-9.]+)`)
)

// parseTokenRegex is the last resort for malformed JSON: pull out anything
// that looks like a token-count pair and classify it by key name.
func parseTokenRegex(line []byte) (core.UsageLogEntry, bool) {
	pairs := tokenPairRe.FindAllSubmatch(line, -1)
	if len(pairs) == 0 {
		return core.UsageLogEntry{}, false
	}

	var entry core.UsageLogEntry
	seen := false
	for _, m := range pairs {
		key := strings.ToLower(string(m[1]))
		n, err := strconv.Atoi(string(m[2]))
		if err != nil {
			continue
		}
		n = clampTokens(n)
		switch {
		case strings.Contains(key, "cache_creation") || strings.Contains(key, "cachecreation"):
			entry.CacheCreationTokens = n
		case strings.Contains(key, "cache_read") || strings.Contains(key, "cacheread"):
			entry.CacheReadTokens = n
		case strings.Contains(key, "input"):
			entry.InputTokens = n
			seen = true
		case strings.Contains(key, "output"):
			entry.OutputTokens = n
			seen = true
		}
	}
	if !seen {
		return core.UsageLogEntry{}, false
	}
	if m := timestampRe.FindSubmatch(line); m != nil {
		entry.Timestamp, _ = parseTimestamp(string(m[1]))
	}
	if m := costRe.FindSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(string(m[1]), 64); err == nil && v >= 0 {
			entry.CostUSD = &v
		}
	}
	return entry, true
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func clampTokens(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func intVal(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func firstInt(ps ...*int) *int {
	for _, p := range ps {
		if p != nil {
			return p
		}
	}
	return nil
}

func firstCost(ps ...*float64) *float64 {
	for _, p := range ps {
		if p != nil {
			return p
		}
	}
	return nil
}
