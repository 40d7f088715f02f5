package progress

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/cementlab/simops/internal/conventions"
	"github.com/cementlab/simops/internal/log"
	"github.com/cementlab/simops/internal/model"
)

const (
	// linePrefix marks a progress line in the line-oriented format.
	linePrefix = "PROGRESS:"
	// errorPrefix marks the terminal failure marker in the line-oriented format.
	errorPrefix = "ERROR:"
)

// ParserConfig is the configuration for the progress parser.
type ParserConfig struct {
	Logger log.Logger
}

func (c *ParserConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "progress.Parser"})
	return nil
}

// Parser turns raw progress sources into normalized snapshots. The external
// programs write either a line-oriented stream or a structured JSON snapshot,
// never both semantics at once; when both files exist the structured one wins
// if it parses.
type Parser struct {
	logger log.Logger
}

// NewParser creates a new progress parser.
func NewParser(cfg ParserConfig) (*Parser, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Parser{logger: cfg.Logger}, nil
}

// ParseOperation locates and parses an operation's progress source inside its
// workdir. A missing or torn source returns an error, the caller treats it as
// "no update this cycle".
func (p *Parser) ParseOperation(workdir, operationName string) (*model.ProgressSnapshot, error) {
	jsonPath := conventions.ProgressJSONPath(workdir)
	textPath := conventions.ProgressTextPath(workdir, operationName)

	data, jsonErr := os.ReadFile(jsonPath)
	if jsonErr == nil {
		snapshot, err := p.ParseStructured(data)
		if err == nil {
			return snapshot, nil
		}
		// The structured file may be mid-write, fall back to the line file
		// for this cycle if there is one.
		jsonErr = err
	}

	f, textErr := os.Open(textPath)
	if textErr == nil {
		defer f.Close()
		return p.ParseLines(f)
	}
	if !os.IsNotExist(textErr) {
		return nil, fmt.Errorf("could not open progress file: %w", textErr)
	}

	if !os.IsNotExist(jsonErr) {
		return nil, jsonErr
	}
	return nil, fmt.Errorf("no progress source for %s in %s: %w", operationName, workdir, model.ErrNotFound)
}

// ParseStructured parses a structured JSON progress snapshot. Every group is
// optional: absent groups leave the corresponding snapshot fields unset, only
// malformed documents (e.g. a torn write) fail.
func (p *Parser) ParseStructured(data []byte) (*model.ProgressSnapshot, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("malformed structured progress snapshot (possibly a torn write)")
	}

	snapshot := &model.ProgressSnapshot{Metrics: map[string]float64{}}

	if percent := gjson.GetBytes(data, "progress_summary.percent_complete"); percent.Exists() {
		snapshot.Fraction = p.clampFraction(percent.Float() / 100)
	}
	if step := gjson.GetBytes(data, "progress_summary.current_step"); step.Exists() {
		snapshot.Step = step.String()
	}

	for _, group := range []string{"state", "counters"} {
		gjson.GetBytes(data, group).ForEach(func(key, value gjson.Result) bool {
			if value.Type == gjson.Number {
				snapshot.Metrics[key.String()] = value.Float()
			}
			return true
		})
	}

	if msg := gjson.GetBytes(data, "error.message"); msg.Exists() {
		snapshot.Failed = true
		snapshot.FailureMessage = msg.String()
	}

	return snapshot, nil
}

// ParseLines parses a line-oriented progress stream. Only the most recently
// written progress line matters; a trailing error line marks failure.
func (p *Parser) ParseLines(r io.Reader) (*model.ProgressSnapshot, error) {
	scanner := bufio.NewScanner(r)

	var snapshot *model.ProgressSnapshot
	var failMessage string
	failed := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case strings.HasPrefix(line, linePrefix):
			fraction, step, err := p.parseProgressLine(line)
			if err != nil {
				// Likely a torn write, the line is retried next cycle.
				p.logger.Debugf("Skipping unparseable progress line %q: %v", line, err)
				continue
			}
			snapshot = &model.ProgressSnapshot{Fraction: fraction, Step: step}
			failed = false
			failMessage = ""

		case strings.HasPrefix(line, errorPrefix):
			// Only the most recent line matters: an error supersedes any
			// progress context written before it.
			snapshot = nil
			failed = true
			failMessage = strings.TrimSpace(strings.TrimPrefix(line, errorPrefix))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read progress stream: %w", err)
	}

	if snapshot == nil && !failed {
		return nil, fmt.Errorf("no progress lines found")
	}
	if snapshot == nil {
		snapshot = &model.ProgressSnapshot{}
	}
	snapshot.Failed = failed
	snapshot.FailureMessage = failMessage

	return snapshot, nil
}

func (p *Parser) parseProgressLine(line string) (fraction float64, step string, err error) {
	rest := strings.TrimSpace(strings.TrimPrefix(line, linePrefix))
	value, step, _ := strings.Cut(rest, " ")

	fraction, err = strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid fraction %q: %w", value, err)
	}

	return p.clampFraction(fraction), strings.TrimSpace(step), nil
}

// clampFraction clamps a reported fraction into [0,1]. Out-of-range values
// are a program bug worth surfacing, but never a reason to drop the update.
func (p *Parser) clampFraction(fraction float64) float64 {
	switch {
	case fraction < 0:
		p.logger.Warningf("Reported progress fraction %v below range, clamping to 0", fraction)
		return 0
	case fraction > 1:
		p.logger.Warningf("Reported progress fraction %v above range, clamping to 1", fraction)
		return 1
	}
	return fraction
}
