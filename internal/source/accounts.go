package source

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/postwatch/postwatch/internal/model"

	"go.uber.org/zap"
)

// fileAccounts reads handles from a local file, one per line. Blank lines and
// lines starting with # are skipped.
type fileAccounts struct {
	path string
	log  *zap.Logger
}

// NewFileAccounts creates an account source over a local handle list
func NewFileAccounts(path string, log *zap.Logger) AccountSource {
	return &fileAccounts{path: path, log: log}
}

func (f *fileAccounts) List(ctx context.Context) ([]string, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open account list: %w", err)
	}
	defer file.Close()

	var handles []string
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if h := model.ParseHandle(line); h != "" {
			handles = append(handles, h)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read account list: %w", err)
	}
	f.log.Info("loaded accounts", zap.Int("count", len(handles)), zap.String("path", f.path))
	return handles, nil
}

// CSVConfig is the configuration for the CSV account source
type CSVConfig struct {
	URL     string
	Timeout time.Duration
}

// csvAccounts fetches a CSV export (the spreadsheet's published form) and
// takes handles from the first column, skipping the header row.
type csvAccounts struct {
	cfg    CSVConfig
	client *http.Client
	log    *zap.Logger
}

// NewCSVAccounts creates an account source over a CSV export URL
func NewCSVAccounts(cfg CSVConfig, log *zap.Logger) AccountSource {
	return &csvAccounts{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

func (c *csvAccounts) List(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build account list request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch account list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch account list: unexpected status %d", resp.StatusCode)
	}

	r := csv.NewReader(resp.Body)
	r.FieldsPerRecord = -1
	var handles []string
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse account list: %w", err)
		}
		if first {
			first = false // header row
			continue
		}
		if len(rec) == 0 {
			continue
		}
		raw := strings.TrimSpace(rec[0])
		if raw == "" {
			continue
		}
		if h := model.ParseHandle(raw); h != "" {
			handles = append(handles, h)
		}
	}
	c.log.Info("loaded accounts", zap.Int("count", len(handles)), zap.String("url", c.cfg.URL))
	return handles, nil
}
