package modem

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/cablewatch/cablewatch/config"
	"github.com/cablewatch/cablewatch/internal/errors"
	"github.com/cablewatch/cablewatch/internal/logging"
	"github.com/cablewatch/cablewatch/internal/telemetry"
)

var htmlLog = logging.Component("modem.html")

// htmlStatusPage is the connection status page served by TC4400-class
// modems. The page holds three tables: startup procedure, downstream
// channels and upstream channels.
const htmlStatusPage = "cmconnectionstatus.html"

const (
	htmlDownstreamColumns = 13
	htmlUpstreamColumns   = 9
)

// HTMLStatus scrapes modems that only expose channel diagnostics as an
// HTML status page behind basic auth.
type HTMLStatus struct {
	name     string
	baseURL  string
	username string
	password string
	http     *http.Client
}

// NewHTMLStatus creates an HTML status page backend.
func NewHTMLStatus(cfg Config) *HTMLStatus {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = config.DefaultHTTPTimeout
	}
	return &HTMLStatus{
		name:     cfg.Name,
		baseURL:  cfg.URL,
		username: cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Timeout: timeout},
	}
}

// Fetch downloads the connection status page.
func (c *HTMLStatus) Fetch(ctx context.Context) ([]byte, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.Fetchf("bad modem url %q: %v", c.baseURL, err)
	}
	u.Path = path.Join(u.Path, htmlStatusPage)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Fetchf("build request: %v", err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Fetchf("get %s: %v", htmlStatusPage, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Fetchf("get %s: http status %d", htmlStatusPage, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Fetchf("read %s: %v", htmlStatusPage, err)
	}
	htmlLog.Debug("status page fetched", "bytes", len(raw))
	return raw, nil
}

// Parse extracts the channel tables from the status page. Row layout
// follows the TC4400 firmware: the second table is downstream, the
// third upstream, each with two header rows.
func (c *HTMLStatus) Parse(raw []byte) (*telemetry.Reading, error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Parsef("status page: %v", err)
	}

	var tables [][][]string
	walkTables(doc, func(n *html.Node) {
		tables = append(tables, tableCells(n))
	})
	if len(tables) < 3 {
		return nil, errors.Parsef("status page: expected 3 tables, found %d", len(tables))
	}

	downstream, err := parseHTMLDownstream(tables[1])
	if err != nil {
		return nil, err
	}
	upstream, err := parseHTMLUpstream(tables[2])
	if err != nil {
		return nil, err
	}

	reading := &telemetry.Reading{
		ModemName:  c.name,
		Downstream: downstream,
		Upstream:   upstream,
		Timestamp:  time.Now().UTC(),
	}
	reading.Normalize()
	return reading, nil
}

// walkTables calls fn for every <table> below n without descending into
// nested tables.
func walkTables(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode && n.DataAtom == atom.Table {
		fn(n)
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walkTables(child, fn)
	}
}

// tableCells flattens a table node into rows of trimmed cell text.
func tableCells(table *html.Node) [][]string {
	rows := [][]string{}
	var walkRows func(*html.Node)
	walkRows = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Tr {
			row := []string{}
			for cell := n.FirstChild; cell != nil; cell = cell.NextSibling {
				if cell.Type == html.ElementNode && (cell.DataAtom == atom.Td || cell.DataAtom == atom.Th) {
					row = append(row, strings.TrimSpace(nodeText(cell)))
				}
			}
			rows = append(rows, row)
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walkRows(child)
		}
	}
	walkRows(table)
	return rows
}

// nodeText concatenates all text below a node, crossing inline markup
// like <b> or <font> inside a cell.
func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		sb.WriteString(nodeText(child))
	}
	return sb.String()
}

func parseHTMLDownstream(rows [][]string) ([]telemetry.DownstreamChannel, error) {
	channels := []telemetry.DownstreamChannel{}
	for _, row := range rows {
		if len(row) != htmlDownstreamColumns {
			continue // header or decoration row
		}
		id, err := strconv.ParseUint(row[1], 10, 8)
		if err != nil {
			continue // second header row has text here
		}

		freq, err := parseHTMLHertz(row[5])
		if err != nil {
			return nil, err
		}
		snr, err := parseHTMLUnit(row[7], "dB")
		if err != nil {
			return nil, err
		}
		power, err := parseHTMLUnit(row[8], "dBmV")
		if err != nil {
			return nil, err
		}
		corrected, err := parseIntField("corrected codewords", row[11])
		if err != nil {
			return nil, err
		}
		uncorrected, err := parseIntField("uncorrectable codewords", row[12])
		if err != nil {
			return nil, err
		}

		channels = append(channels, telemetry.DownstreamChannel{
			ChannelID:         uint8(id),
			FrequencyHz:       freq,
			Modulation:        row[9],
			PowerDBmV:         power,
			SNRdB:             snr,
			CorrectedErrors:   corrected,
			UncorrectedErrors: uncorrected,
		})
	}
	return channels, nil
}

func parseHTMLUpstream(rows [][]string) ([]telemetry.UpstreamChannel, error) {
	channels := []telemetry.UpstreamChannel{}
	for _, row := range rows {
		if len(row) != htmlUpstreamColumns {
			continue
		}
		id, err := strconv.ParseUint(row[1], 10, 8)
		if err != nil {
			continue
		}

		freq, err := parseHTMLHertz(row[5])
		if err != nil {
			return nil, err
		}
		width, err := parseHTMLHertz(row[6])
		if err != nil {
			return nil, err
		}
		power, err := parseHTMLUnit(row[7], "dBmV")
		if err != nil {
			return nil, err
		}

		channels = append(channels, telemetry.UpstreamChannel{
			ChannelID:   uint8(id),
			FrequencyHz: freq,
			Modulation:  row[8],
			PowerDBmV:   power,
			WidthHz:     width,
		})
	}
	return channels, nil
}

// parseHTMLHertz parses a "<value> <unit>" frequency cell into Hz.
func parseHTMLHertz(cell string) (float64, error) {
	value, unit, ok := strings.Cut(cell, " ")
	if !ok {
		return 0, errors.Parsef("frequency cell %q missing unit", cell)
	}
	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.Parsef("frequency cell %q: %v", cell, err)
	}
	switch unit {
	case "Hz":
		return n, nil
	case "kHz":
		return n * 1e3, nil
	case "MHz":
		return n * 1e6, nil
	}
	return 0, errors.Parsef("frequency cell %q: unknown unit", cell)
}

// parseHTMLUnit parses a "<value> <unit>" cell and checks the unit.
func parseHTMLUnit(cell, unit string) (float64, error) {
	value, got, ok := strings.Cut(cell, " ")
	if !ok || got != unit {
		return 0, errors.Parsef("cell %q: expected %s value", cell, unit)
	}
	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.Parsef("cell %q: %v", cell, err)
	}
	return n, nil
}
