package catalog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/voyagen/iptvcatalog/internal/models"
)

const (
	m3uHeader   = "#EXTM3U"
	m3uInfo     = "#EXTINF:"
	unknownName = "Unknown"
	maxM3ULine  = 1024 * 1024
)

var (
	reTvgID = regexp.MustCompile(`tvg-id="([^"]*)"`)
	reLogo  = regexp.MustCompile(`tvg-logo="([^"]*)"`)
	reGroup = regexp.MustCompile(`group-title="([^"]*)"`)
)

// ParseM3U reads an M3U playlist. The first non-empty line must be the
// #EXTM3U header, otherwise ErrInvalidFormat is returned. Each #EXTINF line
// is paired with the next non-comment line as its URL; URLs without a
// preceding #EXTINF are dropped. Stream ids are assigned 1..n in file order
// and are only stable within one parse.
func ParseM3U(r io.Reader) ([]models.Channel, error) {
	scanner := bufio.NewScanner(r)
	// Some providers emit very long EXTINF lines.
	scanner.Buffer(make([]byte, 0, 64*1024), maxM3ULine)

	var (
		channels   []models.Channel
		info       string
		seenHeader bool
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !seenHeader {
			line = strings.TrimPrefix(line, "\ufeff")
			if line == "" {
				continue
			}
			if !strings.HasPrefix(line, m3uHeader) {
				return nil, ErrInvalidFormat
			}
			seenHeader = true
			continue
		}

		switch {
		case line == "":
		case strings.HasPrefix(line, m3uInfo):
			info = line
		case strings.HasPrefix(line, "#"):
		case info == "":
			// dangling URL
		default:
			channels = append(channels, channelFromInfo(info, line, len(channels)+1))
			info = ""
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("%w: line exceeds %d bytes", ErrInvalidFormat, maxM3ULine)
		}
		return nil, err
	}
	if !seenHeader {
		return nil, ErrInvalidFormat
	}
	return channels, nil
}

// HasM3UHeader reports whether the first non-empty line of body is the
// #EXTM3U header.
func HasM3UHeader(body []byte) bool {
	text := strings.TrimPrefix(string(body), "\ufeff")
	for line := range strings.Lines(text) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return strings.HasPrefix(line, m3uHeader)
	}
	return false
}

func channelFromInfo(info, streamURL string, seq int) models.Channel {
	name := unknownName
	if i := strings.LastIndex(info, ","); i >= 0 {
		if n := strings.TrimSpace(info[i+1:]); n != "" {
			name = n
		}
	}
	category := models.UncategorizedName
	if g := matchAttr(reGroup, info); g != nil {
		category = *g
	}
	return models.Channel{
		StreamID:     strconv.Itoa(seq),
		Name:         name,
		CategoryName: category,
		StreamType:   string(kindFromURL(streamURL)),
		StreamURL:    streamURL,
		EPGChannelID: matchAttr(reTvgID, info),
		StreamIcon:   matchAttr(reLogo, info),
	}
}

func matchAttr(re *regexp.Regexp, s string) *string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return nil
	}
	v := strings.TrimSpace(m[1])
	if v == "" {
		return nil
	}
	return &v
}

// kindFromURL guesses the content kind from provider URL conventions.
func kindFromURL(u string) models.ContentKind {
	lower := strings.ToLower(u)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	switch {
	case strings.Contains(lower, "/series/"):
		return models.KindSeries
	case strings.Contains(lower, "/movie/"),
		strings.HasSuffix(lower, ".mp4"),
		strings.HasSuffix(lower, ".mkv"),
		strings.HasSuffix(lower, ".avi"):
		return models.KindMovie
	}
	return models.KindLive
}
