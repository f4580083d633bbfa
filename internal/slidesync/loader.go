package slidesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
)

// DefaultItemDuration is applied to items that declare no duration or end time.
const DefaultItemDuration int64 = 5000

type rawItem struct {
	Sequence     *float64    `json:"sequence"`
	Title        string      `json:"title"`
	Content      string      `json:"content"`
	StartTime    *float64    `json:"startTime"`
	EndTime      *float64    `json:"endTime"`
	Duration     *float64    `json:"duration"`
	Keywords     []string    `json:"keywords"`
	SemanticTags []string    `json:"semanticTags"`
	Transition   *Transition `json:"transition"`
	ImageURL     string      `json:"imageUrl"`
	VideoURL     string      `json:"videoUrl"`
	Link         string      `json:"link"`
	Notes        string      `json:"notes"`
}

type rawDeck struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Author      string    `json:"author"`
	Language    string    `json:"language"`
	Format      string    `json:"format"`
	Items       []rawItem `json:"items"`
}

// LoadFromURL fetches a deck with an HTTP GET and loads it.
func (e *Engine) LoadFromURL(ctx context.Context, url string) (*Deck, error) {
	token, err := e.beginLoad(url)
	if err != nil {
		return nil, err
	}
	text, err := e.fetch(ctx, url)
	return e.finishLoad(token, url, text, err)
}

// LoadFromFile reads a deck from a local file.
func (e *Engine) LoadFromFile(path string) (*Deck, error) {
	token, err := e.beginLoad(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return e.finishLoad(token, path, nil, err)
	}
	defer f.Close()
	b, err := e.readLimited(f)
	return e.finishLoad(token, path, b, err)
}

// LoadFromReader reads a deck from an arbitrary byte source such as an
// uploaded blob.
func (e *Engine) LoadFromReader(r io.Reader) (*Deck, error) {
	const source = "reader"
	token, err := e.beginLoad(source)
	if err != nil {
		return nil, err
	}
	b, err := e.readLimited(r)
	return e.finishLoad(token, source, b, err)
}

// LoadFromString loads a deck from a raw JSON payload.
func (e *Engine) LoadFromString(payload string) (*Deck, error) {
	const source = "string"
	token, err := e.beginLoad(source)
	if err != nil {
		return nil, err
	}
	var sizeErr error
	if int64(len(payload)) > e.cfg.MaxDeckBytes {
		sizeErr = e.tooLarge()
	}
	return e.finishLoad(token, source, []byte(payload), sizeErr)
}

func (e *Engine) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > e.cfg.MaxDeckBytes {
		return nil, e.tooLarge()
	}
	return e.readLimited(resp.Body)
}

// readLimited reads r to the end, failing with ErrDeckTooLarge once more than
// MaxDeckBytes arrive.
func (e *Engine) readLimited(r io.Reader) ([]byte, error) {
	limit := e.cfg.MaxDeckBytes
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, e.tooLarge()
	}
	return b, nil
}

func (e *Engine) tooLarge() error {
	return fmt.Errorf("%w: limit is %d bytes", ErrDeckTooLarge, e.cfg.MaxDeckBytes)
}

// ParseDeck decodes, validates and resolves the timing of a JSON deck.
// It returns *LoadError for malformed JSON and *ValidationError for a
// well-formed document that is not a valid deck.
func ParseDeck(source string, data []byte) (*Deck, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}
	if err := checkSchema(doc); err != nil {
		return nil, err
	}

	var raw rawDeck
	if err := json.Unmarshal(data, &raw); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			return nil, &ValidationError{Index: -1, Field: te.Field, Reason: "must be " + te.Type.String()}
		}
		return nil, &LoadError{Source: source, Err: err}
	}
	if err := validateDeck(&raw); err != nil {
		return nil, err
	}
	return resolveDeck(&raw)
}

// resolveDeck assigns a contiguous default timeline in one forward pass.
// A missing start takes the running cursor, a missing end is start+duration,
// and the cursor moves to each resolved end.
func resolveDeck(raw *rawDeck) (*Deck, error) {
	deck := &Deck{
		Title:       raw.Title,
		Description: raw.Description,
		Author:      raw.Author,
		Language:    raw.Language,
		Format:      raw.Format,
		Items:       make([]*SlideItem, 0, len(raw.Items)),
	}

	var cursor, total int64
	for i, it := range raw.Items {
		start := cursor
		if it.StartTime != nil {
			start = toMillis(*it.StartTime)
		}
		var end int64
		switch {
		case it.EndTime != nil:
			end = toMillis(*it.EndTime)
		case it.Duration != nil:
			end = start + toMillis(*it.Duration)
		default:
			end = start + DefaultItemDuration
		}
		if end < start {
			return nil, &ValidationError{Index: i, Field: "endTime", Reason: "must not be before startTime"}
		}

		seq := i + 1
		if it.Sequence != nil {
			seq = int(*it.Sequence)
		}

		deck.Items = append(deck.Items, &SlideItem{
			Sequence:     seq,
			Title:        it.Title,
			Content:      it.Content,
			StartTime:    start,
			EndTime:      end,
			Duration:     end - start,
			Keywords:     it.Keywords,
			SemanticTags: it.SemanticTags,
			Transition:   it.Transition,
			ImageURL:     it.ImageURL,
			VideoURL:     it.VideoURL,
			Link:         it.Link,
			Notes:        it.Notes,
		})

		cursor = end
		if end > total {
			total = end
		}
	}
	deck.TotalDuration = total
	return deck, nil
}

func toMillis(v float64) int64 {
	return int64(math.Round(v))
}
