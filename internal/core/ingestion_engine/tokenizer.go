package ingestion_engine

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// ApproxEncoding selects ApproxCounter instead of a BPE vocabulary.
const ApproxEncoding = "approx"

// TokenCounter measures text in model tokens.
type TokenCounter interface {
	CountTokens(text string) int
}

func init() {
	// BPE ranks ship inside the binary; nothing is fetched at runtime.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// TiktokenCounter counts tokens with a tiktoken BPE encoding such as cl100k_base.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load token encoding %q: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// ApproxCounter is a cheap token estimator (~4 chars ≈ 1 token).
type ApproxCounter struct{}

func (ApproxCounter) CountTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}

// NewTokenCounter resolves an encoding name from config.
func NewTokenCounter(encoding string) (TokenCounter, error) {
	if encoding == ApproxEncoding {
		return ApproxCounter{}, nil
	}
	return NewTiktokenCounter(encoding)
}
