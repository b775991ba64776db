package services

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCodec counts and windows transcript text in model tokens so chunking
// decisions match what the inference endpoint actually bills.
type TokenCodec interface {
	Count(text string) int
	Encode(text string) []int
	Decode(tokens []int) string
}

type tiktokenCodec struct {
	enc *tiktoken.Tiktoken
}

func NewTiktokenCodec() (TokenCodec, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load cl100k_base encoding: %w", err)
	}
	return &tiktokenCodec{enc: enc}, nil
}

func (c *tiktokenCodec) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

func (c *tiktokenCodec) Encode(text string) []int {
	return c.enc.Encode(text, nil, nil)
}

func (c *tiktokenCodec) Decode(tokens []int) string {
	return c.enc.Decode(tokens)
}
