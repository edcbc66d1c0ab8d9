// Package savecodec turns packed save buffers into URL fragment tokens and back.
package savecodec

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrDecode is matched by every *DecodeError.
var ErrDecode = errors.New("savecodec: not a save token")

// DecodeError reports a token that is not valid base64 in either accepted alphabet.
type DecodeError struct {
	Token string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("savecodec: decode %d-char token: %v", len(e.Token), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Codec is a padded base64 codec. Encode uses one alphabet; Decode accepts
// both the URL-safe and the standard alphabet.
type Codec struct {
	enc *base64.Encoding
}

var (
	// URL emits '-' and '_' so tokens never need escaping in a fragment.
	URL = Codec{enc: base64.URLEncoding.Strict()}
	// Std emits the standard alphabet, matching tokens written by older pages.
	Std = Codec{enc: base64.StdEncoding.Strict()}
)

var decoders = []*base64.Encoding{
	base64.URLEncoding.Strict(),
	base64.StdEncoding.Strict(),
}

// ForAlphabet returns the codec named by config ("url" or "std").
func ForAlphabet(name string) (Codec, error) {
	switch name {
	case "", "url":
		return URL, nil
	case "std":
		return Std, nil
	default:
		return Codec{}, fmt.Errorf("unknown token alphabet %q", name)
	}
}

func (c Codec) encoding() *base64.Encoding {
	if c.enc == nil {
		return URL.enc
	}
	return c.enc
}

// Encode returns the token for b. An empty buffer yields the empty token.
func (c Codec) Encode(b []byte) string {
	return c.encoding().EncodeToString(b)
}

// Decode reverses Encode. The empty token decodes to an empty buffer.
func (c Codec) Decode(token string) ([]byte, error) {
	if token == "" {
		return []byte{}, nil
	}
	var firstErr error
	for _, enc := range decoders {
		b, err := enc.DecodeString(token)
		if err == nil {
			return b, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, &DecodeError{Token: token, Err: firstErr}
}
