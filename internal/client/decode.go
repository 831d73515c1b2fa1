package client

import (
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// supportedEncodings lists the content codings decodeBody can undo.
var supportedEncodings = []string{"gzip", "deflate", "br", "zstd"}

// acceptEncoding reduces an inbound Accept-Encoding to the codings the relay
// can decode, keeping quality values. It returns "" when nothing usable is
// left, in which case the transport negotiates gzip on its own.
func acceptEncoding(values []string) string {
	var kept []string
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			item = strings.TrimSpace(item)
			coding, _, _ := strings.Cut(item, ";")
			coding = strings.ToLower(strings.TrimSpace(coding))
			if coding == "identity" || isSupported(coding) {
				kept = append(kept, item)
			}
		}
	}
	return strings.Join(kept, ", ")
}

func isSupported(coding string) bool {
	if coding == "x-gzip" {
		return true
	}
	for _, s := range supportedEncodings {
		if s == coding {
			return true
		}
	}
	return false
}

// decodeBody wraps body so that the relayed stream is identity encoded. Only
// the upstream content-type is relayed, so an encoded body would otherwise
// reach the client without the Content-Encoding needed to read it. Stacked
// codings are undone last-applied first; an unknown coding is an error.
func decodeBody(encoding string, body io.ReadCloser) (io.ReadCloser, error) {
	var codings []string
	for _, c := range strings.Split(encoding, ",") {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" && c != "identity" {
			codings = append(codings, c)
		}
	}
	if len(codings) == 0 {
		return body, nil
	}

	d := &decodedBody{Reader: body, src: body}
	for i := len(codings) - 1; i >= 0; i-- {
		if err := d.push(codings[i]); err != nil {
			if errors.Is(err, io.EOF) {
				// Empty body, e.g. HEAD or 204.
				d.Reader = strings.NewReader("")
				return d, nil
			}
			_ = d.closeDecoders()
			return nil, err
		}
	}
	return d, nil
}

// decodedBody streams decoded bytes and closes every decoder and the
// underlying upstream body.
type decodedBody struct {
	io.Reader
	src      io.Closer
	decoders []io.Closer
}

// push layers a decoder for coding on top of the current reader.
func (d *decodedBody) push(coding string) error {
	switch coding {
	case "br":
		d.Reader = brotli.NewReader(d.Reader)
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(d.Reader)
		if err != nil {
			return fmt.Errorf("gzip: %w", err)
		}
		d.Reader = zr
		d.decoders = append(d.decoders, zr)
	case "deflate":
		zr, err := zlib.NewReader(d.Reader)
		if err != nil {
			return fmt.Errorf("deflate: %w", err)
		}
		d.Reader = zr
		d.decoders = append(d.decoders, zr)
	case "zstd":
		zr, err := zstd.NewReader(d.Reader, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return fmt.Errorf("zstd: %w", err)
		}
		rc := zr.IOReadCloser()
		d.Reader = rc
		d.decoders = append(d.decoders, rc)
	default:
		return fmt.Errorf("unsupported content encoding %q", coding)
	}
	return nil
}

func (d *decodedBody) closeDecoders() error {
	var errs []error
	for i := len(d.decoders) - 1; i >= 0; i-- {
		errs = append(errs, d.decoders[i].Close())
	}
	return errors.Join(errs...)
}

func (d *decodedBody) Close() error {
	_ = d.closeDecoders()
	return d.src.Close()
}
