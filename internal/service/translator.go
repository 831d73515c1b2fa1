package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"slices"
	"strings"

	"cors-relay-go/internal/model"
)

// droppedRequestHeaders are recomputed for the outbound request or are
// specific to the inbound hop, so they are never copied.
var droppedRequestHeaders = map[string]struct{}{
	"Content-Length": {},
	"Content-Type":   {},
	"Host":           {},
}

// bodyMethods are the only methods whose inbound body is replayed.
var bodyMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

const textContentType = "text/plain;charset=UTF-8"

// Translate builds the outbound request for in against targetURL. The method
// is copied verbatim, headers are filtered and the body, if any, is
// re-encoded according to the inbound content-type.
func Translate(in *model.InboundRequest, targetURL string) (*model.OutboundRequest, error) {
	out := &model.OutboundRequest{
		URL:    targetURL,
		Method: in.Method,
		Header: filterRequestHeaders(in.Header),
	}

	if !bodyMethods[in.Method] {
		return out, nil
	}

	src := in.Body
	if src == nil {
		src = http.NoBody
	}
	raw, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}

	body, contentType, err := encodeBody(in.Header.Get("Content-Type"), raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBodyEncoding, err)
	}
	out.Body = body
	if contentType != "" {
		out.Header.Set("Content-Type", contentType)
	}
	return out, nil
}

func filterRequestHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		if _, drop := droppedRequestHeaders[http.CanonicalHeaderKey(key)]; drop {
			continue
		}
		dst[key] = slices.Clone(vals)
	}
	return dst
}

// encodeBody returns the outbound body and its content-type. The first
// matching rule wins: JSON is parsed and re-serialized, text and HTML pass
// through as text, forms are re-encoded field by field and anything else is
// an opaque blob.
func encodeBody(contentType string, raw []byte) ([]byte, string, error) {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "application/json"):
		body, err := encodeJSON(raw)
		if err != nil {
			return nil, "", fmt.Errorf("json: %w", err)
		}
		return body, "application/json", nil
	case strings.Contains(ct, "application/text"), strings.Contains(ct, "text/html"):
		return raw, textContentType, nil
	case strings.Contains(ct, "form"):
		return encodeForm(contentType, raw)
	default:
		return raw, blobContentType(contentType), nil
	}
}

// encodeJSON round-trips raw through a structural parse. Numbers keep their
// literal form and HTML characters are not escaped.
func encodeJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level value")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func encodeForm(contentType string, raw []byte) ([]byte, string, error) {
	if !strings.Contains(strings.ToLower(contentType), "multipart/") {
		body, err := encodeURLForm(raw)
		if err != nil {
			return nil, "", fmt.Errorf("form: %w", err)
		}
		return body, "application/x-www-form-urlencoded;charset=UTF-8", nil
	}

	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, "", fmt.Errorf("multipart: %w", err)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, "", errors.New("multipart: missing boundary")
	}
	return encodeMultipart(boundary, raw)
}

// encodeURLForm validates and re-escapes a url-encoded form, keeping field
// order and repeated fields.
func encodeURLForm(raw []byte) ([]byte, error) {
	var pairs []string
	for _, field := range strings.Split(string(raw), "&") {
		if field == "" {
			continue
		}
		key, value, _ := strings.Cut(field, "=")
		k, err := url.QueryUnescape(key)
		if err != nil {
			return nil, err
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, url.QueryEscape(k)+"="+url.QueryEscape(v))
	}
	return []byte(strings.Join(pairs, "&")), nil
}

// encodeMultipart rewrites every part, file parts included, under a fresh
// boundary.
func encodeMultipart(boundary string, raw []byte) ([]byte, string, error) {
	mr := multipart.NewReader(bytes.NewReader(raw), boundary)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("multipart: %w", err)
		}

		hdr := make(textproto.MIMEHeader, len(part.Header))
		for k, v := range part.Header {
			hdr[k] = slices.Clone(v)
		}
		w, err := mw.CreatePart(hdr)
		if err != nil {
			return nil, "", fmt.Errorf("multipart: %w", err)
		}
		if _, err := io.Copy(w, part); err != nil {
			return nil, "", fmt.Errorf("multipart: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("multipart: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// blobContentType re-formats the inbound media type for an opaque body, or
// returns "" when it is absent or unparsable.
func blobContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mime.FormatMediaType(mediaType, params)
}
