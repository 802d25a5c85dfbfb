package gatewayproxy

import (
	"bytes"
	"encoding/json"
	"io"
)

// maxExtractionBody bounds how much of a response body is buffered for
// OBSERVE's token/cost/model extraction. A streamed SSE body or a
// response larger than this is still copied to the client in full;
// it's simply not decoded for extraction, which is best-effort over
// whatever the provider returns as JSON.
const maxExtractionBody = 2 << 20 // 2MiB

// streamingCopyAndDecode copies body to w unmodified while capturing
// up to maxExtractionBody bytes for a best-effort JSON decode,
// returning the decoded map when the captured bytes parse as a JSON
// object.
func streamingCopyAndDecode(w io.Writer, body io.Reader) (map[string]any, error) {
	var buf bytes.Buffer
	capped := io.LimitReader(body, maxExtractionBody)
	tee := io.TeeReader(capped, &buf)

	if _, err := io.Copy(w, tee); err != nil {
		return nil, err
	}

	// Anything past the cap still needs to reach the client.
	if _, err := io.Copy(w, body); err != nil {
		return nil, err
	}

	if buf.Len() == 0 {
		return nil, nil
	}

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		return nil, nil
	}
	return out, nil
}
