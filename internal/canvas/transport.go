package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"github.com/opencanvas/canvas-core/internal/infrastructure/config"
)

// maxResponseBytes bounds how much of a device reply is read. The
// device's JSON payloads are small; anything beyond this is garbage.
const maxResponseBytes = 4 << 20

// Response is the outcome of one exchange with the device.
//
// Object and Array hold the leniently decoded JSON body when the
// operation expects one; exactly one of them is non-nil in that case.
type Response struct {
	StatusCode int
	Body       []byte
	Object     map[string]any
	Array      []map[string]any
}

// Transport performs a single request/response exchange with the
// device. Implementations are strictly mechanical: no retries, no
// state tracking, one network call per Send. That discipline lives in
// Session, which makes this layer trivial to fake in tests.
type Transport interface {
	Send(ctx context.Context, op Operation) (*Response, error)
}

// HTTPTransport talks to the device's vendor HTTP API on the LAN.
//
// The device replies with wrong content-types (text/json,
// text/javascript) and occasionally wraps JSON in stray bytes, so
// bodies are decoded manually with a lenient fallback.
type HTTPTransport struct {
	cfg    config.DeviceConfig
	client *http.Client
}

// NewHTTPTransport creates a transport for the configured device.
func NewHTTPTransport(cfg config.DeviceConfig) *HTTPTransport {
	return &HTTPTransport{
		cfg: cfg,
		// Timeouts are per-call via context, not on the client.
		client: &http.Client{},
	}
}

// Send executes one operation against the device.
//
// Oversized image payloads are rejected before any bytes hit the wire.
// HTTP 409 and 503 map to ErrDeviceBusy; other non-success statuses
// are returned in the Response for the session to interpret.
func (t *HTTPTransport) Send(ctx context.Context, op Operation) (*Response, error) {
	if op.Upload != nil {
		if int64(len(op.Upload.Data)) > t.cfg.MaxImageBytes {
			return nil, fmt.Errorf("%w: %d bytes, limit %d",
				ErrPayloadTooLarge, len(op.Upload.Data), t.cfg.MaxImageBytes)
		}
	}

	timeout := t.cfg.GetRequestTimeout()
	if op.Kind == KindPushImage || op.Kind == KindUploadToGallery {
		timeout = t.cfg.GetUploadTimeout()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := t.buildRequest(ctx, op)
	if err != nil {
		return nil, err
	}

	httpResp, err := t.client.Do(req)
	if err != nil {
		return nil, mapSendError(err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, mapSendError(err)
	}

	if httpResp.StatusCode == http.StatusConflict || httpResp.StatusCode == http.StatusServiceUnavailable {
		return nil, fmt.Errorf("%w: status %d", ErrDeviceBusy, httpResp.StatusCode)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Body:       body,
	}

	if httpResp.StatusCode == http.StatusOK {
		switch {
		case op.Kind.expectsJSON():
			if err := resp.decodeLenient(); err != nil {
				return nil, err
			}
		case op.Kind.jsonOptional():
			// A 200 means the device acted on the request even when
			// the body is unusable.
			_ = resp.decodeLenient()
		}
	}

	return resp, nil
}

// buildRequest maps an operation onto the device's vendor endpoints.
func (t *HTTPTransport) buildRequest(ctx context.Context, op Operation) (*http.Request, error) {
	base := "http://" + t.cfg.Host

	switch op.Kind {
	case KindRefreshStatus:
		return http.NewRequestWithContext(ctx, http.MethodGet, base+"/status", nil)

	case KindRefreshInfo:
		return http.NewRequestWithContext(ctx, http.MethodGet, base+"/deviceInfo", nil)

	case KindNextImage:
		return http.NewRequestWithContext(ctx, http.MethodPost, base+"/showNext", nil)

	case KindSleep:
		return http.NewRequestWithContext(ctx, http.MethodPost, base+"/sleep", nil)

	case KindReboot:
		return http.NewRequestWithContext(ctx, http.MethodPost, base+"/reboot", nil)

	case KindClearScreen:
		return http.NewRequestWithContext(ctx, http.MethodPost, base+"/cleanScreen", nil)

	case KindWake:
		return http.NewRequestWithContext(ctx, http.MethodGet, base+"/whistle", nil)

	case KindUpdateSettings:
		return t.jsonRequest(ctx, base+"/settings", op.Settings)

	case KindShow:
		return t.jsonRequest(ctx, base+"/show", buildShowBody(op.Show))

	case KindPushImage, KindUploadToGallery:
		return t.uploadRequest(ctx, base, op)

	case KindListGalleries:
		return http.NewRequestWithContext(ctx, http.MethodGet, base+"/gallery/list", nil)

	case KindListGalleryImages:
		q := url.Values{}
		q.Set("gallery_name", op.Page.Gallery)
		q.Set("offset", strconv.Itoa(op.Page.Offset))
		q.Set("limit", strconv.Itoa(op.Page.Limit))
		return http.NewRequestWithContext(ctx, http.MethodGet, base+"/gallery?"+q.Encode(), nil)

	default:
		return nil, fmt.Errorf("canvas: unsupported operation kind %d", op.Kind)
	}
}

func (t *HTTPTransport) jsonRequest(ctx context.Context, u string, body any) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("canvas: encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// buildShowBody assembles the /show payload. Single-image and playlist
// modes address by full device path; slideshow mode sends the gallery
// and duration separately, which is what the firmware expects.
func buildShowBody(p *ShowParams) map[string]any {
	body := map[string]any{
		"play_type": p.PlayType,
	}

	switch p.PlayType {
	case 1:
		body["image"] = p.Filename
		body["gallery"] = p.Gallery
		body["duration"] = p.Duration
	default:
		body["image"] = fmt.Sprintf("/gallerys/%s/%s", p.Gallery, p.Filename)
	}

	if p.Dither != nil {
		body["dither"] = *p.Dither
	}

	return body
}

// uploadRequest builds the multipart image upload. The device takes
// the image bytes as a form field named "image" and the destination as
// query parameters.
func (t *HTTPTransport) uploadRequest(ctx context.Context, base string, op Operation) (*http.Request, error) {
	up := op.Upload

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="image"; filename="%s"`, up.Filename))
	header.Set("Content-Type", "image/jpeg")

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("canvas: build upload form: %w", err)
	}
	if _, err := part.Write(up.Data); err != nil {
		return nil, fmt.Errorf("canvas: build upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("canvas: build upload form: %w", err)
	}

	showNow := "0"
	if up.ShowNow || op.Kind == KindPushImage {
		showNow = "1"
	}

	q := url.Values{}
	q.Set("filename", up.Filename)
	q.Set("gallery", up.Gallery)
	q.Set("show_now", showNow)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/upload?"+q.Encode(), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}

// decodeLenient parses the response body as JSON, falling back to
// extracting the first {...} or [...] span when the device pads the
// payload with stray bytes.
func (r *Response) decodeLenient() error {
	value, err := decodeLenientJSON(r.Body)
	if err != nil {
		return err
	}

	switch v := value.(type) {
	case map[string]any:
		r.Object = v
	case []any:
		items := make([]map[string]any, 0, len(v))
		for _, entry := range v {
			if obj, ok := entry.(map[string]any); ok {
				items = append(items, obj)
			}
		}
		r.Array = items
	default:
		return fmt.Errorf("%w: unexpected JSON shape", ErrMalformedResponse)
	}

	return nil
}

func decodeLenientJSON(body []byte) (any, error) {
	var value any
	if err := json.Unmarshal(body, &value); err == nil {
		return value, nil
	}

	text := string(body)
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := bytes.IndexByte(body, pair[0][0])
		end := bytes.LastIndexByte(body, pair[1][0])
		if start >= 0 && end > start {
			if err := json.Unmarshal([]byte(text[start:end+1]), &value); err == nil {
				return value, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %.80q", ErrMalformedResponse, text)
}

// mapSendError classifies a low-level HTTP client failure into the
// transport error taxonomy.
func mapSendError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	// Everything else at this level is a failure to reach the device:
	// refused, no route, reset. The session treats them uniformly.
	return fmt.Errorf("%w: %w", ErrConnectionRefused, err)
}
