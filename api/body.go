package api

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"

	defaultBodyLimit int64 = 100 * 1024
)

var validate = validator.New()

// requestBody is the parsed request body stored in the request context
type requestBody struct {
	raw  []byte
	json interface{}
	form url.Values
}

// values returns the body as a flat map. Form keys with one value map to a
// string, repeated keys to a []string.
func (b *requestBody) values() map[string]interface{} {
	if b == nil {
		return map[string]interface{}{}
	}
	if b.form != nil {
		out := make(map[string]interface{}, len(b.form))
		for k, v := range b.form {
			if len(v) == 1 {
				out[k] = v[0]
			} else {
				out[k] = v
			}
		}
		return out
	}
	if m, ok := b.json.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

// Body returns the parsed request body, or an empty map if none was parsed.
// JSON arrays are available through DecodeBody only.
func Body(r *http.Request) map[string]interface{} {
	b, _ := r.Context().Value(ContextKeyBody).(*requestBody)
	return b.values()
}

// DecodeBody decodes the parsed body into v and validates its `validate` tags.
// Failures are HTTPErrors with status 400.
func DecodeBody(r *http.Request, v interface{}) error {
	b, _ := r.Context().Value(ContextKeyBody).(*requestBody)

	var data []byte
	switch {
	case b == nil:
		data = []byte("{}")
	case b.form != nil:
		encoded, err := json.Marshal(b.values())
		if err != nil {
			return WrapHTTPError(http.StatusBadRequest, "Invalid form body", err)
		}
		data = encoded
	default:
		data = b.raw
		if len(bytes.TrimSpace(data)) == 0 {
			data = []byte("{}")
		}
	}

	if err := json.Unmarshal(data, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return WrapHTTPError(http.StatusBadRequest,
				fmt.Sprintf("Invalid type for field '%s': expected %s", typeErr.Field, typeErr.Type), err)
		}
		return WrapHTTPError(http.StatusBadRequest, "Invalid request body", err)
	}

	if err := validate.Struct(v); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			// v is not a struct; nothing to validate
			return nil
		}
		return WrapHTTPError(http.StatusBadRequest, validationMessage(err), err)
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation failed"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag()))
	}
	return "Validation failed: " + strings.Join(fields, ", ")
}

// jsonBodyMiddleware parses application/json bodies. Only objects and arrays
// are accepted at the top level.
func (a *App) jsonBodyMiddleware(next http.Handler) http.Handler {
	limit := a.config.Body.JSONLimit
	if limit <= 0 {
		limit = defaultBodyLimit
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !needsParsing(r, contentTypeJSON) {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := readBody(r, limit)
		if err != nil {
			a.handleError(w, r, err)
			return
		}

		body := &requestBody{raw: raw, json: map[string]interface{}{}}
		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 {
			if trimmed[0] != '{' && trimmed[0] != '[' {
				a.handleError(w, r, NewHTTPError(http.StatusBadRequest, "JSON body must be an object or an array"))
				return
			}
			if err := json.Unmarshal(trimmed, &body.json); err != nil {
				a.handleError(w, r, WrapHTTPError(http.StatusBadRequest, "Invalid JSON body", err))
				return
			}
		}

		next.ServeHTTP(w, withBody(r, body))
	})
}

// urlencodedBodyMiddleware parses flat application/x-www-form-urlencoded
// bodies; bracketed keys are kept as literal names.
func (a *App) urlencodedBodyMiddleware(next http.Handler) http.Handler {
	limit := a.config.Body.URLEncodedLimit
	if limit <= 0 {
		limit = defaultBodyLimit
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !needsParsing(r, contentTypeForm) {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := readBody(r, limit)
		if err != nil {
			a.handleError(w, r, err)
			return
		}

		form, err := url.ParseQuery(string(raw))
		if err != nil {
			a.handleError(w, r, WrapHTTPError(http.StatusBadRequest, "Invalid form body", err))
			return
		}

		r = withBody(r, &requestBody{raw: raw, form: form})
		r.PostForm = form
		next.ServeHTTP(w, r)
	})
}

// needsParsing reports whether r carries an unparsed body of the given media type
func needsParsing(r *http.Request, mediaType string) bool {
	if _, parsed := r.Context().Value(ContextKeyBody).(*requestBody); parsed {
		return false
	}
	if r.Body == nil || r.Body == http.NoBody {
		return false
	}
	if r.ContentLength == 0 && len(r.TransferEncoding) == 0 {
		return false
	}
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	if mediaType == contentTypeJSON && strings.HasPrefix(mt, "application/") && strings.HasSuffix(mt, "+json") {
		return true
	}
	return mt == mediaType
}

// readBody reads at most limit decoded bytes, honoring charset and Content-Encoding
func readBody(r *http.Request, limit int64) ([]byte, error) {
	if _, params, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil {
		if cs, ok := params["charset"]; ok && !strings.EqualFold(cs, "utf-8") {
			return nil, NewHTTPError(http.StatusUnsupportedMediaType, fmt.Sprintf("unsupported charset %q", strings.ToUpper(cs)))
		}
	}

	reader, err := contentReader(r)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, WrapHTTPError(http.StatusBadRequest, "Failed to read request body", err)
	}
	if int64(len(raw)) > limit {
		return nil, NewHTTPError(http.StatusRequestEntityTooLarge, "request entity too large")
	}
	return raw, nil
}

// contentReader returns the request body inflated according to Content-Encoding
func contentReader(r *http.Request) (io.ReadCloser, error) {
	encoding := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding")))
	switch encoding {
	case "", "identity":
		return r.Body, nil
	case "gzip":
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, WrapHTTPError(http.StatusBadRequest, "Invalid gzip body", err)
		}
		return zr, nil
	case "deflate":
		zr, err := zlib.NewReader(r.Body)
		if err != nil {
			return nil, WrapHTTPError(http.StatusBadRequest, "Invalid deflate body", err)
		}
		return zr, nil
	default:
		return nil, NewHTTPError(http.StatusUnsupportedMediaType, fmt.Sprintf("unsupported content encoding %q", encoding))
	}
}

// withBody stores the parsed body and gives downstream handlers the decoded bytes
func withBody(r *http.Request, body *requestBody) *http.Request {
	r = r.WithContext(context.WithValue(r.Context(), ContextKeyBody, body))
	r.Header = r.Header.Clone()
	r.Body = io.NopCloser(bytes.NewReader(body.raw))
	r.ContentLength = int64(len(body.raw))
	r.Header.Del("Content-Encoding")
	return r
}
