package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ghiblify-backend/internal/platform/apierr"
	"github.com/yungbote/ghiblify-backend/internal/platform/ctxutil"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
	"github.com/yungbote/ghiblify-backend/internal/services"
	"github.com/yungbote/ghiblify-backend/internal/store"
)

const walletA = "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd"

// asWallet stands in for middleware.RequireWallet.
func asWallet(addr string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(ctxutil.WithWallet(c.Request.Context(), &ctxutil.WalletData{Address: addr, Source: "jwt"}))
		c.Next()
	}
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	env, _ := decode(t, rec)["error"].(map[string]any)
	code, _ := env["code"].(string)
	return code
}

func memoryCredits(t *testing.T) (services.CreditsService, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore(logger.Nop())
	return services.NewCreditsService(logger.Nop(), st, nil), st
}

func TestCreditsUseAndCheck(t *testing.T) {
	credits, st := memoryCredits(t)
	if _, err := st.Add(context.Background(), walletA, 3); err != nil {
		t.Fatalf("seed: %v", err)
	}
	h := NewCreditsHandler(credits)
	r := newEngine()
	r.GET("/check", asWallet(walletA), h.Check)
	r.POST("/use", asWallet(walletA), h.Use)

	rec := doJSON(r, http.MethodPost, "/use?amount=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("use status: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := decode(t, rec)["credits"]; got != float64(1) {
		t.Fatalf("credits after use: want=1 got=%v", got)
	}

	rec = doJSON(r, http.MethodPost, "/use", map[string]any{"amount": 5})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("overspend status: want=402 got=%d", rec.Code)
	}
	if code := errorCode(t, rec); code != "insufficient_credits" {
		t.Fatalf("overspend code: want=insufficient_credits got=%q", code)
	}

	rec = doJSON(r, http.MethodGet, "/check", nil)
	if got := decode(t, rec)["credits"]; got != float64(1) {
		t.Fatalf("check: want=1 got=%v", got)
	}
}

func TestCreditsAddFromPath(t *testing.T) {
	credits, _ := memoryCredits(t)
	h := NewCreditsHandler(credits)
	r := newEngine()
	r.POST("/add/:credits", h.Add)

	req := httptest.NewRequest(http.MethodPost, "/add/12", nil)
	req.Header.Set("X-Wallet-Address", walletA)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["credits"] != float64(12) || body["added"] != float64(12) {
		t.Fatalf("body: want credits=12 added=12 got=%v", body)
	}

	if rec := doJSON(r, http.MethodPost, "/add/lots?address="+walletA, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad amount: want=400 got=%d", rec.Code)
	}
}

func TestWalletConnectAndStatus(t *testing.T) {
	credits, st := memoryCredits(t)
	h := NewWalletHandler(credits, st)
	r := newEngine()
	r.POST("/connect", h.Connect)
	r.GET("/status/:address", h.Status)
	r.GET("/health", h.Health)

	rec := doJSON(r, http.MethodPost, "/connect", map[string]any{"address": "0x" + strings.ToUpper(walletA[2:])})
	if rec.Code != http.StatusOK {
		t.Fatalf("connect: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["provider"] != nil || body["status"] != "connected" || body["credits"] != float64(0) {
		t.Fatalf("connect body: got=%v", body)
	}

	if got := decode(t, doJSON(r, http.MethodGet, "/status/"+walletA, nil))["status"]; got != "empty" {
		t.Fatalf("status: want=empty got=%v", got)
	}
	if rec := doJSON(r, http.MethodGet, "/status/0x12", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad address: want=400 got=%d", rec.Code)
	}
	if got := decode(t, doJSON(r, http.MethodGet, "/health", nil))["redis"]; got != "memory_fallback" {
		t.Fatalf("health backend: want=memory_fallback got=%v", got)
	}
}

type fakeTransform struct {
	services.TransformService
	got services.TransformRequest
}

func (f *fakeTransform) Transform(_ context.Context, req services.TransformRequest) (*services.TransformResult, error) {
	f.got = req
	if len(req.Image) == 0 {
		return nil, apierr.BadRequest("invalid_image", "empty image")
	}
	return &services.TransformResult{Message: "ok", Credits: 4}, nil
}

func multipartBody(t *testing.T, fields map[string]string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	if file != nil {
		fw, err := mw.CreateFormFile("file", "cat.png")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		_, _ = fw.Write(file)
	}
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestTransformUpload(t *testing.T) {
	fake := &fakeTransform{}
	h := NewTransformHandler(fake)
	r := newEngine()
	r.POST("/replicate", asWallet(walletA), h.Replicate)

	body, ct := multipartBody(t, map[string]string{"creation_id": "c-1"}, []byte("png-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/replicate", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	if fake.got.Provider != services.ProviderReplicate || fake.got.Address != walletA || fake.got.CreationID != "c-1" {
		t.Fatalf("request: got=%+v", fake.got)
	}
	if string(fake.got.Image) != "png-bytes" {
		t.Fatalf("image: want=png-bytes got=%q", fake.got.Image)
	}

	body, ct = multipartBody(t, nil, nil)
	req = httptest.NewRequest(http.MethodPost, "/replicate", body)
	req.Header.Set("Content-Type", ct)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "missing_file" {
		t.Fatalf("missing file: want=400 missing_file got=%d %s", rec.Code, rec.Body.String())
	}
}

func TestCreationsNotFound(t *testing.T) {
	h := NewCreationsHandler(services.NewCreationsService(logger.Nop(), store.NewMemoryStore(logger.Nop())))
	r := newEngine()
	r.GET("/creations", h.List)
	r.GET("/creations/:id", h.Get)

	rec := doJSON(r, http.MethodGet, "/creations/nope?address="+walletA, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get: want=404 got=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(r, http.MethodGet, "/creations?limit=x&address="+walletA, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: want=400 got=%d", rec.Code)
	}
	if rec := doJSON(r, http.MethodGet, "/creations?address="+walletA, nil); rec.Code != http.StatusOK {
		t.Fatalf("list: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
}

type fakePhotos struct {
	services.PhotosService
}

func (fakePhotos) Open(_ context.Context, category, name string) (io.ReadCloser, string, error) {
	if (category != "result" && category != "photo") || strings.TrimLeft(name, "/") != walletA+"/x.png" {
		return nil, "", apierr.NotFound("photo_not_found", "Photo not found")
	}
	return io.NopCloser(strings.NewReader("PNG")), "image/png", nil
}

func TestPhotosServe(t *testing.T) {
	h := NewPhotosHandler(fakePhotos{})
	r := newEngine()
	r.GET("/photos/:category/*name", h.Serve)
	r.GET("/get_photo/*name", h.Get)

	rec := doJSON(r, http.MethodGet, "/photos/result/"+walletA+"/x.png", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "PNG" {
		t.Fatalf("serve: want=200 PNG got=%d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type: want=image/png got=%q", ct)
	}
	if rec := doJSON(r, http.MethodGet, "/get_photo/"+walletA+"/x.png", nil); rec.Code != http.StatusOK {
		t.Fatalf("legacy get: want=200 got=%d", rec.Code)
	}
	if rec := doJSON(r, http.MethodGet, "/get_photo/missing.png", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing: want=404 got=%d", rec.Code)
	}
}

func TestRespondAPIErrorHidesInternalErrors(t *testing.T) {
	h := NewWeb3Handler(failingAuth{}, store.NewMemoryStore(logger.Nop()))
	r := newEngine()
	r.GET("/nonce", h.Nonce)
	r.GET("/status", h.Status)

	rec := doJSON(r, http.MethodGet, "/nonce", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: want=500 got=%d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "unexpected EOF") {
		t.Fatalf("internal error leaked: %s", rec.Body.String())
	}
	if got := decode(t, doJSON(r, http.MethodGet, "/status", nil))["storage_mode"]; got != "memory" {
		t.Fatalf("storage mode: want=memory got=%v", got)
	}
}

type failingAuth struct {
	services.AuthService
}

func (failingAuth) Nonce(context.Context) (string, error) {
	return "", io.ErrUnexpectedEOF
}
