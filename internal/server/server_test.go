package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"portfolioapi/internal/admintoken"
	"portfolioapi/internal/app"
	"portfolioapi/pkg/domain"
	"portfolioapi/pkg/storage"
	"portfolioapi/pkg/store"
)

type countingNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (n *countingNotifier) NotifyContact(context.Context, domain.ContactMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return n.err
}

func (n *countingNotifier) Name() string { return "counting" }

type fixture struct {
	srv    *httptest.Server
	app    *app.App
	store  store.Store
	tokens *admintoken.Manager
}

type fixtureOption func(*app.Config, *Config)

func newFixture(t *testing.T, opts ...fixtureOption) fixture {
	t.Helper()
	blobs, err := storage.NewFileStore(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	appCfg := app.Config{
		Store:    store.NewMemoryStore(),
		Objects:  blobs,
		Notifier: &countingNotifier{},
		Email:    app.EmailSettings{User: "owner@example.com", HasPassword: true},
		BundledCV: app.BundledCV{
			Path:        filepath.Join(t.TempDir(), "missing.pdf"),
			DisplayName: "Swarnava Sinha Ray - CV.pdf",
			UploadedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		MaxUploadBytes: 64 * 1024,
	}
	srvCfg := Config{}
	for _, opt := range opts {
		opt(&appCfg, &srvCfg)
	}
	a, err := app.New(appCfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srvCfg.App = a
	s, err := New(srvCfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		ts.Close()
		done := make(chan struct{})
		time.AfterFunc(5*time.Second, func() { close(done) })
		a.Wait(done)
	})
	return fixture{srv: ts, app: a, store: appCfg.Store, tokens: appCfg.Tokens}
}

func withTokens(t *testing.T) fixtureOption {
	tokens, err := admintoken.NewManager(admintoken.Options{Secret: strings.Repeat("k", 40)})
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	return func(c *app.Config, _ *Config) { c.Tokens = tokens }
}

func minimalPDF(pages int) []byte {
	objs := []string{"<< /Type /Catalog /Pages 2 0 R >>"}
	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		objs = append(objs, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func postJSON(t *testing.T, url string, body any, header http.Header) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func get(t *testing.T, url string, header http.Header) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func uploadRequest(t *testing.T, url, field, filename, contentType string, data []byte, header http.Header) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	_, _ = part.Write(data)
	_ = mw.Close()
	req, _ := http.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return resp
}

func TestContactEndToEnd(t *testing.T) {
	f := newFixture(t)
	resp := postJSON(t, f.srv.URL+"/api/contact", map[string]string{
		"name":    "Jo Lee",
		"email":   "jo@x.com",
		"subject": "general",
		"message": "Hello, checking availability for a chat.",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var sent struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	decode(t, resp, &sent)
	if !sent.Success || sent.Message != "Message sent successfully!" {
		t.Fatalf("response = %+v", sent)
	}

	var listed struct {
		Success  bool `json:"success"`
		Contacts []struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			Email     string `json:"email"`
			IsRead    bool   `json:"isRead"`
			CreatedAt string `json:"createdAt"`
		} `json:"contacts"`
	}
	decode(t, get(t, f.srv.URL+"/api/contacts", nil), &listed)
	if !listed.Success || len(listed.Contacts) != 1 {
		t.Fatalf("contacts = %+v", listed)
	}
	c := listed.Contacts[0]
	if c.Name != "Jo Lee" || c.Email != "jo@x.com" || c.IsRead || c.ID == "" || c.CreatedAt == "" {
		t.Fatalf("contact = %+v", c)
	}
}

func TestContactValidationError(t *testing.T) {
	f := newFixture(t)
	resp := postJSON(t, f.srv.URL+"/api/contact", map[string]string{
		"name":    "Jo Lee",
		"email":   "not-an-email",
		"subject": "general",
		"message": "Hello, checking availability for a chat.",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Success bool             `json:"success"`
		Message string           `json:"message"`
		Errors  []app.FieldIssue `json:"errors"`
	}
	decode(t, resp, &body)
	if body.Success || body.Message != "Validation error" || len(body.Errors) != 1 || body.Errors[0].Field != "email" {
		t.Fatalf("body = %+v", body)
	}
	list, _ := f.store.ListContacts(context.Background())
	if len(list) != 0 {
		t.Fatalf("invalid contact was stored")
	}
}

func TestContactBadJSON(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Post(f.srv.URL+"/api/contact", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestContactSucceedsWhenNotificationFails(t *testing.T) {
	f := newFixture(t, func(c *app.Config, _ *Config) {
		c.Notifier = &countingNotifier{err: fmt.Errorf("connection refused")}
	})
	resp := postJSON(t, f.srv.URL+"/api/contact", map[string]string{
		"name": "Jo Lee", "email": "jo@x.com", "subject": "project", "message": "Would love to collaborate on this.",
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCVStatusAndDownloadWithoutCV(t *testing.T) {
	f := newFixture(t)
	var status map[string]any
	decode(t, get(t, f.srv.URL+"/api/cv-status", nil), &status)
	if status["success"] != true || status["hasActiveCv"] != false {
		t.Fatalf("status = %v", status)
	}
	if _, ok := status["filename"]; ok {
		t.Fatalf("filename should be omitted: %v", status)
	}
	for _, path := range []string{"/api/download-cv", "/api/view-cv"} {
		resp := get(t, f.srv.URL+path, nil)
		var body map[string]any
		decode(t, resp, &body)
		if resp.StatusCode != http.StatusNotFound || body["message"] != "No CV file available for download" {
			t.Fatalf("%s: status=%d body=%v", path, resp.StatusCode, body)
		}
	}
}

func TestBundledCVIsServed(t *testing.T) {
	bundled := filepath.Join(t.TempDir(), "SwarnavaCV.pdf")
	if err := os.WriteFile(bundled, minimalPDF(1), 0o644); err != nil {
		t.Fatalf("write bundled: %v", err)
	}
	f := newFixture(t, func(c *app.Config, _ *Config) { c.BundledCV.Path = bundled })

	var status struct {
		HasActiveCv bool   `json:"hasActiveCv"`
		Filename    string `json:"filename"`
		UploadedAt  string `json:"uploadedAt"`
	}
	decode(t, get(t, f.srv.URL+"/api/cv-status", nil), &status)
	if !status.HasActiveCv || status.Filename != "Swarnava Sinha Ray - CV.pdf" || status.UploadedAt != "2024-01-01T00:00:00Z" {
		t.Fatalf("status = %+v", status)
	}

	cases := map[string]string{"/api/download-cv": "attachment", "/api/view-cv": "inline"}
	for path, disposition := range cases {
		resp := get(t, f.srv.URL+path, nil)
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
			t.Fatalf("%s content type = %q", path, ct)
		}
		cd := resp.Header.Get("Content-Disposition")
		if !strings.HasPrefix(cd, disposition+";") || !strings.Contains(cd, `filename="Swarnava Sinha Ray - CV.pdf"`) {
			t.Fatalf("%s content disposition = %q", path, cd)
		}
		if !bytes.Equal(data, minimalPDF(1)) {
			t.Fatalf("%s served wrong bytes", path)
		}
	}
}

func TestUploadActivatesAndDownloads(t *testing.T) {
	f := newFixture(t)
	resp := uploadRequest(t, f.srv.URL+"/api/upload-cv", "cv", "resume.pdf", "application/pdf", minimalPDF(2), nil)
	var up struct {
		Success bool          `json:"success"`
		Message string        `json:"message"`
		File    domain.CvFile `json:"file"`
	}
	decode(t, resp, &up)
	if resp.StatusCode != http.StatusOK || !up.Success || up.Message != "CV uploaded successfully!" {
		t.Fatalf("upload: status=%d body=%+v", resp.StatusCode, up)
	}
	if !up.File.IsActive || up.File.OriginalName != "resume.pdf" || up.File.PageCount != 2 {
		t.Fatalf("file = %+v", up.File)
	}

	var status struct {
		HasActiveCv bool   `json:"hasActiveCv"`
		Filename    string `json:"filename"`
	}
	decode(t, get(t, f.srv.URL+"/api/cv-status", nil), &status)
	if !status.HasActiveCv || status.Filename != "resume.pdf" {
		t.Fatalf("status = %+v", status)
	}
	dl := get(t, f.srv.URL+"/api/download-cv", nil)
	data, _ := io.ReadAll(dl.Body)
	dl.Body.Close()
	if dl.StatusCode != http.StatusOK || !bytes.Equal(data, minimalPDF(2)) {
		t.Fatalf("download status=%d len=%d", dl.StatusCode, len(data))
	}

	if err := os.Remove(up.File.FilePath); err != nil {
		t.Fatalf("remove stored file: %v", err)
	}
	missing := get(t, f.srv.URL+"/api/view-cv", nil)
	var body map[string]any
	decode(t, missing, &body)
	if missing.StatusCode != http.StatusNotFound || body["message"] != "CV file not found on server" {
		t.Fatalf("missing file: status=%d body=%v", missing.StatusCode, body)
	}
}

func TestUploadRejections(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name, field, filename, contentType string
		data                               []byte
		want                               string
	}{
		{"wrong field", "file", "a.pdf", "application/pdf", minimalPDF(1), "No file uploaded"},
		{"not pdf", "cv", "a.png", "image/png", []byte("png"), "Only PDF files are allowed"},
		{"fake pdf", "cv", "a.pdf", "application/pdf", []byte("not really a pdf"), "Invalid PDF file"},
		{"too large", "cv", "big.pdf", "application/pdf", make([]byte, 65*1024), "File too large"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := uploadRequest(t, f.srv.URL+"/api/upload-cv", tc.field, tc.filename, tc.contentType, tc.data, nil)
			var body map[string]any
			decode(t, resp, &body)
			if resp.StatusCode != http.StatusBadRequest || body["message"] != tc.want {
				t.Fatalf("status=%d body=%v", resp.StatusCode, body)
			}
		})
	}
}

func TestAdminRoutesRequireTokenWhenConfigured(t *testing.T) {
	f := newFixture(t, withTokens(t))
	ctx := context.Background()
	if _, err := f.app.CreateAdmin(ctx, "admin", "a very long password"); err != nil {
		t.Fatalf("create admin: %v", err)
	}

	resp := get(t, f.srv.URL+"/api/contacts", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("contacts without token: %d", resp.StatusCode)
	}
	resp = uploadRequest(t, f.srv.URL+"/api/upload-cv", "cv", "a.pdf", "application/pdf", minimalPDF(1), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("upload without token: %d", resp.StatusCode)
	}

	bad := postJSON(t, f.srv.URL+"/api/admin/login", map[string]string{"username": "admin", "password": "nope nope nope"}, nil)
	var badBody map[string]any
	decode(t, bad, &badBody)
	if bad.StatusCode != http.StatusUnauthorized || badBody["message"] != "Invalid credentials" {
		t.Fatalf("bad login: %d %v", bad.StatusCode, badBody)
	}

	login := postJSON(t, f.srv.URL+"/api/admin/login", map[string]string{"username": "admin", "password": "a very long password"}, nil)
	var tok struct {
		Success   bool   `json:"success"`
		Token     string `json:"token"`
		ExpiresAt string `json:"expiresAt"`
	}
	decode(t, login, &tok)
	if login.StatusCode != http.StatusOK || !tok.Success || tok.Token == "" || tok.ExpiresAt == "" {
		t.Fatalf("login: %d %+v", login.StatusCode, tok)
	}
	auth := http.Header{"Authorization": []string{"Bearer " + tok.Token}}

	resp = get(t, f.srv.URL+"/api/contacts", auth)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("contacts with token: %d", resp.StatusCode)
	}

	wrong := http.Header{"Authorization": []string{"Bearer not-a-token"}}
	resp = get(t, f.srv.URL+"/api/admin/cv-files", wrong)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("cv files with bad token: %d", resp.StatusCode)
	}
}

func TestLoginDisabledWithoutSecret(t *testing.T) {
	f := newFixture(t)
	resp := postJSON(t, f.srv.URL+"/api/admin/login", map[string]string{"username": "admin", "password": "whatever"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestAdminActivateAndMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, _ := f.store.CreateCvFile(ctx, domain.NewCvFile{Filename: "cv-a.pdf", OriginalName: "a.pdf", FilePath: "a"})
	b, _ := f.store.CreateCvFile(ctx, domain.NewCvFile{Filename: "cv-b.pdf", OriginalName: "b.pdf", FilePath: "b"})
	_ = f.store.ActivateCvFile(ctx, a.ID)

	resp := postJSON(t, f.srv.URL+"/api/admin/cv-files/"+b.ID+"/activate", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate status = %d", resp.StatusCode)
	}
	var files struct {
		Files []domain.CvFile `json:"files"`
	}
	decode(t, get(t, f.srv.URL+"/api/admin/cv-files", nil), &files)
	if len(files.Files) != 2 || files.Files[0].IsActive || !files.Files[1].IsActive {
		t.Fatalf("files = %+v", files.Files)
	}

	resp = postJSON(t, f.srv.URL+"/api/admin/cv-files/"+b.ID+"/delete", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown action status = %d", resp.StatusCode)
	}

	c, _ := f.store.CreateContact(ctx, domain.NewContact{ContactInput: domain.ContactInput{Name: "Jo", Email: "jo@x.com", Subject: "other", Message: "A message body."}})
	resp = postJSON(t, f.srv.URL+"/api/admin/contacts/"+c.ID+"/read", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mark read status = %d", resp.StatusCode)
	}
	list, _ := f.store.ListContacts(ctx)
	if !list[0].IsRead {
		t.Fatalf("contact not marked read")
	}
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t)
	var health struct {
		Status    string            `json:"status"`
		Timestamp string            `json:"timestamp"`
		Services  map[string]string `json:"services"`
		Email     struct {
			HasUser     bool   `json:"hasUser"`
			HasPassword bool   `json:"hasPassword"`
			User        string `json:"user"`
		} `json:"email"`
	}
	decode(t, get(t, f.srv.URL+"/api/health", nil), &health)
	if health.Status != "healthy" || health.Timestamp == "" {
		t.Fatalf("health = %+v", health)
	}
	if health.Services["database"] != "memory" || health.Services["email"] != "configured" || health.Services["cv"] != "not available" {
		t.Fatalf("services = %v", health.Services)
	}
	if !health.Email.HasUser || !health.Email.HasPassword {
		t.Fatalf("email = %+v", health.Email)
	}
	var live map[string]string
	decode(t, get(t, f.srv.URL+"/healthz", nil), &live)
	if live["status"] != "ok" {
		t.Fatalf("healthz = %v", live)
	}
}

func TestUnknownAPIRouteAndMethod(t *testing.T) {
	f := newFixture(t)
	resp := get(t, f.srv.URL+"/api/nope", nil)
	var body map[string]any
	decode(t, resp, &body)
	if resp.StatusCode != http.StatusNotFound || body["success"] != false {
		t.Fatalf("unknown route: %d %v", resp.StatusCode, body)
	}
	resp = get(t, f.srv.URL+"/api/contact", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET /api/contact = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("missing request id header")
	}
}

func TestStaticSiteFallback(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>portfolio</html>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}
	f := newFixture(t, func(_ *app.Config, c *Config) { c.StaticDir = dir })

	for path, want := range map[string]string{
		"/":          "portfolio",
		"/education": "portfolio",
		"/app.js":    "console.log(1)",
	} {
		resp := get(t, f.srv.URL+path, nil)
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), want) {
			t.Fatalf("%s: status=%d body=%q", path, resp.StatusCode, data)
		}
	}
	resp := get(t, f.srv.URL+"/missing.png", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing asset status = %d", resp.StatusCode)
	}
}

func TestCVDownloadRevalidatesAfterActivatingOlderUpload(t *testing.T) {
	f := newFixture(t)
	pdfA, pdfB := minimalPDF(1), minimalPDF(3)
	var upA struct {
		File domain.CvFile `json:"file"`
	}
	decode(t, uploadRequest(t, f.srv.URL+"/api/upload-cv", "cv", "a.pdf", "application/pdf", pdfA, nil), &upA)
	uploadRequest(t, f.srv.URL+"/api/upload-cv", "cv", "b.pdf", "application/pdf", pdfB, nil).Body.Close()

	first := get(t, f.srv.URL+"/api/download-cv", nil)
	data, _ := io.ReadAll(first.Body)
	first.Body.Close()
	etag := first.Header.Get("ETag")
	if first.StatusCode != http.StatusOK || !bytes.Equal(data, pdfB) || etag == "" {
		t.Fatalf("first download: status=%d etag=%q", first.StatusCode, etag)
	}
	if first.Header.Get("Last-Modified") != "" {
		t.Fatalf("unexpected Last-Modified %q", first.Header.Get("Last-Modified"))
	}
	if cc := first.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Fatalf("cache control = %q", cc)
	}

	cached := get(t, f.srv.URL+"/api/download-cv", http.Header{"If-None-Match": []string{etag}})
	cached.Body.Close()
	if cached.StatusCode != http.StatusNotModified {
		t.Fatalf("unchanged cv status = %d, want 304", cached.StatusCode)
	}

	postJSON(t, f.srv.URL+"/api/admin/cv-files/"+upA.File.ID+"/activate", nil, nil).Body.Close()
	stale := http.Header{
		"If-None-Match":     []string{etag},
		"If-Modified-Since": []string{time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)},
	}
	for _, path := range []string{"/api/download-cv", "/api/view-cv"} {
		resp := get(t, f.srv.URL+path, stale)
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !bytes.Equal(data, pdfA) {
			t.Fatalf("%s after switch: status=%d bytesAreA=%v", path, resp.StatusCode, bytes.Equal(data, pdfA))
		}
		if resp.Header.Get("ETag") == etag {
			t.Fatalf("%s etag did not change", path)
		}
	}
}

func TestContactWrongFieldTypeIsValidationError(t *testing.T) {
	f := newFixture(t)
	resp := postJSON(t, f.srv.URL+"/api/contact", map[string]any{
		"name":    123,
		"email":   "jo@x.com",
		"subject": "general",
		"message": "Hello, checking availability for a chat.",
	}, nil)
	var body struct {
		Success bool             `json:"success"`
		Message string           `json:"message"`
		Errors  []app.FieldIssue `json:"errors"`
	}
	decode(t, resp, &body)
	if resp.StatusCode != http.StatusBadRequest || body.Success || body.Message != "Validation error" {
		t.Fatalf("status=%d body=%+v", resp.StatusCode, body)
	}
	if len(body.Errors) != 1 || body.Errors[0].Field != "name" || body.Errors[0].Message != "Expected string, received number" {
		t.Fatalf("errors = %+v", body.Errors)
	}
	list, _ := f.store.ListContacts(context.Background())
	if len(list) != 0 {
		t.Fatalf("contact with bad field type was stored")
	}
}

func TestContentDisposition(t *testing.T) {
	cases := []struct {
		name, filename, want string
	}{
		{"plain", "resume.pdf", `attachment; filename="resume.pdf"`},
		{"spaces", "Swarnava Sinha Ray - CV.pdf", `attachment; filename="Swarnava Sinha Ray - CV.pdf"`},
		{"quote", `my "cv".pdf`, `attachment; filename="my _cv_.pdf"`},
		{"non ascii", "résumé.pdf", `attachment; filename="r_sum_.pdf"; filename*=utf-8''r%C3%A9sum%C3%A9.pdf`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := contentDisposition("attachment", tc.filename); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestUploadedCVDispositionIsQuoted(t *testing.T) {
	f := newFixture(t)
	uploadRequest(t, f.srv.URL+"/api/upload-cv", "cv", "resume.pdf", "application/pdf", minimalPDF(1), nil).Body.Close()
	resp := get(t, f.srv.URL+"/api/view-cv", nil)
	resp.Body.Close()
	if cd := resp.Header.Get("Content-Disposition"); cd != `inline; filename="resume.pdf"` {
		t.Fatalf("content disposition = %q", cd)
	}
}

func TestAdminGetCvFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, _ := f.store.CreateCvFile(ctx, domain.NewCvFile{Filename: "cv-a.pdf", OriginalName: "a.pdf", FilePath: "a", PageCount: 2})

	var body struct {
		Success bool          `json:"success"`
		File    domain.CvFile `json:"file"`
	}
	resp := get(t, f.srv.URL+"/api/admin/cv-files/"+a.ID, nil)
	decode(t, resp, &body)
	if resp.StatusCode != http.StatusOK || !body.Success || body.File.ID != a.ID || body.File.OriginalName != "a.pdf" || body.File.IsActive {
		t.Fatalf("status=%d body=%+v", resp.StatusCode, body)
	}

	missing := get(t, f.srv.URL+"/api/admin/cv-files/nope", nil)
	var notFoundBody map[string]any
	decode(t, missing, &notFoundBody)
	if missing.StatusCode != http.StatusNotFound || notFoundBody["message"] != "CV file not found" {
		t.Fatalf("unknown id: status=%d body=%v", missing.StatusCode, notFoundBody)
	}

	post := postJSON(t, f.srv.URL+"/api/admin/cv-files/"+a.ID, nil, nil)
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST detail status = %d", post.StatusCode)
	}
}
