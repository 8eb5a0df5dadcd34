package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"portfolioapi/internal/admintoken"
	"portfolioapi/internal/app"
	"portfolioapi/internal/util"
	"portfolioapi/pkg/domain"
)

// multipartOverhead is allowed on top of the file size for form framing.
const multipartOverhead = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	AllowedOrigins []string
	TrustedProxies *util.TrustedProxies
	// StaticDir, when set, serves the built front end with SPA fallback.
	StaticDir string
}

// Server exposes the portfolio HTTP API.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	allowedOrigins []string
	trustedProxies *util.TrustedProxies
	staticDir      string
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		allowedOrigins: cfg.AllowedOrigins,
		trustedProxies: cfg.TrustedProxies,
		staticDir:      strings.TrimSpace(cfg.StaticDir),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.allowedOrigins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleLiveness)
	s.mux.HandleFunc("/api/health", s.handleHealth)

	s.mux.HandleFunc("/api/contact", s.handleContact)
	s.mux.HandleFunc("/api/cv-status", s.handleCVStatus)
	s.mux.HandleFunc("/api/download-cv", s.handleCVFile("attachment"))
	s.mux.HandleFunc("/api/view-cv", s.handleCVFile("inline"))

	// admin
	s.mux.HandleFunc("/api/admin/login", s.handleLogin)
	s.mux.Handle("/api/contacts", s.withAdmin(s.handleListContacts))
	s.mux.Handle("/api/upload-cv", s.withAdmin(s.handleUploadCV))
	s.mux.Handle("/api/admin/cv-files", s.withAdmin(s.handleListCvFiles))
	s.mux.Handle("/api/admin/cv-files/", s.withAdmin(s.handleCvFileAction))
	s.mux.Handle("/api/admin/contacts/", s.withAdmin(s.handleContactAction))

	s.mux.HandleFunc("/api/", func(w http.ResponseWriter, _ *http.Request) {
		notFound(w, "Not found")
	})
	if s.staticDir != "" {
		s.mux.Handle("/", spaHandler(s.staticDir))
	}
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.app.Health(r.Context()))
}

// withAdmin requires a valid admin bearer token once admin tokens are
// configured. Without a secret the route stays open.
func (s *Server) withAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.app.AdminEnabled() {
			next(w, r)
			return
		}
		token, ok := admintoken.BearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		claims, err := s.app.VerifyAdmin(token)
		if err != nil {
			util.LoggerFromContext(r.Context()).Info("admin token rejected", "err", err)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		ctx := util.ContextWithLogger(r.Context(), util.LoggerFromContext(r.Context()).With("admin", claims.Subject))
		next(w, r.WithContext(ctx))
	})
}

type validationResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Errors  []app.FieldIssue `json:"errors"`
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req domain.ContactInput
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			writeValidationError(w, []app.FieldIssue{typeIssue(typeErr)})
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	meta := domain.ContactMeta{
		ClientIP:  util.ClientIP(r, s.trustedProxies),
		UserAgent: r.UserAgent(),
		RequestID: util.RequestIDFromRequest(r),
	}
	res, err := s.app.SubmitContact(r.Context(), req, meta)
	if err != nil {
		var verr *app.ValidationError
		if errors.As(err, &verr) {
			writeValidationError(w, verr.Issues)
			return
		}
		util.LoggerFromContext(r.Context()).Error("contact submission failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to send message. Please try again.")
		return
	}
	util.LoggerFromContext(r.Context()).Info("contact stored", "contact_id", res.Contact.ID, "subject", res.Contact.Subject)
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: res.Message})
}

func writeValidationError(w http.ResponseWriter, issues []app.FieldIssue) {
	writeJSON(w, http.StatusBadRequest, validationResponse{
		Success: false,
		Message: "Validation error",
		Errors:  issues,
	})
}

// typeIssue reports a field sent with the wrong JSON type, e.g.
// "Expected string, received number".
func typeIssue(err *json.UnmarshalTypeError) app.FieldIssue {
	received, _, _ := strings.Cut(err.Value, " ")
	if received == "bool" {
		received = "boolean"
	}
	expected := "value"
	if err.Type != nil {
		expected = err.Type.Kind().String()
	}
	return app.FieldIssue{Field: err.Field, Message: "Expected " + expected + ", received " + received}
}

type cvStatusResponse struct {
	Success     bool       `json:"success"`
	HasActiveCv bool       `json:"hasActiveCv"`
	Filename    string     `json:"filename,omitempty"`
	UploadedAt  *time.Time `json:"uploadedAt,omitempty"`
}

func (s *Server) handleCVStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	doc, ok, err := s.app.ResolveCV(r.Context())
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("cv status failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to get CV status")
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, cvStatusResponse{Success: true})
		return
	}
	uploadedAt := doc.UploadedAt.UTC()
	writeJSON(w, http.StatusOK, cvStatusResponse{
		Success:     true,
		HasActiveCv: true,
		Filename:    doc.DisplayName,
		UploadedAt:  &uploadedAt,
	})
}

// handleCVFile streams the resolved CV with the given disposition.
func (s *Server) handleCVFile(disposition string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			methodNotAllowed(w)
			return
		}
		doc, rc, err := s.app.OpenCV(r.Context())
		switch {
		case errors.Is(err, app.ErrNoCV):
			notFound(w, "No CV file available for download")
			return
		case errors.Is(err, app.ErrCVFileMissing):
			util.LoggerFromContext(r.Context()).Warn("resolved cv file is missing")
			notFound(w, "CV file not found on server")
			return
		case err != nil:
			util.LoggerFromContext(r.Context()).Error("open cv failed", "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to download CV. Please try again.")
			return
		}
		defer rc.Close()

		// The active CV can be switched to an older upload, so validation
		// relies on the ETag only and never on a modification time.
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", contentDisposition(disposition, doc.DisplayName))
		w.Header().Set("Cache-Control", "no-cache")
		if doc.Version != "" {
			w.Header().Set("ETag", `"`+doc.Version+`"`)
		}
		if rs, ok := rc.(io.ReadSeeker); ok {
			http.ServeContent(w, r, doc.DisplayName, time.Time{}, rs)
			return
		}
		if etag := w.Header().Get("ETag"); etag != "" && etagMatches(r.Header.Get("If-None-Match"), etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		if _, err := io.Copy(w, rc); err != nil {
			util.LoggerFromContext(r.Context()).Warn("cv stream interrupted", "err", err)
		}
	}
}

// etagMatches applies the weak comparison If-None-Match calls for.
func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

// contentDisposition always quotes filename. Names outside printable ASCII
// get an ASCII fallback plus an RFC 5987 filename* parameter.
func contentDisposition(disposition, filename string) string {
	fallback := asciiFilename(filename)
	v := disposition + `; filename="` + fallback + `"`
	if fallback == filename {
		return v
	}
	ext := mime.FormatMediaType(disposition, map[string]string{"filename": filename})
	if strings.Contains(ext, "filename*=") {
		v += strings.TrimPrefix(ext, disposition)
	}
	return v
}

func asciiFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '"' || r == '\\':
			b.WriteByte('_')
		case r < 0x20 || r > 0x7e:
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

type contactsResponse struct {
	Success  bool                    `json:"success"`
	Contacts []domain.ContactMessage `json:"contacts"`
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	contacts, err := s.app.ListContacts(r.Context())
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("list contacts failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to retrieve contacts")
		return
	}
	writeJSON(w, http.StatusOK, contactsResponse{Success: true, Contacts: contacts})
}

type uploadResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	File    domain.CvFile `json:"file"`
}

func (s *Server) handleUploadCV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.app.MaxUploadBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	file, header, err := r.FormFile("cv")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	cv, err := s.app.UploadCV(r.Context(), app.UploadInput{
		OriginalName: header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Body:         file,
		Size:         header.Size,
	})
	switch {
	case errors.Is(err, app.ErrUnsupportedFileType):
		writeError(w, http.StatusBadRequest, "Only PDF files are allowed")
		return
	case errors.Is(err, app.ErrFileTooLarge):
		writeError(w, http.StatusBadRequest, "File too large")
		return
	case errors.Is(err, app.ErrInvalidUpload):
		writeError(w, http.StatusBadRequest, "Invalid PDF file")
		return
	case err != nil:
		util.LoggerFromContext(r.Context()).Error("cv upload failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to upload CV. Please try again.")
		return
	}
	util.LoggerFromContext(r.Context()).Info("cv uploaded", "cv_id", cv.ID, "pages", cv.PageCount, "size_bytes", cv.SizeBytes)
	writeJSON(w, http.StatusOK, uploadResponse{Success: true, Message: "CV uploaded successfully!", File: cv})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 16<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	tok, err := s.app.Login(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, app.ErrAdminDisabled):
		writeError(w, http.StatusServiceUnavailable, "Admin login is not configured")
		return
	case errors.Is(err, app.ErrUnauthorized):
		util.LoggerFromContext(r.Context()).Info("admin login rejected", "client_ip", util.ClientIP(r, s.trustedProxies))
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	case err != nil:
		util.LoggerFromContext(r.Context()).Error("admin login failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Success: true, Token: tok.Token, ExpiresAt: tok.ExpiresAt.UTC()})
}

type cvFilesResponse struct {
	Success bool            `json:"success"`
	Files   []domain.CvFile `json:"files"`
}

func (s *Server) handleListCvFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	files, err := s.app.ListCvFiles(r.Context())
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("list cv files failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to retrieve CV files")
		return
	}
	writeJSON(w, http.StatusOK, cvFilesResponse{Success: true, Files: files})
}

type cvFileResponse struct {
	Success bool          `json:"success"`
	File    domain.CvFile `json:"file"`
}

// /api/admin/cv-files/{id}
func (s *Server) handleGetCvFile(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	file, err := s.app.GetCvFile(r.Context(), id)
	if errors.Is(err, app.ErrNotFound) {
		notFound(w, "CV file not found")
		return
	}
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("get cv file failed", "cv_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to retrieve CV file")
		return
	}
	writeJSON(w, http.StatusOK, cvFileResponse{Success: true, File: file})
}

// /api/admin/cv-files/{id} and /api/admin/cv-files/{id}/activate
func (s *Server) handleCvFileAction(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/admin/cv-files/")
	if rest != "" && !strings.Contains(rest, "/") {
		s.handleGetCvFile(w, r, rest)
		return
	}
	id, action, ok := splitAction(r.URL.Path, "/api/admin/cv-files/")
	if !ok || action != "activate" {
		notFound(w, "Not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.app.ActivateCvFile(r.Context(), id); err != nil {
		util.LoggerFromContext(r.Context()).Error("activate cv file failed", "cv_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to activate CV")
		return
	}
	util.LoggerFromContext(r.Context()).Info("cv activated", "cv_id", id)
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "CV activated"})
}

// /api/admin/contacts/{id}/read
func (s *Server) handleContactAction(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitAction(r.URL.Path, "/api/admin/contacts/")
	if !ok || action != "read" {
		notFound(w, "Not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.app.MarkContactRead(r.Context(), id); err != nil {
		util.LoggerFromContext(r.Context()).Error("mark contact read failed", "contact_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to update contact")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Contact marked as read"})
}

func splitAction(path, prefix string) (id, action string, ok bool) {
	parts := strings.Split(strings.TrimPrefix(path, prefix), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

type messageResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{
		Success:   false,
		Message:   msg,
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	})
}
