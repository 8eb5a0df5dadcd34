package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand/v2"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"portfolioapi/pkg/domain"
	"portfolioapi/pkg/storage"
)

const pdfContentType = "application/pdf"

// CvDocument is the CV currently eligible to be served.
type CvDocument struct {
	DisplayName string
	UploadedAt  time.Time
	Bundled     bool
	// Location is a filesystem path when Bundled, otherwise a blob location.
	Location string
	// File is the stored record; nil for the bundled CV.
	File *domain.CvFile
	// Version changes whenever the resolved bytes may have changed.
	Version string
}

// ResolveCV picks the bundled CV when it exists on disk, otherwise the
// store's active file. ok is false when neither is available.
func (a *App) ResolveCV(ctx context.Context) (CvDocument, bool, error) {
	if doc, ok := a.bundledDocument(); ok {
		return doc, true, nil
	}
	file, ok, err := a.store.GetActiveCvFile(ctx)
	if err != nil {
		return CvDocument{}, false, storageErr("get active cv", err)
	}
	if !ok {
		return CvDocument{}, false, nil
	}
	return CvDocument{
		DisplayName: file.OriginalName,
		UploadedAt:  file.UploadedAt,
		Location:    file.FilePath,
		File:        &file,
		Version:     "cv-" + file.ID,
	}, true, nil
}

func (a *App) bundledDocument() (CvDocument, bool) {
	path := strings.TrimSpace(a.bundled.Path)
	if path == "" {
		return CvDocument{}, false
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return CvDocument{}, false
	}
	name := a.bundled.DisplayName
	if name == "" {
		name = filepath.Base(path)
	}
	return CvDocument{
		DisplayName: name,
		UploadedAt:  a.bundled.UploadedAt,
		Bundled:     true,
		Location:    path,
		Version:     fmt.Sprintf("bundled-%x-%x", info.Size(), info.ModTime().UnixNano()),
	}, true
}

// OpenCV resolves the CV and opens its bytes for streaming. The caller
// closes the reader.
func (a *App) OpenCV(ctx context.Context) (CvDocument, io.ReadCloser, error) {
	doc, ok, err := a.ResolveCV(ctx)
	if err != nil {
		return CvDocument{}, nil, err
	}
	if !ok {
		return CvDocument{}, nil, ErrNoCV
	}
	rc, err := a.openDocument(ctx, doc)
	if err != nil {
		return CvDocument{}, nil, err
	}
	return doc, rc, nil
}

func (a *App) openDocument(ctx context.Context, doc CvDocument) (io.ReadCloser, error) {
	if doc.Bundled {
		f, err := os.Open(doc.Location)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, ErrCVFileMissing
			}
			return nil, storageErr("open bundled cv", err)
		}
		return f, nil
	}
	rc, err := a.objects.Open(ctx, doc.Location)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrCVFileMissing
		}
		return nil, storageErr("open cv blob", err)
	}
	return rc, nil
}

// UploadInput is one CV upload as received from the client.
type UploadInput struct {
	OriginalName string
	ContentType  string
	Body         io.Reader
	Size         int64
}

// UploadCV checks that the upload is a PDF, stores it and makes it the
// active CV.
func (a *App) UploadCV(ctx context.Context, in UploadInput) (domain.CvFile, error) {
	if !isPDFContentType(in.ContentType) {
		return domain.CvFile{}, ErrUnsupportedFileType
	}
	if in.Size > a.maxUploadBytes {
		return domain.CvFile{}, ErrFileTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(in.Body, a.maxUploadBytes+1))
	if err != nil {
		return domain.CvFile{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > a.maxUploadBytes {
		return domain.CvFile{}, ErrFileTooLarge
	}
	pages, err := countPDFPages(data)
	if err != nil {
		return domain.CvFile{}, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}

	key := a.storedName()
	size := int64(len(data))
	location, err := a.objects.Put(ctx, key, bytes.NewReader(data), size, pdfContentType)
	if err != nil {
		return domain.CvFile{}, storageErr("store cv blob", err)
	}
	file, err := a.store.CreateCvFile(ctx, domain.NewCvFile{
		Filename:     key,
		OriginalName: originalName(in.OriginalName),
		FilePath:     location,
		SizeBytes:    size,
		PageCount:    pages,
	})
	if err != nil {
		if derr := a.objects.Delete(context.WithoutCancel(ctx), location); derr != nil {
			a.logger.Warn("remove orphaned cv blob failed", "location", location, "err", derr)
		}
		return domain.CvFile{}, storageErr("create cv file", err)
	}
	if err := a.store.ActivateCvFile(ctx, file.ID); err != nil {
		return domain.CvFile{}, storageErr("activate cv file", err)
	}
	file.IsActive = true
	return file, nil
}

// ListCvFiles returns every uploaded file, oldest first.
func (a *App) ListCvFiles(ctx context.Context) ([]domain.CvFile, error) {
	files, err := a.store.ListCvFiles(ctx)
	if err != nil {
		return nil, storageErr("list cv files", err)
	}
	return files, nil
}

// GetCvFile returns one uploaded file, active or not.
func (a *App) GetCvFile(ctx context.Context, id string) (domain.CvFile, error) {
	file, ok, err := a.store.GetCvFile(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.CvFile{}, storageErr("get cv file", err)
	}
	if !ok {
		return domain.CvFile{}, ErrNotFound
	}
	return file, nil
}

// ActivateCvFile makes id the only active file. An unknown id leaves no
// file active and is not an error.
func (a *App) ActivateCvFile(ctx context.Context, id string) error {
	if err := a.store.ActivateCvFile(ctx, strings.TrimSpace(id)); err != nil {
		return storageErr("activate cv file", err)
	}
	return nil
}

// storedName follows cv-<unix millis>-<random>.pdf.
func (a *App) storedName() string {
	return fmt.Sprintf("cv-%d-%d.pdf", a.now().UnixMilli(), rand.Int64N(1_000_000_000))
}

func isPDFContentType(ct string) bool {
	mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(ct))
	return err == nil && strings.EqualFold(mediaType, pdfContentType)
}

func originalName(name string) string {
	name = filepath.Base(strings.TrimSpace(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return "cv.pdf"
	}
	return name
}

// countPDFPages parses data as a PDF. The parser panics on some malformed
// input, which is reported as an error.
func countPDFPages(data []byte) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	pages = reader.NumPage()
	if pages < 1 {
		return 0, errors.New("pdf has no pages")
	}
	return pages, nil
}
