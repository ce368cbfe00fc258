// Package store implements the remote file store on top of Google Drive.
// It provides the lookup, download, create and update primitives the
// ingestion pipeline needs, plus folder management helpers.
package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Config holds the configuration for connecting to Google Drive.
type Config struct {
	// CredentialsFile is the path to a service account JSON file. When empty
	// the ambient application default credentials are used, which is the
	// expected setup when running on a cloud host.
	CredentialsFile string
}

// Drive is a Google Drive backed file store.
type Drive struct {
	files   filesService
	folders foldersService
}

// filesService is the slice of the Drive files API the store uses.
type filesService interface {
	list(ctx context.Context, query string, pageSize int64) ([]*drive.File, error)
	download(ctx context.Context, fileID string) (io.ReadCloser, error)
	create(ctx context.Context, meta *drive.File, mimeType string, data []byte) (*drive.File, error)
	update(ctx context.Context, fileID, mimeType string, data []byte) error
}

type foldersService = filesService

// New creates a Drive store, validating credentials by constructing the
// underlying API client.
func New(ctx context.Context, cfg Config) (*Drive, error) {
	opts := []option.ClientOption{option.WithScopes(drive.DriveScope)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Drive client: %w", err)
	}

	svc := &driveFiles{srv: srv}
	slog.Debug("Drive client initialized", "credentials_file", cfg.CredentialsFile)
	return &Drive{files: svc, folders: svc}, nil
}

// FindFile returns the id of the most recent non-trashed file with the given
// name, or "" when no such file exists.
func (d *Drive) FindFile(ctx context.Context, name string) (string, error) {
	query := fmt.Sprintf("name = '%s' and trashed = false", escapeQuery(name))
	files, err := d.files.list(ctx, query, 1)
	if err != nil {
		return "", fmt.Errorf("failed to look up file %q: %w", name, err)
	}
	if len(files) == 0 {
		return "", nil
	}
	return files[0].Id, nil
}

// Download returns the contents of the file.
func (d *Drive) Download(ctx context.Context, fileID string) ([]byte, error) {
	body, err := d.files.download(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", fileID, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", fileID, err)
	}
	return data, nil
}

// Create uploads a new file into the folder and returns its id.
func (d *Drive) Create(ctx context.Context, name, folderID, mimeType string, data []byte) (string, error) {
	meta := &drive.File{Name: name}
	if folderID != "" {
		meta.Parents = []string{folderID}
	}

	f, err := d.files.create(ctx, meta, mimeType, data)
	if err != nil {
		return "", fmt.Errorf("failed to create file %q: %w", name, err)
	}
	return f.Id, nil
}

// Update replaces the contents of an existing file, keeping its id.
func (d *Drive) Update(ctx context.Context, fileID, mimeType string, data []byte) error {
	if err := d.files.update(ctx, fileID, mimeType, data); err != nil {
		return fmt.Errorf("failed to update file %s: %w", fileID, err)
	}
	return nil
}

// FindFolder returns the id of the named folder, optionally below a parent,
// or "" when absent.
func (d *Drive) FindFolder(ctx context.Context, name, parentID string) (string, error) {
	query := fmt.Sprintf(
		"name = '%s' and mimeType = 'application/vnd.google-apps.folder' and trashed = false",
		escapeQuery(name))
	if parentID != "" {
		query += fmt.Sprintf(" and '%s' in parents", escapeQuery(parentID))
	}

	folders, err := d.folders.list(ctx, query, 1)
	if err != nil {
		return "", fmt.Errorf("failed to look up folder %q: %w", name, err)
	}
	if len(folders) == 0 {
		return "", nil
	}
	return folders[0].Id, nil
}

// EnsureFolder returns the id of the named folder, creating it when missing.
func (d *Drive) EnsureFolder(ctx context.Context, name, parentID string) (string, error) {
	id, err := d.FindFolder(ctx, name, parentID)
	if err != nil || id != "" {
		return id, err
	}

	meta := &drive.File{Name: name, MimeType: "application/vnd.google-apps.folder"}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}
	f, err := d.folders.create(ctx, meta, "", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create folder %q: %w", name, err)
	}
	slog.Info("Created Drive folder", "name", name, "id", f.Id)
	return f.Id, nil
}

// ListFolder returns the files directly inside a folder.
func (d *Drive) ListFolder(ctx context.Context, folderID string) ([]*drive.File, error) {
	query := fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderID))
	files, err := d.files.list(ctx, query, 1000)
	if err != nil {
		return nil, fmt.Errorf("failed to list folder %s: %w", folderID, err)
	}
	return files, nil
}

// escapeQuery escapes single quotes and backslashes in Drive query literals.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// driveFiles adapts the generated Drive API surface to filesService.
type driveFiles struct {
	srv *drive.Service
}

func (s *driveFiles) list(ctx context.Context, query string, pageSize int64) ([]*drive.File, error) {
	res, err := s.srv.Files.List().
		Q(query).
		PageSize(pageSize).
		Fields("files(id, name, mimeType)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return res.Files, nil
}

func (s *driveFiles) download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	res, err := s.srv.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

func (s *driveFiles) create(ctx context.Context, meta *drive.File, mimeType string, data []byte) (*drive.File, error) {
	call := s.srv.Files.Create(meta).Fields("id").Context(ctx)
	if data != nil {
		call = call.Media(bytes.NewReader(data), googleapi.ContentType(mimeType))
	}
	return call.Do()
}

func (s *driveFiles) update(ctx context.Context, fileID, mimeType string, data []byte) error {
	_, err := s.srv.Files.Update(fileID, &drive.File{}).
		Media(bytes.NewReader(data), googleapi.ContentType(mimeType)).
		Context(ctx).
		Do()
	return err
}
