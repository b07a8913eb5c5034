// Package files resolves uploaded file assets to paths on local storage.
package files

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// Store is the file storage collaborator used by workspace queries.
type Store interface {
	// GetAsset returns the asset metadata, or apperrors.ErrNotFound.
	GetAsset(ctx context.Context, tenantID, fileID uuid.UUID) (*models.FileAsset, error)
	// ResolveAbsolutePath returns the on-disk path of a tenant's stored file.
	// The result never escapes the tenant's storage directory.
	ResolveAbsolutePath(tenantID uuid.UUID, storagePath string) (string, error)
}

// AssetRepository loads file asset metadata.
type AssetRepository interface {
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.FileAsset, error)
}

// LocalStore keeps files under <root>/<tenant_id>/<storage_path>.
type LocalStore struct {
	root   string
	assets AssetRepository
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates a store rooted at root. The root is made absolute.
func NewLocalStore(root string, assets AssetRepository) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	return &LocalStore{root: abs, assets: assets}, nil
}

// Root returns the absolute storage root.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) GetAsset(ctx context.Context, tenantID, fileID uuid.UUID) (*models.FileAsset, error) {
	asset, err := s.assets.Get(ctx, tenantID, fileID)
	if err != nil {
		return nil, err
	}
	if asset.TenantID != tenantID {
		return nil, apperrors.ErrNotFound
	}
	return asset, nil
}

func (s *LocalStore) ResolveAbsolutePath(tenantID uuid.UUID, storagePath string) (string, error) {
	if tenantID == uuid.Nil {
		return "", fmt.Errorf("tenant id required")
	}
	if strings.TrimSpace(storagePath) == "" {
		return "", fmt.Errorf("storage path is empty")
	}
	if filepath.IsAbs(storagePath) {
		return "", fmt.Errorf("storage path must be relative")
	}

	tenantRoot := filepath.Join(s.root, tenantID.String())
	full := filepath.Join(tenantRoot, filepath.FromSlash(storagePath))
	rel, err := filepath.Rel(tenantRoot, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("storage path %q escapes tenant directory", storagePath)
	}
	return full, nil
}

// ErrTooLarge is returned by Save when the content exceeds the size limit.
var ErrTooLarge = errors.New("file exceeds the upload size limit")

// Stored describes a file written by Save.
type Stored struct {
	StoragePath string
	SizeBytes   int64
	Checksum    string
}

// Save writes r under the tenant's directory as <id><ext of name>. maxBytes <= 0 means unlimited.
// The SHA-256 of the content becomes the checksum, so schema caches keyed on it miss when content changes.
func (s *LocalStore) Save(tenantID, id uuid.UUID, name string, r io.Reader, maxBytes int64) (*Stored, error) {
	storagePath := "uploads/" + id.String() + strings.ToLower(filepath.Ext(name))
	full, err := s.ResolveAbsolutePath(tenantID, storagePath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return nil, fmt.Errorf("create tenant directory: %w", err)
	}

	out, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(out, h), src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && maxBytes > 0 && n > maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(full)
		return nil, err
	}

	return &Stored{StoragePath: storagePath, SizeBytes: n, Checksum: hex.EncodeToString(h.Sum(nil))}, nil
}

// Remove deletes a tenant's stored file. A missing file is not an error.
func (s *LocalStore) Remove(tenantID uuid.UUID, storagePath string) error {
	full, err := s.ResolveAbsolutePath(tenantID, storagePath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
