package nfs

import (
	"context"
	"net"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/rs/zerolog/log"
	nfs "github.com/willscott/go-nfs"
	"github.com/willscott/go-nfs/helpers"

	"github.com/runvault/runvault/internal/audit"
	"github.com/runvault/runvault/internal/storage"
)

// Handler implements nfs.Handler over the vault tree. Every mount is
// read-only; clients pick the subtree to browse with the mount path.
type Handler struct {
	store        *storage.Store
	audit        *audit.Logger
	cachingLimit int

	// Internal handler wrapping
	inner nfs.Handler
}

// NewHandler creates a new NFS handler.
func NewHandler(store *storage.Store, auditLog *audit.Logger) *Handler {
	h := &Handler{
		store:        store,
		audit:        auditLog,
		cachingLimit: 1024, // Handle cache limit
	}
	rootFS := NewVaultFilesystem(store, "")
	h.inner = helpers.NewCachingHandler(helpers.NewNullAuthHandler(rootFS), h.cachingLimit)
	return h
}

// Mount handles NFS mount requests. The mount path selects the subtree to
// expose; "/" exposes the whole vault.
func (h *Handler) Mount(ctx context.Context, conn net.Conn, req nfs.MountRequest) (nfs.MountStatus, billy.Filesystem, []nfs.AuthFlavor) {
	dirpath := string(req.Dirpath)
	prefix := strings.Trim(path.Clean("/"+dirpath), "/")

	log.Debug().
		Str("path", dirpath).
		Str("remote", conn.RemoteAddr().String()).
		Msg("NFS mount request")

	vfs := NewVaultFilesystem(h.store, prefix)
	if info, err := vfs.Stat("/"); err != nil || !info.IsDir() {
		log.Warn().Str("path", dirpath).Msg("NFS mount path not found")
		h.audit.LogNFSOp("mount", "/"+prefix, "denied", "path not found", remoteIP(conn))
		return nfs.MountStatusErrNoEnt, nil, nil
	}

	log.Info().
		Str("path", "/"+prefix).
		Str("remote", conn.RemoteAddr().String()).
		Msg("NFS mount successful")
	h.audit.LogNFSOp("mount", "/"+prefix, "ok", "", remoteIP(conn))

	return nfs.MountStatusOk, vfs, []nfs.AuthFlavor{nfs.AuthFlavorNull}
}

// Change returns a billy.Change for the filesystem.
func (h *Handler) Change(fs billy.Filesystem) billy.Change {
	return nil // The export is read-only
}

// FSStat fills in filesystem statistics.
func (h *Handler) FSStat(ctx context.Context, fs billy.Filesystem, stat *nfs.FSStat) error {
	total, _, available, err := storage.GetVolumeStats(h.store.Root())
	if err != nil {
		// Statfs can fail on exotic mounts; static numbers keep clients going.
		total, available = 1<<40, 1<<40
	}
	stat.TotalSize = uint64(total)
	stat.FreeSize = uint64(available)
	stat.AvailableSize = uint64(available)
	stat.TotalFiles = 1 << 20
	stat.FreeFiles = 1 << 20
	stat.AvailableFiles = 1 << 20
	stat.CacheHint = 0
	return nil
}

// ToHandle converts a file path to a handle.
func (h *Handler) ToHandle(fs billy.Filesystem, path []string) []byte {
	return h.inner.ToHandle(fs, path)
}

// FromHandle converts a handle back to a filesystem and path.
func (h *Handler) FromHandle(fh []byte) (billy.Filesystem, []string, error) {
	return h.inner.FromHandle(fh)
}

// InvalidateHandle invalidates a handle.
func (h *Handler) InvalidateHandle(fs billy.Filesystem, fh []byte) error {
	return h.inner.InvalidateHandle(fs, fh)
}

// HandleLimit returns the maximum number of handles.
func (h *Handler) HandleLimit() int {
	return h.cachingLimit
}

// remoteIP extracts the peer address for audit records.
func remoteIP(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
