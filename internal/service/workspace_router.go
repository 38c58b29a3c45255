package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/applets-core/internal/dto"
	"github.com/noah-isme/applets-core/internal/models"
	appErrors "github.com/noah-isme/applets-core/pkg/errors"
	applog "github.com/noah-isme/applets-core/pkg/logger"
	"github.com/noah-isme/applets-core/pkg/storage"
)

type ownerLookup interface {
	OwnersOf(ctx context.Context, appletID string) ([]models.UserAppletAccess, error)
}

type workspaceStore interface {
	GetByUserID(ctx context.Context, userID string) (*models.Workspace, error)
	UpdateArbitrary(ctx context.Context, w *models.Workspace) error
}

type fieldCipher interface {
	EncryptPtr(v string) (*string, error)
	DecryptPtr(v *string) (string, error)
}

type tenantPools interface {
	Get(ctx context.Context, uri string) (*sqlx.DB, error)
}

// StoreOpener builds an object store from its description.
type StoreOpener func(ctx context.Context, spec storage.Spec) (storage.ObjectStore, error)

// Route is where the answers and files of one applet live.
type Route struct {
	OwnerID   string
	Arbitrary bool
	DB        *sqlx.DB
	Store     storage.ObjectStore
}

type routeCacheKey struct{}

type routeCache struct {
	mu      sync.Mutex
	servers map[string]*resolvedServer
}

type resolvedServer struct {
	workspace *models.Workspace
	server    *models.ArbitraryServer
}

// WithRouteCache scopes decrypted workspace blocks to the lifetime of ctx.
func WithRouteCache(ctx context.Context) context.Context {
	if _, ok := ctx.Value(routeCacheKey{}).(*routeCache); ok {
		return ctx
	}
	return context.WithValue(ctx, routeCacheKey{}, &routeCache{servers: make(map[string]*resolvedServer)})
}

func routeCacheFrom(ctx context.Context) *routeCache {
	cache, _ := ctx.Value(routeCacheKey{}).(*routeCache)
	return cache
}

// WorkspaceRouter resolves the tenant database and object store of an applet.
type WorkspaceRouter struct {
	owners       ownerLookup
	workspaces   workspaceStore
	cipher       fieldCipher
	pools        tenantPools
	openStore    StoreOpener
	defaultDB    *sqlx.DB
	defaultStore storage.ObjectStore
	bus          eventPublisher
	logger       *zap.Logger

	mu     sync.Mutex
	stores map[string]storage.ObjectStore
}

// WorkspaceRouterOption customises the router.
type WorkspaceRouterOption func(*WorkspaceRouter)

// WithRouterPublisher sets the bus receiving owner-conflict warnings.
func WithRouterPublisher(bus eventPublisher) WorkspaceRouterOption {
	return func(r *WorkspaceRouter) {
		r.bus = bus
	}
}

// WithStoreOpener overrides how tenant object stores are built.
func WithStoreOpener(open StoreOpener) WorkspaceRouterOption {
	return func(r *WorkspaceRouter) {
		if open != nil {
			r.openStore = open
		}
	}
}

// NewWorkspaceRouter constructs the router around the platform-default database and store.
func NewWorkspaceRouter(owners ownerLookup, workspaces workspaceStore, cipher fieldCipher, pools tenantPools, defaultDB *sqlx.DB, defaultStore storage.ObjectStore, logger *zap.Logger, opts ...WorkspaceRouterOption) *WorkspaceRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &WorkspaceRouter{
		owners:       owners,
		workspaces:   workspaces,
		cipher:       cipher,
		pools:        pools,
		openStore:    storage.Open,
		defaultDB:    defaultDB,
		defaultStore: defaultStore,
		logger:       logger,
		stores:       make(map[string]storage.ObjectStore),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the route for appletID. Applets whose owner has no enabled arbitrary block use the default pair.
func (r *WorkspaceRouter) Resolve(ctx context.Context, appletID string) (*Route, error) {
	ownerID, err := r.ownerOf(ctx, appletID)
	if err != nil {
		return nil, err
	}
	resolved, err := r.server(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if resolved.server == nil {
		return &Route{OwnerID: ownerID, DB: r.defaultDB, Store: r.defaultStore}, nil
	}

	db, err := r.pools.Get(ctx, resolved.server.DatabaseURI)
	if err != nil {
		r.logger.Error("tenant database unreachable", zap.String("owner_id", ownerID), applog.Redacted("database_uri"), zap.Error(redactedError(err, resolved.server)))
		return nil, appErrors.Clone(appErrors.ErrStorageUnavailable, "tenant database is unavailable")
	}
	store, err := r.storeFor(ctx, resolved.workspace.ID, resolved.server)
	if err != nil {
		r.logger.Error("tenant object store unavailable", zap.String("owner_id", ownerID), zap.String("storage_type", string(resolved.server.StorageType)), applog.Redacted("secret_key"), zap.Error(redactedError(err, resolved.server)))
		return nil, appErrors.Clone(appErrors.ErrStorageUnavailable, "tenant object store is unavailable")
	}
	return &Route{OwnerID: ownerID, Arbitrary: true, DB: db, Store: store}, nil
}

// ownerOf picks the earliest owner access of the applet and reports duplicates.
func (r *WorkspaceRouter) ownerOf(ctx context.Context, appletID string) (string, error) {
	owners, err := r.owners.OwnersOf(ctx, appletID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve applet owner")
	}
	if len(owners) == 0 {
		return "", appErrors.Clone(appErrors.ErrNotFound, "applet not found")
	}
	chosen := owners[0].UserID
	if len(owners) > 1 {
		ids := make([]string, 0, len(owners))
		for _, o := range owners {
			ids = append(ids, o.UserID)
		}
		r.logger.Warn("applet has more than one owner", zap.String("applet_id", appletID), zap.Strings("owner_ids", ids), zap.String("chosen", chosen))
		if r.bus != nil {
			r.bus.Publish(context.WithoutCancel(ctx), models.TopicWorkspaceOwnerConflict, models.OwnerConflictEvent{
				AppletID: appletID,
				OwnerIDs: ids,
				Chosen:   chosen,
			})
		}
	}
	return chosen, nil
}

// server loads and decrypts the owner's arbitrary block. A nil server means default routing.
func (r *WorkspaceRouter) server(ctx context.Context, ownerID string) (*resolvedServer, error) {
	cache := routeCacheFrom(ctx)
	if cache != nil {
		cache.mu.Lock()
		hit, ok := cache.servers[ownerID]
		cache.mu.Unlock()
		if ok {
			return hit, nil
		}
	}

	resolved := &resolvedServer{}
	workspace, err := r.workspaces.GetByUserID(ctx, ownerID)
	switch {
	case errors.Is(err, appErrors.ErrNotFound):
	case err != nil:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workspace")
	default:
		resolved.workspace = workspace
		if workspace.UseArbitrary && workspace.HasArbitraryBlock() {
			server, err := r.decrypt(workspace)
			if err != nil {
				r.logger.Error("workspace arbitrary block cannot be decrypted", zap.String("owner_id", ownerID))
				return nil, appErrors.Clone(appErrors.ErrStorageUnavailable, "arbitrary server configuration is unreadable")
			}
			if missing := server.MissingFields(); len(missing) > 0 {
				r.logger.Error("workspace arbitrary block is incomplete", zap.String("owner_id", ownerID), zap.Strings("missing", missing))
				return nil, appErrors.Clone(appErrors.ErrStorageUnavailable, "arbitrary server configuration is incomplete")
			}
			resolved.server = server
		}
	}

	if cache != nil {
		cache.mu.Lock()
		cache.servers[ownerID] = resolved
		cache.mu.Unlock()
	}
	return resolved, nil
}

func (r *WorkspaceRouter) decrypt(w *models.Workspace) (*models.ArbitraryServer, error) {
	fields := []*string{w.DatabaseURI, w.StorageType, w.StorageAccessKey, w.StorageSecretKey, w.StorageRegion, w.StorageURL, w.StorageBucket}
	plain := make([]string, len(fields))
	for i, f := range fields {
		v, err := r.cipher.DecryptPtr(f)
		if err != nil {
			return nil, err
		}
		plain[i] = v
	}
	return &models.ArbitraryServer{
		DatabaseURI: plain[0],
		StorageType: models.StorageType(strings.ToLower(plain[1])),
		AccessKey:   plain[2],
		SecretKey:   plain[3],
		Region:      plain[4],
		URL:         plain[5],
		Bucket:      plain[6],
	}, nil
}

// storeFor returns the cached store of the workspace, rebuilding it after the block is rotated.
func (r *WorkspaceRouter) storeFor(ctx context.Context, workspaceID string, server *models.ArbitraryServer) (storage.ObjectStore, error) {
	key := workspaceID + ":" + storeFingerprint(server)

	r.mu.Lock()
	store, ok := r.stores[key]
	r.mu.Unlock()
	if ok {
		return store, nil
	}

	opened, err := r.openStore(ctx, storage.Spec{
		Type:      string(server.StorageType),
		Bucket:    server.Bucket,
		Region:    server.Region,
		AccessKey: server.AccessKey,
		SecretKey: server.SecretKey,
		URL:       server.URL,
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.stores[key]; ok {
		return existing, nil
	}
	for cached := range r.stores {
		if strings.HasPrefix(cached, workspaceID+":") {
			delete(r.stores, cached)
		}
	}
	r.stores[key] = opened
	return opened, nil
}

// GetArbitrary returns the redacted arbitrary block of the owner's workspace.
func (r *WorkspaceRouter) GetArbitrary(ctx context.Context, principal models.Principal, ownerID string) (*models.ArbitraryServerView, error) {
	if principal.UserID != ownerID {
		return nil, appErrors.Clone(appErrors.ErrAccessDenied, "only the workspace owner may read its arbitrary server")
	}
	workspace, err := r.workspaces.GetByUserID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workspace not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workspace")
	}
	view := &models.ArbitraryServerView{UseArbitrary: workspace.UseArbitrary}
	if !workspace.HasArbitraryBlock() {
		return view, nil
	}
	server, err := r.decrypt(workspace)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrStorageUnavailable, "arbitrary server configuration is unreadable")
	}
	view.StorageType = server.StorageType
	view.Region = server.Region
	view.URL = server.URL
	view.Bucket = server.Bucket
	view.HasDatabase = server.DatabaseURI != ""
	view.HasSecret = server.SecretKey != ""
	return view, nil
}

// SetArbitrary stores an arbitrary block for the owner's workspace. An empty block with
// useArbitrary=false only switches the workspace back to default routing. Existing data is not moved.
func (r *WorkspaceRouter) SetArbitrary(ctx context.Context, principal models.Principal, ownerID string, req dto.ArbitraryServerRequest) (*models.ArbitraryServerView, error) {
	if principal.UserID != ownerID {
		return nil, appErrors.Clone(appErrors.ErrAccessDenied, "only the workspace owner may change its arbitrary server")
	}
	workspace, err := r.workspaces.GetByUserID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workspace not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workspace")
	}

	server := req.ArbitraryServer
	server.StorageType = models.StorageType(strings.ToLower(string(server.StorageType)))
	supplied := server != (models.ArbitraryServer{})
	if req.UseArbitrary || supplied {
		if missing := server.MissingFields(); len(missing) > 0 {
			details := make([]appErrors.Detail, 0, len(missing))
			for _, field := range missing {
				details = append(details, appErrors.Detail{
					Message: field + " is required for storage type " + string(server.StorageType),
					Type:    appErrors.TypeInvalidValue,
					Path:    []string{field},
				})
			}
			return nil, appErrors.Validation(details...)
		}
	}

	workspace.UseArbitrary = req.UseArbitrary
	if supplied {
		plain := []string{server.DatabaseURI, string(server.StorageType), server.AccessKey, server.SecretKey, server.Region, server.URL, server.Bucket}
		targets := []**string{&workspace.DatabaseURI, &workspace.StorageType, &workspace.StorageAccessKey, &workspace.StorageSecretKey, &workspace.StorageRegion, &workspace.StorageURL, &workspace.StorageBucket}
		for i, v := range plain {
			enc, err := r.cipher.EncryptPtr(v)
			if err != nil {
				return nil, appErrors.Internal(err, "failed to encrypt arbitrary server")
			}
			*targets[i] = enc
		}
	}
	if err := r.workspaces.UpdateArbitrary(ctx, workspace); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store arbitrary server")
	}
	r.logger.Info("workspace arbitrary server updated", zap.String("owner_id", ownerID), zap.Bool("use_arbitrary", workspace.UseArbitrary))
	return r.GetArbitrary(ctx, principal, ownerID)
}

func storeFingerprint(server *models.ArbitraryServer) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		string(server.StorageType), server.Bucket, server.Region, server.URL, server.AccessKey, server.SecretKey,
	}, "\x00")))
	return hex.EncodeToString(sum[:8])
}

// redactedError strips credentials of server from err before it is logged.
func redactedError(err error, server *models.ArbitraryServer) error {
	msg := err.Error()
	for _, secret := range []string{server.DatabaseURI, server.SecretKey, server.AccessKey} {
		if secret != "" {
			msg = strings.ReplaceAll(msg, secret, "[redacted]")
		}
	}
	return errors.New(msg)
}
