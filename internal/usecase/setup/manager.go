package setup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"devicepair/internal/domain"
)

// Dummy identity values persisted for backends that never issue credentials.
const (
	dummyAccessToken  = "OVOSdbF1wJ4jA5lN6x6qmVk_QvJPqBQZTUJQm7fYzkDyY_Y="
	dummyRefreshToken = "OVOS66c5SpAiSpXbpHlq9HNGl1vsw_srX49t5tCv88JkhuE="
	dummyLifetime     = 999999 * time.Second
)

const (
	seleneAPIURL      = "https://api.mycroft.ai"
	seleneUploadURL   = "https://training.mycroft.ai/precise/upload"
	serverSTTURL      = "https://stt.openvoiceos.com/stt"
	larynxHost        = "http://tts.neon.ai"
	backendAPIVersion = "v1"
)

// AttributeReporter sends device metadata to the backend.
type AttributeReporter interface {
	ReportDeviceAttributes(ctx context.Context) error
}

// Manager applies setup side effects: user configuration patches, the dummy
// identity and attribute reporting. Configuration writes are serialized.
type Manager struct {
	mu       sync.Mutex
	conf     domain.UserConfigStore
	creds    domain.CredentialStore
	reporter AttributeReporter
	bus      domain.EventBus
	logger   *slog.Logger

	now     func() time.Time
	newUUID func() string
}

// NewManager creates a Manager. reporter and bus may be nil.
func NewManager(conf domain.UserConfigStore, creds domain.CredentialStore, reporter AttributeReporter, bus domain.EventBus, logger *slog.Logger) *Manager {
	return &Manager{
		conf:     conf,
		creds:    creds,
		reporter: reporter,
		bus:      bus,
		logger:   logger,
		now:      time.Now,
		newUUID:  uuid.NewString,
	}
}

// UpdateUserConfig merges patch into the user configuration and announces
// the merged result.
func (m *Manager) UpdateUserConfig(ctx context.Context, patch ConfigPatch) error {
	tree, err := patchTree(patch)
	if err != nil {
		return domain.WrapOp("Manager.UpdateUserConfig", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	merged, err := m.conf.Merge(ctx, tree)
	if err != nil {
		return domain.WrapOp("Manager.UpdateUserConfig", err)
	}
	if m.bus != nil {
		m.bus.Publish(ctx, domain.NewEvent(domain.EventConfigPatch, "", domain.ConfigPatchPayload{Patch: merged}))
	}
	return nil
}

// ApplyBackend writes the server configuration for sel. Offline and personal
// backends also get a dummy identity since they never pair remotely.
func (m *Manager) ApplyBackend(ctx context.Context, sel domain.BackendSelection) error {
	patch, err := BackendPatch(sel)
	if err != nil {
		return err
	}
	if err := m.UpdateUserConfig(ctx, patch); err != nil {
		return err
	}
	if sel.Type == domain.BackendSelene {
		return nil
	}
	return m.CreateDummyIdentity(ctx)
}

// ApplySTT writes the configuration of engine.
func (m *Manager) ApplySTT(ctx context.Context, engine domain.STTEngine) error {
	patch, err := STTPatch(engine)
	if err != nil {
		return err
	}
	return m.UpdateUserConfig(ctx, patch)
}

// ApplyTTS writes the configuration of engine.
func (m *Manager) ApplyTTS(ctx context.Context, engine domain.TTSEngine) error {
	patch, err := TTSPatch(engine)
	if err != nil {
		return err
	}
	return m.UpdateUserConfig(ctx, patch)
}

// CreateDummyIdentity persists placeholder credentials.
func (m *Manager) CreateDummyIdentity(ctx context.Context) error {
	creds := &domain.DeviceCredentials{
		UUID:         m.newUUID(),
		AccessToken:  dummyAccessToken,
		RefreshToken: dummyRefreshToken,
		ExpiresAt:    m.now().Add(dummyLifetime),
	}
	if err := m.creds.Save(ctx, creds); err != nil {
		return domain.NewSubSystemError("setup", "Manager.CreateDummyIdentity", domain.ErrCredentialPersist, err.Error())
	}
	return nil
}

// ReportDeviceAttributes sends device metadata to the backend. Failures are
// logged only.
func (m *Manager) ReportDeviceAttributes(ctx context.Context) {
	if m.reporter == nil {
		return
	}
	m.logger.Info("sending device attributes to the backend")
	if err := m.reporter.ReportDeviceAttributes(ctx); err != nil {
		m.logger.Warn("device attribute report failed", "error", err)
		return
	}
	if m.bus != nil {
		m.bus.Publish(ctx, domain.NewEvent(domain.EventAttributesSent, "", nil))
	}
}
