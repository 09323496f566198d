package setup

import (
	"context"

	"devicepair/internal/domain"
)

// Display pages understood by graphical surfaces.
const (
	PageLoadingScreen       = "LoadingScreen"
	PageLoadingSkills       = "LoadingSkills"
	PageOfflineMode         = "OfflineMode"
	PageBackendSelect       = "BackendSelect"
	PageBackendMycroft      = "BackendMycroft"
	PageBackendLocal        = "BackendLocal"
	PageNoBackend           = "NoBackend"
	PageBackendPersonalHost = "BackendPersonalHost"
	PageBackendLocalSTT     = "BackendLocalSTT"
	PageBackendLocalTTS     = "BackendLocalTTS"
	PagePairingStart        = "PairingStart"
	PagePairing             = "Pairing"
	PageStatus              = "Status"
)

const (
	defaultCodeColor = "#FF0000"
	successColor     = "#40DBB0"
	failureColor     = "#FF0000"
)

func successStatus() map[string]any {
	return map[string]any{"status": "Success", "label": "Device Paired", "bgColor": successColor}
}

func failureStatus() map[string]any {
	return map[string]any{"status": "Failed", "label": "Pairing Failed", "bgColor": failureColor}
}

// BusDisplay renders pages by publishing gui.page events. Any surface
// attached to the event bus, such as the websocket gateway, picks them up.
type BusDisplay struct {
	bus domain.EventBus
}

// NewBusDisplay creates a BusDisplay.
func NewBusDisplay(bus domain.EventBus) *BusDisplay {
	return &BusDisplay{bus: bus}
}

// Show publishes page with data.
func (d *BusDisplay) Show(ctx context.Context, page string, data map[string]any) {
	d.bus.Publish(ctx, domain.NewEvent(domain.EventGUIPage, "", domain.GUIPagePayload{Page: page, Data: data}))
}

// Release tells surfaces to close the setup screen.
func (d *BusDisplay) Release(ctx context.Context) {
	d.bus.Publish(ctx, domain.NewEvent(domain.EventGUIRelease, "", nil))
}
